package timeline

import "time"

// bucket owns every subscription of one period.
type bucket struct {
	period time.Duration
	subs   map[string]*subscription
}

func newBucket(period time.Duration) *bucket {
	return &bucket{period: period, subs: map[string]*subscription{}}
}

func (b *bucket) empty() bool { return len(b.subs) == 0 }

func (b *bucket) lookup(key string) *subscription { return b.subs[key] }

func (b *bucket) getOrCreate(key string) *subscription {
	s := b.subs[key]
	if s == nil {
		s = &subscription{}
		b.subs[key] = s
	}
	return s
}

// delivery is one fire, queued for the dispatcher after the pass completes.
type delivery struct {
	period  time.Duration
	key     string
	targets []*binding
}

func (d delivery) run() {
	for _, t := range d.targets {
		t.deliver(d.period)
	}
}

func (b *bucket) advance(tick time.Duration, out []delivery) []delivery {
	for key, s := range b.subs {
		if s.advance(b.period, tick) {
			out = append(out, delivery{period: b.period, key: key, targets: s.targets()})
		}
	}
	return out
}

// remove detaches the bindings selected by q and prunes subscriptions left
// without targets.
func (b *bucket) remove(q removal) []*binding {
	if !q.anyKey {
		s := b.subs[q.key]
		if s == nil {
			return nil
		}
		removed := s.detach(q.matches)
		if s.empty() {
			delete(b.subs, q.key)
		}
		return removed
	}
	var removed []*binding
	for key, s := range b.subs {
		removed = append(removed, s.detach(q.matches)...)
		if s.empty() {
			delete(b.subs, key)
		}
	}
	return removed
}
