package timeline

import "time"

type pauseSource uint8

const (
	pauseDirect pauseSource = 1 << iota
	pauseBroadcast
)

// subscription is one (period, key) pair. All fields are guarded by the
// registry lock.
type subscription struct {
	accumulated time.Duration
	paused      pauseSource
	// fired reports whether the subscription has delivered at least once;
	// late targets get the last value (always the period) replayed.
	fired    bool
	bindings []*binding
}

func (s *subscription) running() bool { return s.paused == 0 }

func (s *subscription) setPaused(src pauseSource, on bool) {
	if on {
		s.paused |= src
	} else {
		s.paused &^= src
	}
}

func (s *subscription) empty() bool { return len(s.bindings) == 0 }

// attach adds b and reports false when the same observer is already bound
// under the same scope.
func (s *subscription) attach(b *binding) bool {
	for _, cur := range s.bindings {
		if cur.same(b) {
			return false
		}
	}
	s.bindings = append(s.bindings, b)
	return true
}

// detach removes every binding accepted by match and kills it. Progress is
// reset whenever something was removed, even if other bindings remain.
func (s *subscription) detach(match func(*binding) bool) []*binding {
	var removed []*binding
	kept := s.bindings[:0]
	for _, b := range s.bindings {
		if match(b) {
			b.kill()
			removed = append(removed, b)
			continue
		}
		kept = append(kept, b)
	}
	for i := len(kept); i < len(s.bindings); i++ {
		s.bindings[i] = nil
	}
	s.bindings = kept
	if len(removed) > 0 {
		s.accumulated = 0
	}
	return removed
}

// advance moves the subscription forward by tick and reports whether it fired.
func (s *subscription) advance(period, tick time.Duration) bool {
	if !s.running() || period <= 0 || tick <= 0 {
		return false
	}
	if s.accumulated+tick >= period {
		s.accumulated = 0
		if s.empty() {
			return false
		}
		s.fired = true
		return true
	}
	s.accumulated += tick
	return false
}

func (s *subscription) targets() []*binding {
	return append([]*binding(nil), s.bindings...)
}
