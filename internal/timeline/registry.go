package timeline

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tickline/internal/eventbus"
	"tickline/internal/runtime/dispatch"
	"tickline/internal/runtime/lifecycle"
	logx "tickline/pkg/logx"
)

// Registry maps periods to buckets of subscriptions and routes every public
// operation. One coarse lock guards the whole structure: mutations, queries
// and each Advance pass hold it, and pruning of empty subscriptions and
// buckets happens under it, so a concurrent add can never be lost to a
// racing remove.
type Registry struct {
	mu       sync.Mutex
	buckets  map[time.Duration]*bucket
	baseTick time.Duration

	ticker *globalTicker
	disp   Dispatcher
	queue  *dispatch.Queue // nil when the dispatcher was injected

	log logx.Logger
	bus eventbus.Bus

	ticks atomic.Uint64
	fires atomic.Uint64
}

func New(opts ...Option) *Registry {
	o := options{
		baseTick:      DefaultBaseTick,
		stopTimeout:   time.Second,
		tickerFactory: newRealTicker,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log.IsZero() {
		o.log = logx.Nop()
	}

	r := &Registry{
		buckets:  map[time.Duration]*bucket{},
		baseTick: o.baseTick,
		disp:     o.dispatcher,
		log:      o.log,
		bus:      o.bus,
	}
	if r.disp == nil {
		r.queue = dispatch.NewQueue(dispatch.Config{BacklogWarn: o.backlogWarn}, o.log.With(logx.String("comp", "dispatch")))
		r.queue.Start(context.Background())
		r.disp = r.queue
	}
	r.ticker = &globalTicker{
		factory:  o.tickerFactory,
		onTick:   r.Advance,
		log:      o.log.With(logx.String("comp", "ticker")),
		stopWait: o.stopTimeout,
		publish:  r.publish,
		interval: o.baseTick,
	}
	return r
}

func (r *Registry) publish(typ string, data any) {
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

func (r *Registry) valid(op string, period time.Duration, obs *Observer) bool {
	if period <= 0 || obs == nil {
		r.log.Debug("ignored invalid registration", logx.String("op", op), logx.Duration("period", period), logx.Bool("observer_nil", obs == nil))
		return false
	}
	return true
}

// Start makes sure the ticker is running. It is idempotent and does nothing
// while the registry is in the background (see OnAppStateChanged).
func (r *Registry) Start() { r.ticker.start() }

// AddObserver binds obs to (period, key) for the lifetime of scope. Several
// calls with the same (period, key) fan out onto one subscription; repeating
// the same (scope, obs) pair is a no-op.
func (r *Registry) AddObserver(scope lifecycle.Scope, period time.Duration, key string, obs *Observer) {
	if scope == nil || !r.valid("add", period, obs) {
		return
	}
	r.attach(newBinding(period, key, obs, scope), nil)
}

// AddObserverForever binds obs to (period, key) until it is removed
// explicitly. A previous forever binding of the same (period, key, obs) is
// replaced, so obs is never notified twice per fire.
func (r *Registry) AddObserverForever(period time.Duration, key string, obs *Observer) {
	if !r.valid("add_forever", period, obs) {
		return
	}
	pre := removeForever(period, key, obs)
	r.attach(newBinding(period, key, obs, nil), &pre)
}

// AddObserverUnique first removes every binding of (scope, key), whatever
// period it was registered under, then adds like AddObserver.
func (r *Registry) AddObserverUnique(scope lifecycle.Scope, period time.Duration, key string, obs *Observer) {
	if scope == nil || !r.valid("add_unique", period, obs) {
		return
	}
	pre := removeScopeKey(scope, key)
	r.attach(newBinding(period, key, obs, scope), &pre)
}

func (r *Registry) attach(b *binding, pre *removal) {
	var (
		removed []*binding
		pruned  []time.Duration
		created bool
	)

	r.mu.Lock()
	if pre != nil {
		removed, pruned = r.removeLocked(*pre)
	}
	bk := r.buckets[b.period]
	if bk == nil {
		bk = newBucket(b.period)
		r.buckets[b.period] = bk
		created = true
	}
	sub := bk.getOrCreate(b.key)
	added := sub.attach(b)
	replay := added && sub.fired
	r.mu.Unlock()

	r.finishRemoval(removed, pruned)
	if created {
		r.publish(EventBucketCreated, BucketEvent{Period: b.period})
	}
	if !added {
		return
	}
	r.log.Debug("observer added", logx.Duration("period", b.period), logx.String("key", b.key), logx.Bool("forever", b.forever()))

	if b.scope != nil {
		b.setStop(b.scope.OnEnd(func() {
			r.log.Debug("scope ended", logx.String("scope", b.scope.ID()), logx.String("key", b.key))
			r.remove(removeBinding(b))
		}))
	}
	if replay {
		r.disp.Submit(func() { b.deliver(b.period) })
	}
	r.ticker.start()
}

// HasObservers reports whether (period, key) has a live subscription.
func (r *Registry) HasObservers(period time.Duration, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	bk := r.buckets[period]
	if bk == nil {
		return false
	}
	sub := bk.lookup(key)
	return sub != nil && !sub.empty()
}

// Pause stops (period, key) from accumulating time. Progress is kept.
func (r *Registry) Pause(period time.Duration, key string) {
	if period <= 0 {
		return
	}
	r.setPaused(period, false, key, pauseDirect, true)
}

// Resume undoes Pause and PauseKey for (period, key).
func (r *Registry) Resume(period time.Duration, key string) {
	if period <= 0 {
		return
	}
	r.setPaused(period, false, key, pauseDirect|pauseBroadcast, false)
}

// PauseKey pauses key under every period.
func (r *Registry) PauseKey(key string) { r.setPaused(0, true, key, pauseBroadcast, true) }

// ResumeKey undoes PauseKey. Subscriptions paused with Pause stay paused.
func (r *Registry) ResumeKey(key string) { r.setPaused(0, true, key, pauseBroadcast, false) }

// setPaused applies src to key under period, or under every period when all is set.
func (r *Registry) setPaused(period time.Duration, all bool, key string, src pauseSource, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !all {
		if bk := r.buckets[period]; bk != nil {
			if sub := bk.lookup(key); sub != nil {
				sub.setPaused(src, on)
			}
		}
		return
	}
	for _, bk := range r.buckets {
		if sub := bk.lookup(key); sub != nil {
			sub.setPaused(src, on)
		}
	}
}

// RemoveScopeKey removes scope's bindings under key in every period.
func (r *Registry) RemoveScopeKey(scope lifecycle.Scope, key string) {
	if scope == nil {
		return
	}
	r.remove(removeScopeKey(scope, key))
}

// RemoveKeyObserver removes obs under key in every period.
func (r *Registry) RemoveKeyObserver(key string, obs *Observer) {
	if obs == nil {
		return
	}
	r.remove(removeKeyObserver(key, obs))
}

// RemoveObserver removes obs everywhere.
func (r *Registry) RemoveObserver(obs *Observer) {
	if obs == nil {
		return
	}
	r.remove(removeObserver(obs))
}

func (r *Registry) remove(q removal) {
	r.mu.Lock()
	removed, pruned := r.removeLocked(q)
	r.mu.Unlock()
	r.finishRemoval(removed, pruned)
}

// removeLocked is the single pruning routine. Call with r.mu held.
func (r *Registry) removeLocked(q removal) ([]*binding, []time.Duration) {
	var (
		removed []*binding
		pruned  []time.Duration
	)
	for p, bk := range r.buckets {
		if !q.matchesPeriod(p) {
			continue
		}
		removed = append(removed, bk.remove(q)...)
		if bk.empty() {
			delete(r.buckets, p)
			pruned = append(pruned, p)
		}
	}
	return removed, pruned
}

func (r *Registry) finishRemoval(removed []*binding, pruned []time.Duration) {
	for _, b := range removed {
		b.release()
	}
	if len(removed) > 0 {
		r.log.Debug("observers removed", logx.Int("count", len(removed)))
	}
	for _, p := range pruned {
		r.publish(EventBucketPruned, BucketEvent{Period: p})
	}
}

// Advance runs one tick pass: every bucket advances every running
// subscription by one base tick. Fires are handed to the dispatcher after
// the lock is released.
func (r *Registry) Advance() {
	r.mu.Lock()
	tick := r.baseTick
	var out []delivery
	for _, bk := range r.buckets {
		out = bk.advance(tick, out)
	}
	r.mu.Unlock()

	r.ticks.Add(1)
	for _, d := range out {
		r.fires.Add(1)
		r.publish(EventFired, FireEvent{Period: d.period, Key: d.key, Targets: len(d.targets)})
		r.disp.Submit(d.run)
	}
}

// Release stops the ticker. With clearObservers every subscription is
// dropped; otherwise state survives and a later Start resumes it.
func (r *Registry) Release(clearObservers bool) {
	r.ticker.stop()
	if !clearObservers {
		return
	}

	r.mu.Lock()
	old := r.buckets
	r.buckets = map[time.Duration]*bucket{}
	var removed []*binding
	var pruned []time.Duration
	for p, bk := range old {
		for _, sub := range bk.subs {
			removed = append(removed, sub.detach(func(*binding) bool { return true })...)
		}
		pruned = append(pruned, p)
	}
	r.mu.Unlock()

	r.finishRemoval(removed, pruned)
	r.log.Info("registry cleared", logx.Int("timelines", len(pruned)), logx.Int("observers", len(removed)))
}

// OnAppStateChanged stops the ticker while the host is in the background and
// restarts it when it comes back. Accumulated progress is kept.
func (r *Registry) OnAppStateChanged(inBackground bool) {
	r.log.Debug("app state changed", logx.Bool("background", inBackground))
	r.ticker.setSuspended(inBackground)
}

// SetBaseTick changes the base tick. A running ticker restarts with the new
// interval; accumulated progress is kept.
func (r *Registry) SetBaseTick(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	prev := r.baseTick
	r.baseTick = d
	r.mu.Unlock()
	if prev != d {
		r.log.Info("base tick changed", logx.Duration("from", prev), logx.Duration("to", d))
	}
	r.ticker.setInterval(d)
}

func (r *Registry) BaseTick() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baseTick
}

// Periods returns the periods that currently have subscriptions, ascending.
func (r *Registry) Periods() []time.Duration {
	r.mu.Lock()
	out := make([]time.Duration, 0, len(r.buckets))
	for p := range r.buckets {
		out = append(out, p)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot returns a point-in-time view for diagnostics.
func (r *Registry) Snapshot() Snapshot {
	snap := Snapshot{
		TickerRunning: r.ticker.running(),
		Background:    r.ticker.isSuspended(),
		Ticks:         r.ticks.Load(),
		Fires:         r.fires.Load(),
	}
	if r.queue != nil {
		snap.Dispatch = r.queue.Stats()
	}

	r.mu.Lock()
	snap.BaseTick = r.baseTick
	for p, bk := range r.buckets {
		tl := TimelineInfo{Period: p, TicksPerFire: TicksPerFire(p, r.baseTick)}
		for key, sub := range bk.subs {
			si := SubscriptionInfo{
				Key:         key,
				Accumulated: sub.accumulated,
				Running:     sub.running(),
				Fired:       sub.fired,
				Targets:     len(sub.bindings),
			}
			for _, b := range sub.bindings {
				if b.forever() {
					si.Forever++
				}
			}
			tl.Subscriptions = append(tl.Subscriptions, si)
		}
		sort.Slice(tl.Subscriptions, func(i, j int) bool {
			return tl.Subscriptions[i].Key < tl.Subscriptions[j].Key
		})
		snap.Timelines = append(snap.Timelines, tl)
	}
	r.mu.Unlock()

	sort.Slice(snap.Timelines, func(i, j int) bool { return snap.Timelines[i].Period < snap.Timelines[j].Period })
	return snap
}

// Close releases and clears the registry and stops the built-in dispatch
// queue after it has drained.
func (r *Registry) Close(ctx context.Context) error {
	r.Release(true)
	if r.queue != nil {
		return r.queue.Stop(ctx)
	}
	return nil
}
