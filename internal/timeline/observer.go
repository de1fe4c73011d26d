package timeline

import (
	"sync"
	"sync/atomic"
	"time"

	"tickline/internal/runtime/lifecycle"
)

// Observer receives fire notifications. The pointer is its identity: keep it
// around to remove the observer later.
type Observer struct {
	fn func(period time.Duration)
}

// NewObserver wraps fn. The argument passed to fn is the period that fired.
func NewObserver(fn func(period time.Duration)) *Observer {
	return &Observer{fn: fn}
}

func (o *Observer) notify(period time.Duration) {
	if o != nil && o.fn != nil {
		o.fn(period)
	}
}

// binding is one delivery target: an observer attached to one subscription,
// either scope-bound or forever (nil scope).
type binding struct {
	period time.Duration
	key    string
	obs    *Observer
	scope  lifecycle.Scope

	live atomic.Bool

	mu   sync.Mutex
	stop func() bool
}

func newBinding(period time.Duration, key string, obs *Observer, scope lifecycle.Scope) *binding {
	b := &binding{period: period, key: key, obs: obs, scope: scope}
	b.live.Store(true)
	return b
}

func (b *binding) forever() bool { return b.scope == nil }

func (b *binding) same(o *binding) bool {
	return b.obs == o.obs && b.scope == o.scope
}

// deliver notifies the observer unless the binding was detached after the
// delivery was queued.
func (b *binding) deliver(period time.Duration) {
	if b.live.Load() {
		b.obs.notify(period)
	}
}

// setStop stores the scope unregister func. If the binding was detached in
// the meantime the hook is unregistered right away.
func (b *binding) setStop(stop func() bool) {
	if stop == nil {
		return
	}
	b.mu.Lock()
	if !b.live.Load() {
		b.mu.Unlock()
		stop()
		return
	}
	b.stop = stop
	b.mu.Unlock()
}

// kill marks the binding detached. Call with the registry lock held.
func (b *binding) kill() { b.live.Store(false) }

// release unregisters the scope hook of a killed binding. Call without the
// registry lock.
func (b *binding) release() {
	b.mu.Lock()
	stop := b.stop
	b.stop = nil
	b.mu.Unlock()
	if stop != nil {
		stop()
	}
}
