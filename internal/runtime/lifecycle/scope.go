// Package lifecycle models external lifetimes that timeline subscriptions can
// be bound to. When a scope ends, every hook registered with OnEnd runs
// exactly once.
package lifecycle

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Scope is an external lifetime.
//
// Implementations must be comparable (pointer types): the registry matches
// removals by scope identity.
type Scope interface {
	// ID is a stable identifier used in logs.
	ID() string
	// OnEnd registers fn to run once when the scope ends. If the scope has
	// already ended, fn runs right away. The returned stop func unregisters
	// fn and reports whether it did so before fn ran.
	OnEnd(fn func()) (stop func() bool)
}

// Owner is a scope ended explicitly by calling End.
type Owner struct {
	id string

	mu    sync.Mutex
	ended bool
	seq   uint64
	hooks map[uint64]func()
}

func NewOwner() *Owner {
	return &Owner{id: uuid.NewString(), hooks: map[uint64]func(){}}
}

func (o *Owner) ID() string { return o.id }

func (o *Owner) OnEnd(fn func()) func() bool {
	if fn == nil {
		return func() bool { return false }
	}
	o.mu.Lock()
	if o.ended {
		o.mu.Unlock()
		fn()
		return func() bool { return false }
	}
	o.seq++
	id := o.seq
	o.hooks[id] = fn
	o.mu.Unlock()

	return func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		if _, ok := o.hooks[id]; !ok {
			return false
		}
		delete(o.hooks, id)
		return true
	}
}

// End ends the scope and runs the registered hooks synchronously, in
// registration order. Calling End more than once is a no-op.
func (o *Owner) End() {
	o.mu.Lock()
	if o.ended {
		o.mu.Unlock()
		return
	}
	o.ended = true
	hooks := o.hooks
	o.hooks = map[uint64]func(){}
	o.mu.Unlock()

	ids := make([]uint64, 0, len(hooks))
	for id := range hooks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		hooks[id]()
	}
}

func (o *Owner) Ended() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ended
}

// ctxScope ends when its context is done. Hooks run on their own goroutine.
type ctxScope struct {
	id  string
	ctx context.Context
}

// FromContext returns a scope that ends when ctx is done.
func FromContext(ctx context.Context) Scope {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ctxScope{id: uuid.NewString(), ctx: ctx}
}

func (s *ctxScope) ID() string { return s.id }

func (s *ctxScope) OnEnd(fn func()) func() bool {
	if fn == nil {
		return func() bool { return false }
	}
	return context.AfterFunc(s.ctx, fn)
}
