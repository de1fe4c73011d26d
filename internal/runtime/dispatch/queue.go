// Package dispatch provides serialized execution contexts: work items
// submitted to a Queue run one at a time, in submission order, on a single
// worker goroutine.
package dispatch

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	rtsup "tickline/internal/runtime/supervisor"
	logx "tickline/pkg/logx"
)

// Inline runs work on the submitting goroutine.
type Inline struct{}

func (Inline) Submit(fn func()) {
	if fn != nil {
		fn()
	}
}

type Config struct {
	// BacklogWarn is the queue length above which a (rate-limited) warning is logged.
	// 0 means default (1024).
	BacklogWarn int
}

// Queue is an unbounded FIFO drained by one worker. Submit never blocks.
type Queue struct {
	cfg Config
	log logx.Logger

	mu      sync.Mutex
	items   []func()
	closed  bool
	started bool
	sup     *rtsup.Supervisor

	wake chan struct{}

	warnLimiter  *rate.Limiter
	panicLimiter *rate.Limiter

	processed atomic.Uint64
	panics    atomic.Uint64
}

type Stats struct {
	Pending   int    `json:"pending"`
	Processed uint64 `json:"processed"`
	Panics    uint64 `json:"panics"`
}

func NewQueue(cfg Config, log logx.Logger) *Queue {
	if cfg.BacklogWarn <= 0 {
		cfg.BacklogWarn = 1024
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Queue{
		cfg:          cfg,
		log:          log,
		wake:         make(chan struct{}, 1),
		warnLimiter:  rate.NewLimiter(rate.Every(5*time.Second), 1),
		panicLimiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

// Start launches the worker. It is idempotent; a stopped queue cannot be restarted.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.sup = rtsup.New(ctx, rtsup.WithLogger(q.log))
	q.sup.Go0("dispatch.worker", q.loop)
}

// ErrStopped is returned by Flush once the queue no longer accepts items.
var ErrStopped = errors.New("dispatch queue stopped")

// Submit enqueues fn. Items submitted after Stop are dropped.
func (q *Queue) Submit(fn func()) {
	if fn == nil {
		return
	}
	if !q.enqueue(fn) {
		q.log.Debug("dispatch item dropped (queue stopped)")
	}
}

func (q *Queue) enqueue(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, fn)
	n := len(q.items)
	q.mu.Unlock()

	if n > q.cfg.BacklogWarn && q.warnLimiter.Allow() {
		q.log.Warn("dispatch backlog high", logx.Int("pending", n), logx.Int("warn_at", q.cfg.BacklogWarn))
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Flush blocks until every item submitted before the call has run. It fails
// with ErrStopped right away on a stopped queue.
func (q *Queue) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !q.enqueue(func() { close(done) }) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new items, lets the worker drain what is already queued and
// waits for it (bounded by ctx).
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	sup := q.sup
	q.mu.Unlock()

	if sup == nil {
		return nil
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	err := sup.Wait(ctx)
	sup.Cancel()
	return err
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	n := len(q.items)
	q.mu.Unlock()
	return Stats{Pending: n, Processed: q.processed.Load(), Panics: q.panics.Load()}
}

func (q *Queue) loop(ctx context.Context) {
	for {
		q.mu.Lock()
		for len(q.items) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			}
			q.mu.Lock()
		}
		batch := q.items
		q.items = nil
		q.mu.Unlock()

		for _, fn := range batch {
			q.exec(fn)
		}
	}
}

// exec runs one item; a panicking observer must not take the worker down.
func (q *Queue) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.panics.Add(1)
			if q.panicLimiter.Allow() {
				q.log.Error("dispatch item panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}
		q.processed.Add(1)
	}()
	fn()
}
