package timeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tickline/internal/runtime/dispatch"
)

const (
	base = 16 * time.Millisecond
	wait = 2 * time.Second
	poll = time.Millisecond
)

// newTestRegistry returns a registry that delivers inline and whose ticker
// never fires unless a manualClock is plugged in.
func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	clock := newManualClock()
	all := append([]Option{
		WithBaseTick(base),
		WithDispatcher(dispatch.Inline{}),
		WithTickerFactory(clock.factory),
	}, opts...)
	r := New(all...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), wait)
		defer cancel()
		_ = r.Close(ctx)
	})
	return r
}

func advance(r *Registry, n int) {
	for i := 0; i < n; i++ {
		r.Advance()
	}
}

type counter struct {
	n    atomic.Int32
	last atomic.Int64
}

func (c *counter) observer() *Observer {
	return NewObserver(func(p time.Duration) {
		c.n.Add(1)
		c.last.Store(int64(p))
	})
}

func (c *counter) count() int { return int(c.n.Load()) }

type manualTicker struct {
	d       time.Duration
	ch      chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

type manualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func newManualClock() *manualClock { return &manualClock{} }

func (c *manualClock) factory(d time.Duration) Ticker {
	t := &manualTicker{d: d, ch: make(chan time.Time)}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

// live returns the newest ticker that has not been stopped.
func (c *manualClock) live() *manualTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.tickers); n > 0 && !c.tickers[n-1].stopped.Load() {
		return c.tickers[n-1]
	}
	return nil
}

func (c *manualClock) created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// tick delivers one firing to the live ticker loop.
func (c *manualClock) tick(t *testing.T) {
	t.Helper()
	var tk *manualTicker
	require.Eventually(t, func() bool { tk = c.live(); return tk != nil }, wait, poll, "no live ticker")
	select {
	case tk.ch <- time.Now():
	case <-time.After(wait):
		t.Fatal("ticker loop did not receive tick")
	}
}
