package timeline

import (
	"context"
	"sync"
	"time"

	rtsup "tickline/internal/runtime/supervisor"
	logx "tickline/pkg/logx"
)

// DefaultBaseTick is the base tick used when none is configured.
const DefaultBaseTick = 16 * time.Millisecond

// Ticker is a repeating tick source.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// globalTicker is the single background loop driving the registry. Each
// firing runs onTick to completion before the next one is read, so passes
// never overlap.
type globalTicker struct {
	factory  TickerFactory
	onTick   func()
	log      logx.Logger
	stopWait time.Duration
	publish  func(typ string, data any)

	mu        sync.Mutex
	interval  time.Duration
	sup       *rtsup.Supervisor // non-nil while running
	suspended bool
}

func (g *globalTicker) running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sup != nil
}

func (g *globalTicker) isSuspended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.suspended
}

// start is idempotent. It does nothing while the ticker is suspended. The
// loop is registered before g.mu is released so a concurrent stop always
// waits for it.
func (g *globalTicker) start() {
	g.mu.Lock()
	if g.sup != nil || g.suspended {
		g.mu.Unlock()
		return
	}
	interval := g.interval
	sup := rtsup.New(context.Background(), rtsup.WithLogger(g.log))
	// A panic inside a pass restarts the loop instead of silently stopping time.
	sup.GoRestart("timeline.ticker", func(ctx context.Context) error {
		t := g.factory(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C():
				g.onTick()
			}
		}
	}, rtsup.WithRestartBackoff(interval, time.Second))
	g.sup = sup
	g.mu.Unlock()

	g.log.Info("ticker started", logx.Duration("interval", interval))
	g.publish(EventTickerStarted, TickerEvent{Interval: interval})
}

// stop cancels the loop and waits for it, bounded by stopWait. It never
// fails: a loop that does not exit in time is logged and abandoned.
func (g *globalTicker) stop() {
	g.mu.Lock()
	sup := g.sup
	g.sup = nil
	interval := g.interval
	g.mu.Unlock()
	if sup == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.stopWait)
	defer cancel()
	if err := sup.Stop(ctx); err != nil {
		g.log.Warn("ticker stop incomplete", logx.Err(err))
	}
	g.log.Info("ticker stopped", logx.Duration("interval", interval))
	g.publish(EventTickerStopped, TickerEvent{Interval: interval})
}

func (g *globalTicker) setSuspended(on bool) {
	g.mu.Lock()
	g.suspended = on
	g.mu.Unlock()
	if on {
		g.stop()
	} else {
		g.start()
	}
}

// setInterval changes the tick interval, restarting a running loop.
func (g *globalTicker) setInterval(d time.Duration) {
	g.mu.Lock()
	if d <= 0 || d == g.interval {
		g.mu.Unlock()
		return
	}
	g.interval = d
	running := g.sup != nil
	g.mu.Unlock()

	if running {
		g.stop()
		g.start()
	}
}
