package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tickline/internal/config"
	"tickline/internal/eventbus"
	"tickline/internal/runtime/supervisor"
	"tickline/internal/timeline"
	logx "tickline/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	reg  *timeline.Registry
	sd   *sdNotifier

	mu    sync.Mutex
	owned map[string]*ownedTimeline
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logConfig(cfg))
	bus := eventbus.New()

	reg := timeline.New(
		timeline.WithBaseTick(cfg.Timeline.BaseTickDuration()),
		timeline.WithStopTimeout(cfg.Timeline.StopTimeoutDuration()),
		timeline.WithBacklogWarn(cfg.Dispatch.BacklogWarnOrDefault()),
		timeline.WithLogger(log.With(logx.String("comp", "timeline"))),
		timeline.WithBus(bus),
	)

	return &App{
		cfgm:  cfgm,
		log:   log.With(logx.String("comp", "app")),
		logs:  logSvc,
		bus:   bus,
		reg:   reg,
		sd:    newSDNotifier(cfg.Systemd.Notify, log.With(logx.String("comp", "systemd"))),
		owned: map[string]*ownedTimeline{},
	}, nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Format:  cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// Registry exposes the process-wide timeline registry.
func (a *App) Registry() *timeline.Registry { return a.reg }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validateReload)

	cfg := a.cfgm.Get()
	a.applyTimelines(cfg.Timelines)
	a.reg.Start()
	a.startWatchdog()

	// Lifecycle events only; fire events are too frequent for the log.
	events, unsub := a.bus.Subscribe(64, "timeline.ticker.", "timeline.bucket.")
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if !a.log.Enabled(logx.LevelDebug) {
					continue
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})

	a.startSignalLoop()

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sd.ready(fmt.Sprintf("ticking %d timeline(s)", len(cfg.Timelines)))
	a.log.Info("app started",
		logx.String("config", a.cfgm.Path()),
		logx.Duration("base_tick", a.reg.BaseTick()),
		logx.Int("timelines", len(cfg.Timelines)),
	)
	return nil
}

// SetBackground forwards a host visibility change to the registry.
func (a *App) SetBackground(inBackground bool) {
	a.reg.OnAppStateChanged(inBackground)
	if inBackground {
		a.sd.status("background: ticker suspended")
		a.log.Info("entered background; ticker suspended")
	} else {
		a.sd.status("foreground")
		a.log.Info("entered foreground; ticker resumed")
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.stopping()

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	snap := a.reg.Snapshot()
	a.step(ctx, "timeline", 2*time.Second, a.reg.Close)
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	sup := a.sup.Snapshot()
	for _, g := range sup.Goroutines {
		if g.Active > 0 {
			a.log.Warn("goroutine still running after stop", logx.String("name", g.Name), logx.Int64("active", g.Active))
		}
	}
	a.log.Info("stopped",
		logx.Uint64("ticks", snap.Ticks),
		logx.Uint64("fires", snap.Fires),
		logx.Uint64("dispatch_panics", snap.Dispatch.Panics),
		logx.Uint64("goroutines_started", sup.Counters.Started),
	)
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	// respect the caller's deadline; never extend it
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}

func joinSections(sections []string) string { return strings.Join(sections, ",") }
