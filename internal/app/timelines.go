package app

import (
	"sort"
	"sync/atomic"
	"time"

	"tickline/internal/config"
	"tickline/internal/timeline"
	logx "tickline/pkg/logx"
)

// ownedTimeline is a forever subscription declared in the config file.
type ownedTimeline struct {
	key    string
	period time.Duration
	paused bool
	obs    *timeline.Observer
	fires  atomic.Uint64
}

// TimelineStatus describes one config-owned timeline.
type TimelineStatus struct {
	Key    string
	Period time.Duration
	Paused bool
	Fires  uint64
}

// Timelines lists the config-owned timelines sorted by key.
func (a *App) Timelines() []TimelineStatus {
	a.mu.Lock()
	out := make([]TimelineStatus, 0, len(a.owned))
	for _, t := range a.owned {
		out = append(out, TimelineStatus{Key: t.key, Period: t.period, Paused: t.paused, Fires: t.fires.Load()})
	}
	a.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// applyTimelines reconciles the registry with the configured entries:
// removed keys are unregistered, period changes re-register, and the pause
// flag is applied to every entry.
func (a *App) applyTimelines(entries []config.TimelineEntry) {
	desired := config.TimelineIndex(entries)

	a.mu.Lock()
	defer a.mu.Unlock()

	for key, cur := range a.owned {
		e, ok := desired[key]
		if ok {
			if p, err := e.PeriodDuration(); err == nil && p == cur.period {
				continue
			}
		}
		a.reg.RemoveKeyObserver(key, cur.obs)
		delete(a.owned, key)
		a.log.Info("timeline removed", logx.String("key", key), logx.Duration("period", cur.period))
	}

	for key, e := range desired {
		period, err := e.PeriodDuration()
		if err != nil {
			a.log.Warn("timeline skipped", logx.String("key", key), logx.Err(err))
			continue
		}
		cur := a.owned[key]
		if cur == nil {
			cur = a.newOwned(key, period)
			a.owned[key] = cur
			a.reg.AddObserverForever(period, key, cur.obs)
			a.log.Info("timeline added", logx.String("key", key), logx.Duration("period", period),
				logx.Int64("ticks_per_fire", timeline.TicksPerFire(period, a.reg.BaseTick())))
		}
		if e.Paused {
			a.reg.Pause(period, key)
		} else {
			a.reg.Resume(period, key)
		}
		if cur.paused != e.Paused {
			a.log.Info("timeline pause changed", logx.String("key", key), logx.Bool("paused", e.Paused))
		}
		cur.paused = e.Paused
	}
}

func (a *App) newOwned(key string, period time.Duration) *ownedTimeline {
	t := &ownedTimeline{key: key, period: period}
	log := a.log.With(logx.String("timeline", key)).Sampled(5, time.Second)
	t.obs = timeline.NewObserver(func(p time.Duration) {
		n := t.fires.Add(1)
		log.Debug("timeline fired", logx.Duration("period", p), logx.Uint64("count", n))
	})
	return t
}
