package app

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"tickline/internal/timeline"
	logx "tickline/pkg/logx"
)

// watchdogKey is the registry key of the systemd watchdog timeline.
const watchdogKey = "tickd.watchdog"

// sdNotifier sends sd_notify states. Every call is a no-op when disabled or
// when NOTIFY_SOCKET is not set.
type sdNotifier struct {
	enabled bool
	log     logx.Logger
}

func newSDNotifier(enabled bool, log logx.Logger) *sdNotifier {
	return &sdNotifier{enabled: enabled, log: log}
}

func (n *sdNotifier) send(states ...string) {
	if n == nil || !n.enabled {
		return
	}
	state := strings.Join(states, "\n")
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Trace("sd_notify sent", logx.String("state", state))
	}
}

func (n *sdNotifier) ready(status string) { n.send(daemon.SdNotifyReady, "STATUS="+status) }
func (n *sdNotifier) reloading()          { n.send(daemon.SdNotifyReloading) }
func (n *sdNotifier) stopping()           { n.send(daemon.SdNotifyStopping) }
func (n *sdNotifier) status(s string)     { n.send("STATUS=" + s) }
func (n *sdNotifier) watchdog()           { n.send(daemon.SdNotifyWatchdog) }

// startWatchdog pings the systemd watchdog four times per WatchdogSec from
// its own loop. In the foreground a ping is only sent while the heartbeat
// timeline has fired within the last WatchdogSec, so a stalled ticker gets
// the unit restarted. A backgrounded registry stops its ticker on purpose
// and keeps the pings going.
func (a *App) startWatchdog() {
	if !a.sd.enabled {
		return
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("systemd watchdog check failed", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	every := interval / 4

	var beat atomic.Int64
	beat.Store(time.Now().UnixNano())
	a.reg.AddObserverForever(every, watchdogKey, timeline.NewObserver(func(time.Duration) {
		beat.Store(time.Now().UnixNano())
	}))

	a.sup.Go0("systemd.watchdog", func(ctx context.Context) {
		t := time.NewTicker(every)
		defer t.Stop()
		stalled := false
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				if a.reg.Snapshot().Background {
					beat.Store(now.UnixNano())
				}
				since := now.Sub(time.Unix(0, beat.Load()))
				if since >= interval {
					if !stalled {
						a.log.Warn("ticker stalled; withholding watchdog ping", logx.Duration("since_beat", since))
					}
					stalled = true
					continue
				}
				if stalled {
					a.log.Info("ticker recovered; watchdog pings resumed")
				}
				stalled = false
				a.sd.watchdog()
			}
		}
	})
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval), logx.Duration("ping_every", every))
}
