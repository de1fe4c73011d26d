package app

import (
	"context"
	"os"
	"os/signal"

	logx "tickline/pkg/logx"
)

// startSignalLoop maps the platform's app-state signals onto SetBackground.
func (a *App) startSignalLoop() {
	if backgroundSignal == nil || foregroundSignal == nil {
		return
	}
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, backgroundSignal, foregroundSignal)
	a.sup.Go0("appstate.signals", func(c context.Context) {
		defer signal.Stop(ch)
		for {
			select {
			case <-c.Done():
				return
			case sig := <-ch:
				a.handleSignal(sig)
			}
		}
	})
}

func (a *App) handleSignal(sig os.Signal) {
	switch sig {
	case backgroundSignal:
		a.SetBackground(true)
	case foregroundSignal:
		a.SetBackground(false)
	default:
		a.log.Debug("signal ignored", logx.String("signal", sig.String()))
	}
}
