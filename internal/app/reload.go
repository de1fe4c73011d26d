package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"tickline/internal/config"
	logx "tickline/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	// Track last applied config to generate a diff summary.
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig applies a validated config on top of oldCfg. Logging, the base
// tick and the timeline set are applied live; other sections need a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	if newCfg == nil {
		return
	}
	sections, attrs, timelineChanged := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.sd.reloading()
	defer a.sd.ready("config reloaded")

	fields := append([]logx.Field{logx.String("changed", joinSections(sections))}, attrs...)
	a.log.Debug("config change summary", fields...)
	if len(timelineChanged) > 0 {
		a.log.Debug("timeline config changes detected", logx.Strings("timelines", timelineChanged))
	}

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(logConfig(newCfg))
		case "timeline":
			a.reg.SetBaseTick(newCfg.Timeline.BaseTickDuration())
			if oldCfg == nil || oldCfg.Timeline.StopTimeoutDuration() != newCfg.Timeline.StopTimeoutDuration() {
				a.log.Warn("timeline.stop_timeout changed; restart required for changes to take effect")
			}
		case "dispatch", "systemd":
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		case "timelines":
			a.applyTimelines(newCfg.Timelines)
		}
	}

	a.log.Info("config reloaded", fields...)
}

// validateReload rejects a reloaded config whose log file cannot be opened,
// so a bad path keeps the current outputs instead of silently losing the
// file sink. A file that is already open is not reopened.
func (a *App) validateReload(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cfg.Logging.File.Enabled {
		return nil
	}
	path := strings.TrimSpace(cfg.Logging.File.Path)
	cur := a.logs.Config().File
	if cur.Enabled && strings.TrimSpace(cur.Path) == path {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logging.file.path: %w", err)
	}
	return f.Close()
}
