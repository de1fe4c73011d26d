package config

import (
	"sort"
	"strings"

	logx "tickline/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) structured attrs for logging, and (3) the keys of timelines that were
// added, removed or changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Timeline.BaseTickDuration() != newCfg.Timeline.BaseTickDuration() ||
		oldCfg.Timeline.StopTimeoutDuration() != newCfg.Timeline.StopTimeoutDuration() {
		changed = append(changed, "timeline")
		attrs = append(attrs,
			logx.Duration("timeline.base_tick", newCfg.Timeline.BaseTickDuration()),
			logx.Duration("timeline.stop_timeout", newCfg.Timeline.StopTimeoutDuration()),
		)
	}

	if oldCfg.Dispatch.BacklogWarnOrDefault() != newCfg.Dispatch.BacklogWarnOrDefault() {
		changed = append(changed, "dispatch")
		attrs = append(attrs, logx.Int("dispatch.backlog_warn", newCfg.Dispatch.BacklogWarnOrDefault()))
	}

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.Format != newCfg.Logging.Format ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Systemd.Notify != newCfg.Systemd.Notify {
		changed = append(changed, "systemd")
		attrs = append(attrs, logx.Bool("systemd.notify", newCfg.Systemd.Notify))
	}

	timelineChanged := diffTimelines(oldCfg.Timelines, newCfg.Timelines)
	if len(timelineChanged) > 0 {
		changed = append(changed, "timelines")
		attrs = append(attrs,
			logx.Int("timelines.changed_count", len(timelineChanged)),
			logx.Int("timelines.count", len(newCfg.Timelines)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, timelineChanged
}

// TimelineIndex maps trimmed keys to entries.
func TimelineIndex(entries []TimelineEntry) map[string]TimelineEntry {
	m := make(map[string]TimelineEntry, len(entries))
	for _, e := range entries {
		e.Key = strings.TrimSpace(e.Key)
		m[e.Key] = e
	}
	return m
}

func diffTimelines(oldL, newL []TimelineEntry) []string {
	oldM := TimelineIndex(oldL)
	newM := TimelineIndex(newL)

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for key := range set {
		o, inOld := oldM[key]
		n, inNew := newM[key]
		if inOld != inNew || o.Paused != n.Paused || !samePeriod(o, n) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// samePeriod compares parsed periods so "1s" and "@every 1s" are equal.
func samePeriod(a, b TimelineEntry) bool {
	pa, errA := a.PeriodDuration()
	pb, errB := b.PeriodDuration()
	if errA != nil || errB != nil {
		return strings.TrimSpace(a.Period) == strings.TrimSpace(b.Period)
	}
	return pa == pb
}
