package config

import (
	"fmt"
	"strings"
	"time"

	"tickline/internal/timeline"
)

// ReservedKeyPrefix marks timeline keys owned by the daemon itself.
const ReservedKeyPrefix = "tickd."

var logLevels = map[string]bool{"": true, "trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}

// Validate checks a parsed config. It does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := ParseDurationField("timeline.base_tick", cfg.Timeline.BaseTick); err != nil {
		return err
	}
	if _, err := ParseDurationField("timeline.stop_timeout", cfg.Timeline.StopTimeout); err != nil {
		return err
	}
	if cfg.Dispatch.BacklogWarn < 0 {
		return fmt.Errorf("dispatch.backlog_warn: must be >= 0")
	}
	if !logLevels[strings.ToLower(strings.TrimSpace(cfg.Logging.Level))] {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: must be console or json, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		return fmt.Errorf("logging.file.path: required when file logging is enabled")
	}

	seen := make(map[string]int, len(cfg.Timelines))
	for i, e := range cfg.Timelines {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			return fmt.Errorf("timelines[%d].key: required", i)
		}
		if strings.HasPrefix(key, ReservedKeyPrefix) {
			return fmt.Errorf("timelines[%d].key: prefix %q is reserved", i, ReservedKeyPrefix)
		}
		if j, dup := seen[key]; dup {
			return fmt.Errorf("timelines[%d].key: %q already used by timelines[%d]", i, key, j)
		}
		seen[key] = i
		if _, err := e.PeriodDuration(); err != nil {
			return fmt.Errorf("timelines[%d].period: %w", i, err)
		}
	}
	return nil
}

func (e TimelineEntry) PeriodDuration() (time.Duration, error) {
	return timeline.ParsePeriod(e.Period)
}
