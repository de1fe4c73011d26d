package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultBaseTick    = 16 * time.Millisecond
	DefaultStopTimeout = time.Second
	DefaultBacklogWarn = 1024
)

type Config struct {
	Timeline TimelineConfig `json:"timeline"`
	Dispatch DispatchConfig `json:"dispatch"`
	Logging  LoggingConfig  `json:"logging"`
	Systemd  SystemdConfig  `json:"systemd"`

	// Timelines are forever subscriptions owned by the daemon itself.
	Timelines []TimelineEntry `json:"timelines,omitempty"`
}

// TimelineConfig controls the global ticker.
//
// All durations are Go duration strings (e.g. "16ms", "1s").
//
// Defaults (when fields are omitted/zero):
//   - base_tick: "16ms"
//   - stop_timeout: "1s"
type TimelineConfig struct {
	BaseTick    string `json:"base_tick,omitempty"`
	StopTimeout string `json:"stop_timeout,omitempty"`
}

func (c TimelineConfig) BaseTickDuration() time.Duration {
	d, err := ParseDurationOrDefault("timeline.base_tick", c.BaseTick, DefaultBaseTick)
	if err != nil {
		return DefaultBaseTick
	}
	return d
}

func (c TimelineConfig) StopTimeoutDuration() time.Duration {
	d, err := ParseDurationOrDefault("timeline.stop_timeout", c.StopTimeout, DefaultStopTimeout)
	if err != nil {
		return DefaultStopTimeout
	}
	return d
}

// DispatchConfig controls the delivery queue. BacklogWarn is the pending
// item count above which a warning is logged; 0 means the default.
type DispatchConfig struct {
	BacklogWarn int `json:"backlog_warn,omitempty"`
}

func (c DispatchConfig) BacklogWarnOrDefault() int {
	if c.BacklogWarn <= 0 {
		return DefaultBacklogWarn
	}
	return c.BacklogWarn
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	// Format is "console" (default) or "json".
	Format string      `json:"format,omitempty"`
	File   LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SystemdConfig controls sd_notify integration. It is a no-op when the
// process is not started by systemd.
type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// TimelineEntry is one daemon-owned timeline.
//
// Period accepts a Go duration ("1s"), HH:MM ("00:05") or "@every 5s", with
// an optional "interval:" or "every:" prefix.
type TimelineEntry struct {
	Key    string `json:"key"`
	Period string `json:"period"`
	Paused bool   `json:"paused,omitempty"`
}

// ParseDurationField parses an optional, non-negative Go duration. Empty
// means zero. path is used in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
