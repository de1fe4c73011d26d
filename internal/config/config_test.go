package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
timeline:
  base_tick: 10ms
  stop_timeout: 2s
dispatch:
  backlog_warn: 64
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ./tickd.log
systemd:
  notify: true
timelines:
  - key: heartbeat
    period: "1s"
  - key: report
    period: "@every 5s"
    paused: true
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("tickd.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 10*time.Millisecond, cfg.Timeline.BaseTickDuration())
	assert.Equal(t, 2*time.Second, cfg.Timeline.StopTimeoutDuration())
	assert.Equal(t, 64, cfg.Dispatch.BacklogWarnOrDefault())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Systemd.Notify)
	require.Len(t, cfg.Timelines, 2)
	assert.True(t, cfg.Timelines[1].Paused)

	p, err := cfg.Timelines[1].PeriodDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, p)
}

func TestDefaultsWhenOmitted(t *testing.T) {
	cfg, err := Decode("tickd.json", []byte(`{"logging":{"level":"info"}}`))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, DefaultBaseTick, cfg.Timeline.BaseTickDuration())
	assert.Equal(t, DefaultStopTimeout, cfg.Timeline.StopTimeoutDuration())
	assert.Equal(t, DefaultBacklogWarn, cfg.Dispatch.BacklogWarnOrDefault())
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode("tickd.yaml", []byte("timeline:\n  base_tik: 10ms\n"))
	require.Error(t, err)

	_, err = Decode("tickd.json", []byte(`{"telegram":{}}`))
	require.Error(t, err)
}

func TestDecodeSniffsFormatWithoutExtension(t *testing.T) {
	cfg, err := Decode("tickd.conf", []byte(`{"systemd":{"notify":true}}`))
	require.NoError(t, err)
	assert.True(t, cfg.Systemd.Notify)

	cfg, err = Decode("tickd.conf", []byte("systemd:\n  notify: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Systemd.Notify)

	cfg, err = Decode("tickd.yaml", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Timelines)
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	_, err := Decode("tickd.json", []byte(`{} {}`))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{name: "empty", cfg: Config{}, ok: true},
		{name: "bad base tick", cfg: Config{Timeline: TimelineConfig{BaseTick: "fast"}}},
		{name: "negative stop timeout", cfg: Config{Timeline: TimelineConfig{StopTimeout: "-1s"}}},
		{name: "negative backlog", cfg: Config{Dispatch: DispatchConfig{BacklogWarn: -1}}},
		{name: "unknown level", cfg: Config{Logging: LoggingConfig{Level: "loud"}}},
		{name: "unknown format", cfg: Config{Logging: LoggingConfig{Format: "xml"}}},
		{name: "file without path", cfg: Config{Logging: LoggingConfig{File: LoggingFile{Enabled: true}}}},
		{name: "missing key", cfg: Config{Timelines: []TimelineEntry{{Period: "1s"}}}},
		{name: "duplicate key", cfg: Config{Timelines: []TimelineEntry{{Key: "a", Period: "1s"}, {Key: " a ", Period: "2s"}}}},
		{name: "reserved key", cfg: Config{Timelines: []TimelineEntry{{Key: "tickd.watchdog", Period: "1s"}}}},
		{name: "calendar period", cfg: Config{Timelines: []TimelineEntry{{Key: "a", Period: "@daily"}}}},
		{name: "valid timelines", cfg: Config{Timelines: []TimelineEntry{{Key: "a", Period: "00:05"}, {Key: "b", Period: "interval:300ms"}}}, ok: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.cfg)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := &Config{
		Logging:   LoggingConfig{Level: "info"},
		Timelines: []TimelineEntry{{Key: "a", Period: "1s"}, {Key: "b", Period: "2s"}, {Key: "c", Period: "3s"}},
	}
	newCfg := &Config{
		Timeline:  TimelineConfig{BaseTick: "16ms"},
		Logging:   LoggingConfig{Level: "debug"},
		Timelines: []TimelineEntry{{Key: "a", Period: "@every 1s"}, {Key: "b", Period: "2s", Paused: true}, {Key: "d", Period: "4s"}},
	}

	changed, attrs, keys := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"logging", "timelines"}, changed, "16ms is the default base tick")
	assert.NotEmpty(t, attrs)
	assert.Equal(t, []string{"b", "c", "d"}, keys)

	changed, _, keys = SummarizeConfigChange(newCfg, newCfg)
	assert.Empty(t, changed)
	assert.Empty(t, keys)
}

func TestReloadSkipsInvalidAndUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickd.yaml")
	writeFile(t, path, sampleYAML)

	m := NewConfigManager(path)
	first, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(4)

	ctx := context.Background()
	require.False(t, m.reload(ctx), "unchanged content")

	writeFile(t, path, "timeline: [")
	require.False(t, m.reload(ctx), "parse error")
	require.Same(t, first, m.Get())

	writeFile(t, path, "timelines:\n  - key: x\n    period: \"2s\"\n")
	m.SetValidator(func(context.Context, *Config) error { return errors.New("nope") })
	require.False(t, m.reload(ctx), "validator rejects")

	m.SetValidator(nil)
	require.True(t, m.reload(ctx))
	got := <-sub
	require.Len(t, got.Timelines, 1)
	require.Same(t, got, m.Get())

	m.Unsubscribe(sub)
	_, open := <-sub
	require.False(t, open)
}

func TestPublishKeepsLatestForSlowSubscriber(t *testing.T) {
	m := NewConfigManager("unused.yaml")
	sub := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	require.Same(t, b, <-sub)
}

func TestWatchPublishesOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickd.yaml")
	writeFile(t, path, sampleYAML)

	m := NewConfigManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// The watcher may not be registered yet; keep rewriting until it notices.
	updated := "logging:\n  level: warn\n"
	var got *Config
	require.Eventually(t, func() bool {
		writeFile(t, path, updated)
		select {
		case got = <-sub:
			return true
		default:
			return false
		}
	}, 10*time.Second, 300*time.Millisecond)
	require.Equal(t, "warn", got.Logging.Level)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
