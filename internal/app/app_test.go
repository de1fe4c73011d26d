package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickline/internal/config"
)

const testConfig = `
timeline:
  base_tick: 1ms
logging:
  level: error
  console: false
systemd:
  notify: false
timelines:
  - key: fast
    period: 5ms
  - key: held
    period: 5ms
    paused: true
`

func newTestApp(t *testing.T, body string) *App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	a, err := NewApp(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.reg.Close(context.Background()) })
	return a
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timelines:\n  - key: x\n    period: soon\n"), 0o644))
	_, err := NewApp(path)
	require.Error(t, err)
}

func TestAppRunsConfiguredTimelines(t *testing.T) {
	a := newTestApp(t, testConfig)
	require.NoError(t, a.Start(context.Background()))

	reg := a.Registry()
	require.True(t, reg.HasObservers(5*time.Millisecond, "fast"))
	require.True(t, reg.HasObservers(5*time.Millisecond, "held"))
	require.Equal(t, time.Millisecond, reg.BaseTick())

	require.Eventually(t, func() bool {
		return a.Timelines()[0].Fires >= 2
	}, 2*time.Second, time.Millisecond)

	st := a.Timelines()
	require.Len(t, st, 2)
	assert.Equal(t, "fast", st[0].Key)
	assert.Equal(t, "held", st[1].Key)
	assert.True(t, st[1].Paused)
	assert.Zero(t, st[1].Fires)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopAppStop))
	require.Empty(t, reg.Periods())
	require.False(t, reg.Snapshot().TickerRunning)

	select {
	case <-a.Done():
	default:
		t.Fatal("app context not canceled")
	}
	require.NoError(t, a.Err())
}

func TestApplyConfigReconcilesTimelines(t *testing.T) {
	a := newTestApp(t, testConfig)
	oldCfg := a.cfgm.Get()
	a.applyTimelines(oldCfg.Timelines)
	reg := a.Registry()

	newCfg := &config.Config{
		Timeline: config.TimelineConfig{BaseTick: "2ms"},
		Logging:  oldCfg.Logging,
		Timelines: []config.TimelineEntry{
			{Key: "held", Period: "10ms"},
			{Key: "added", Period: "@every 1s", Paused: true},
		},
	}
	require.NoError(t, config.Validate(newCfg))
	a.applyConfig(oldCfg, newCfg)

	assert.Equal(t, 2*time.Millisecond, reg.BaseTick())
	assert.False(t, reg.HasObservers(5*time.Millisecond, "fast"))
	assert.False(t, reg.HasObservers(5*time.Millisecond, "held"))
	assert.True(t, reg.HasObservers(10*time.Millisecond, "held"))
	assert.True(t, reg.HasObservers(time.Second, "added"))
	assert.Equal(t, []time.Duration{10 * time.Millisecond, time.Second}, reg.Periods())

	si, ok := reg.Snapshot().Subscription(time.Second, "added")
	require.True(t, ok)
	assert.False(t, si.Running)
	si, ok = reg.Snapshot().Subscription(10*time.Millisecond, "held")
	require.True(t, ok)
	assert.True(t, si.Running)

	st := a.Timelines()
	require.Len(t, st, 2)
	assert.Equal(t, "added", st[0].Key)
	assert.Equal(t, "held", st[1].Key)
}

func TestApplyConfigUnpausesInPlace(t *testing.T) {
	a := newTestApp(t, testConfig)
	oldCfg := a.cfgm.Get()
	a.applyTimelines(oldCfg.Timelines)

	newCfg := *oldCfg
	newCfg.Timelines = []config.TimelineEntry{{Key: "fast", Period: "5ms"}, {Key: "held", Period: "5ms"}}
	a.applyConfig(oldCfg, &newCfg)

	si, ok := a.Registry().Snapshot().Subscription(5*time.Millisecond, "held")
	require.True(t, ok)
	require.True(t, si.Running)
	require.False(t, a.Timelines()[1].Paused)
}

func TestAppStateSignals(t *testing.T) {
	if backgroundSignal == nil {
		t.Skip("no app-state signals on this platform")
	}
	a := newTestApp(t, testConfig)
	a.applyTimelines(a.cfgm.Get().Timelines)
	reg := a.Registry()
	require.True(t, reg.Snapshot().TickerRunning)

	a.handleSignal(backgroundSignal)
	snap := reg.Snapshot()
	require.True(t, snap.Background)
	require.False(t, snap.TickerRunning)
	require.True(t, reg.HasObservers(5*time.Millisecond, "fast"))

	a.handleSignal(foregroundSignal)
	snap = reg.Snapshot()
	require.False(t, snap.Background)
	require.True(t, snap.TickerRunning)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	a := newTestApp(t, testConfig)
	require.NoError(t, a.Stop(context.Background(), StopUnknown))
}

func TestValidateReloadChecksLogFile(t *testing.T) {
	a := newTestApp(t, testConfig)
	cfg := *a.cfgm.Get()
	require.NoError(t, a.validateReload(context.Background(), &cfg))

	cfg.Logging.File = config.LoggingFile{Enabled: true, Path: filepath.Join(t.TempDir(), "missing", "tickd.log")}
	require.Error(t, a.validateReload(context.Background(), &cfg))

	cfg.Logging.File.Path = filepath.Join(t.TempDir(), "tickd.log")
	require.NoError(t, a.validateReload(context.Background(), &cfg))
	_, err := os.Stat(cfg.Logging.File.Path)
	require.NoError(t, err)
}

func TestReloadWithUnwritableLogFileIsRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tickd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	a, err := NewApp(path)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopAppStop)
	})

	rejected := `
timeline:
  base_tick: 1ms
logging:
  level: error
  console: false
  file:
    enabled: true
    path: ` + filepath.Join(dir, "missing", "tickd.log") + `
timelines:
  - key: late
    period: 7ms
`
	require.NoError(t, os.WriteFile(path, []byte(rejected), 0o644))
	time.Sleep(600 * time.Millisecond)
	require.False(t, a.Registry().HasObservers(7*time.Millisecond, "late"))

	accepted := strings.Replace(rejected, filepath.Join(dir, "missing", "tickd.log"), filepath.Join(dir, "tickd.log"), 1)
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(accepted), 0o644)
		return a.Registry().HasObservers(7*time.Millisecond, "late")
	}, 5*time.Second, 100*time.Millisecond)
}
