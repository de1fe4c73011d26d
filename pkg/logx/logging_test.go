package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, b *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestJSONLoggerFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "info").With(String("comp", "timeline"))

	require.False(t, log.Enabled(LevelDebug))
	require.True(t, log.Enabled(LevelWarn))

	log.Debug("hidden")
	log.Info("ticker started", Duration("interval", 16*time.Millisecond), Bool("ok", true), Err(errors.New("boom")))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	require.Equal(t, "ticker started", lines[0]["message"])
	require.Equal(t, "timeline", lines[0]["comp"])
	require.Equal(t, true, lines[0]["ok"])
	require.Equal(t, "boom", lines[0]["err"])
	require.Contains(t, lines[0]["caller"], "logging_test.go")
}

func TestWithDoesNotAliasParentFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewJSON(&buf, "debug").With(String("a", "1"))
	_ = base.With(String("b", "2"))
	base.Info("x")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	require.NotContains(t, lines[0], "b")
}

func TestZeroLoggerIsNop(t *testing.T) {
	var l Logger
	require.True(t, l.IsZero())
	l.Error("dropped")
	require.False(t, Nop().IsZero())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelWarn, parseLevel(" warning ", LevelInfo))
	require.Equal(t, LevelTrace, parseLevel("trace", LevelInfo))
	require.Equal(t, LevelInfo, parseLevel("nonsense", LevelInfo))
}

func TestSampledCapsBurst(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").Sampled(2, time.Hour).With(String("timeline", "k"))
	for i := 0; i < 10; i++ {
		log.Debug("timeline fired")
	}
	require.Len(t, decodeLines(t, &buf), 2)
}

func TestServiceApplyWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickd.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})

	log.Debug("hidden")
	log.Info("kept", Int("n", 1))

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("now visible")
	require.Equal(t, "debug", svc.Config().Level)
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := decodeLines(t, bytes.NewBuffer(b))
	require.Len(t, lines, 2)
	require.Equal(t, "kept", lines[0]["message"])
	require.Equal(t, "now visible", lines[1]["message"])
}
