package logs

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesText(t *testing.T) {
	buf := new(bytes.Buffer)
	logger, err := New(Options{Writer: buf, Level: "warn"})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "tool", "terminal")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "tool=terminal")
}

func TestContextAttrs(t *testing.T) {
	buf := new(bytes.Buffer)
	logger, err := New(Options{Writer: buf, Level: "debug"})
	require.NoError(t, err)

	ctx := WithAttrs(context.Background(), slog.String("request_id", "r1"))
	ctx = WithAttrs(ctx, slog.String("route", "/v1/tasks"))
	logger.With("component", "http").DebugContext(ctx, "request")
	logger.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "component=http")
	assert.Contains(t, lines[0], "request_id=r1")
	assert.Contains(t, lines[0], "route=/v1/tasks")
	assert.NotContains(t, lines[1], "request_id")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := New(Options{Level: "loud"})
	assert.EqualError(t, err, `unknown log level "loud"`)
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
}

func TestToJournalKey(t *testing.T) {
	assert.Equal(t, "RUN_ID", toJournalKey("run_id"))
	assert.Equal(t, "LOGS_SPAN", toJournalKey("logs.span"))
}
