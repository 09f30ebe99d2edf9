package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"panic": zapcore.PanicLevel,
		"fatal": zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestContextLogger verifies that fields attached to a context reach the output.
func TestContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	l := NewWithWriter(&buf, zapcore.DebugLevel)
	ctx := ToContext(context.Background(), l)
	ctx = WithName(ctx, "deployer")
	ctx = WithKV(ctx, "host", "web-1")
	ctx = WithFields(ctx, "package", "iris", "version", "1.0.0")

	InfoKV(ctx, "release activated", "pid", 42)

	out := buf.String()
	require.Contains(t, out, "deployer")
	require.Contains(t, out, "release activated")
	require.Contains(t, out, `"host": "web-1"`)
	require.Contains(t, out, `"version": "1.0.0"`)
	require.Contains(t, out, `"pid": 42`)
}

// TestFromContextFallsBackToGlobal ensures a bare context yields the global logger.
func TestFromContextFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, global, FromContext(context.Background()))
}

// TestWithMinLevel raises the level of a context logger but never lowers it.
func TestWithMinLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ctx := ToContext(context.Background(), NewWithWriter(&buf, zapcore.InfoLevel))
	quiet := WithMinLevel(ctx, zapcore.WarnLevel)

	Info(quiet, "hidden info")
	WarnKV(quiet, "visible warning")

	loud := WithMinLevel(ctx, zapcore.DebugLevel)
	DebugKV(loud, "hidden debug")
	Info(loud, "visible info")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "visible warning")
	require.Contains(t, out, "visible info")
}

// TestSetLevelString applies known levels and falls back to info otherwise.
//
//nolint:paralleltest // Mutates the process-wide level.
func TestSetLevelString(t *testing.T) {
	t.Cleanup(func() { SetLevelString("info") })

	require.True(t, SetLevelString("warn"))
	require.Equal(t, zapcore.WarnLevel, defaultLevel.Level())

	require.False(t, SetLevelString("chatty"))
	require.Equal(t, zapcore.InfoLevel, defaultLevel.Level())
}
