package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		" warn ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got, s)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestContextLogger checks that named loggers travel through the context and plain buffers get no colors.
func TestContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	l := NewWithWriter(&buf, zap.NewAtomicLevelAt(zapcore.DebugLevel))
	ctx := WithName(ToContext(context.Background(), l), "fwpkg")
	ctx = WithKV(ctx, "variant", "generic")

	InfoKV(ctx, "Staging", "file", "fw_upgrade.sh")
	Debug(ctx, "details")
	Infof(ctx, "Saved settings to %s", "fwpkg.yaml")

	out := buf.String()
	require.Contains(t, out, "fwpkg")
	require.Contains(t, out, "Staging")
	require.Contains(t, out, "fw_upgrade.sh")
	require.Contains(t, out, "generic")
	require.Contains(t, out, "details")
	require.Contains(t, out, "Saved settings to fwpkg.yaml")
	require.NotContains(t, out, "\x1b[")
}

// TestFromContextFallsBackToGlobal ensures a bare context yields the global logger.
func TestFromContextFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, global, FromContext(context.Background()))
}
