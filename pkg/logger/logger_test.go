package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Levels(t *testing.T) {
	assert.True(t, New("debug").Core().Enabled(zapcore.DebugLevel))
	assert.False(t, New("info").Core().Enabled(zapcore.DebugLevel))
	assert.False(t, New("warn").Core().Enabled(zapcore.InfoLevel))
	assert.True(t, New("bogus").Core().Enabled(zapcore.InfoLevel))
	assert.False(t, New("bogus").Core().Enabled(zapcore.DebugLevel))
	assert.True(t, NewWithFormat("warn", "console").Core().Enabled(zapcore.WarnLevel))
}

func TestContextLogger_WithContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cl := NewContextLogger(zap.New(core))

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithIngressID(ctx, "ing-9")

	cl.LogRequest(ctx, "POST", "/mjpeg_input", 200, 12)
	cl.LogError(context.Background(), errors.New("boom"), "ingress failed")

	entries := logs.All()
	assert.Len(t, entries, 2)

	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "ing-9", fields["ingress_id"])
	assert.Equal(t, "/mjpeg_input", fields["path"])
	assert.NotContains(t, fields, "trace_id")

	assert.Equal(t, "ingress failed", entries[1].Message)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	assert.Equal(t, "req-1", RequestID(ctx))
}
