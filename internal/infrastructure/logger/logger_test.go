package logger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cremosos/core/internal/infrastructure/config"
)

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestRequestScopedFields(t *testing.T) {
	l, logs := observed(zapcore.InfoLevel)

	l.WithRequestID("req-42").WithUserID("user_7").Infow("HTTP request", "status", 200)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "user_7", fields["user_id"])
	assert.EqualValues(t, 200, fields["status"])
}

func TestLogStorageOperation(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)

	l.LogStorageOperation("insert", "products", "prod1", 3*time.Millisecond, nil)
	l.LogStorageOperation("write_all", "orders", "", time.Millisecond, errors.New("disk full"))

	entries := logs.All()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	assert.Equal(t, "products", first["collection"])
	assert.Equal(t, "prod1", first["record_id"])
	assert.NotContains(t, first, "error")

	second := entries[1].ContextMap()
	assert.NotContains(t, second, "record_id")
	assert.Equal(t, "disk full", second["error"])
}

func TestLogSecurityEvent(t *testing.T) {
	l, logs := observed(zapcore.InfoLevel)

	l.LogSecurityEvent("invalid_token", "", "10.0.0.1", map[string]interface{}{"endpoint": "/api/cart"})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "invalid_token", entry.ContextMap()["security_event"])
	assert.Equal(t, "/api/cart", entry.ContextMap()["endpoint"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LoggerConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)

	l, err := New(config.LoggerConfig{Level: "warn", Format: "console"})
	require.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zapcore.InfoLevel))
}
