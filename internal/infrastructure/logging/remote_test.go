package logging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/loggy-dev/loggy-go/internal/shared/id"
)

type captureTransport struct {
	mu      sync.Mutex
	bodies  [][]byte
	failing bool
}

func (c *captureTransport) Send(_ context.Context, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("unavailable")
	}
	c.bodies = append(c.bodies, append([]byte(nil), body...))
	return nil
}

func (c *captureTransport) entries(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []map[string]any
	for _, b := range c.bodies {
		var payload map[string][]map[string]any
		require.NoError(t, json.Unmarshal(b, &payload))
		out = append(out, payload[LogsSignal]...)
	}
	return out
}

func newTestRemote(t *testing.T, cfg RemoteLoggerConfig) (*RemoteLogger, *captureTransport) {
	t.Helper()
	tr := &captureTransport{}
	cfg.Transport = tr
	if cfg.Service == "" {
		cfg.Service = "billing"
	}
	if cfg.Clock == nil {
		cfg.Clock = clockz.NewFakeClock()
	}
	cfg.FlushInterval = time.Hour

	remote, err := NewRemoteLogger(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = remote.Close(context.Background()) })
	return remote, tr
}

func TestNewRemoteLoggerRequiresTransport(t *testing.T) {
	_, err := NewRemoteLogger(RemoteLoggerConfig{Service: "x"})
	assert.Error(t, err)
}

func TestRemoteLoggerEntryShape(t *testing.T) {
	remote, tr := newTestRemote(t, RemoteLoggerConfig{
		Environment: "prod",
		Tags:        []string{"payments"},
		Correlator: func(context.Context) (string, string) {
			return "0af7651916cd43dd8448eb211c80319c", "b7ad6b7169203331"
		},
	})

	remote.Info(context.Background(), "charge captured", map[string]any{"amount": 12.5})
	require.NoError(t, remote.Flush(context.Background()))

	entries := tr.entries(t)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "info", e["level"])
	assert.Equal(t, "charge captured", e["message"])
	assert.Equal(t, "billing", e["service"])
	assert.Equal(t, "prod", e["environment"])
	assert.Equal(t, []any{"payments"}, e["tags"])
	assert.Equal(t, map[string]any{"amount": 12.5}, e["metadata"])
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", e["traceId"])
	assert.Equal(t, "b7ad6b7169203331", e["spanId"])
	assert.True(t, id.IsValidRecordID(e["id"].(string)))
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, e["timestamp"])
}

func TestRemoteLoggerLevels(t *testing.T) {
	remote, tr := newTestRemote(t, RemoteLoggerConfig{Level: zapcore.WarnLevel})
	ctx := context.Background()

	remote.Debug(ctx, "d", nil)
	remote.Info(ctx, "i", nil)
	remote.Warn(ctx, "w", nil)
	remote.Error(ctx, "e", nil)
	require.NoError(t, remote.Flush(ctx))

	entries := tr.entries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "error", entries[1]["level"])
	assert.NotContains(t, entries[0], "metadata")
}

func TestRemoteLoggerDropsUnserializableMetadata(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	remote, tr := newTestRemote(t, RemoteLoggerConfig{Logger: zap.New(core)})

	remote.Error(context.Background(), "still sent", map[string]any{"ch": make(chan int)})
	require.NoError(t, remote.Flush(context.Background()))

	entries := tr.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "still sent", entries[0]["message"])
	assert.NotContains(t, entries[0], "metadata")
	assert.Equal(t, 1, logs.FilterMessage("dropping unserializable log metadata").Len())
}

func TestRemoteLoggerRequeuesOnFailure(t *testing.T) {
	remote, tr := newTestRemote(t, RemoteLoggerConfig{})
	tr.failing = true

	remote.Info(context.Background(), "keep me", nil)
	assert.Error(t, remote.Flush(context.Background()))
	assert.Equal(t, 1, remote.Pending())

	tr.mu.Lock()
	tr.failing = false
	tr.mu.Unlock()

	require.NoError(t, remote.Flush(context.Background()))
	assert.Equal(t, 0, remote.Pending())
	assert.Len(t, tr.entries(t), 1)
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "debug", levelName(zapcore.DebugLevel))
	assert.Equal(t, "info", levelName(zapcore.InfoLevel))
	assert.Equal(t, "warn", levelName(zapcore.WarnLevel))
	assert.Equal(t, "error", levelName(zapcore.ErrorLevel))
	assert.Equal(t, "error", levelName(zapcore.FatalLevel))
}
