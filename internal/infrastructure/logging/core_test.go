package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCoreShipsZapEntries(t *testing.T) {
	remote, tr := newTestRemote(t, RemoteLoggerConfig{})
	logger := zap.New(NewCore(remote, zap.InfoLevel)).Named("orders").With(zap.String("region", "eu"))

	logger.Debug("filtered")
	logger.Warn("slow query",
		zap.Int("rows", 12),
		zap.String(TraceIDField, "0af7651916cd43dd8448eb211c80319c"),
		zap.String(SpanIDField, "b7ad6b7169203331"),
	)
	require.NoError(t, remote.Flush(context.Background()))

	entries := tr.entries(t)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "warn", e["level"])
	assert.Equal(t, "slow query", e["message"])
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", e["traceId"])
	assert.Equal(t, "b7ad6b7169203331", e["spanId"])

	metadata := e["metadata"].(map[string]any)
	assert.Equal(t, "eu", metadata["region"])
	assert.Equal(t, float64(12), metadata["rows"])
	assert.Equal(t, "orders", metadata["logger"])
	assert.NotContains(t, metadata, TraceIDField)
}

func TestCoreWithDoesNotShareFields(t *testing.T) {
	remote, tr := newTestRemote(t, RemoteLoggerConfig{})
	base := zap.New(NewCore(remote, nil))

	base.With(zap.String("a", "1")).Info("first")
	base.With(zap.String("b", "2")).Info("second")
	require.NoError(t, remote.Flush(context.Background()))

	entries := tr.entries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, map[string]any{"a": "1"}, entries[0]["metadata"])
	assert.Equal(t, map[string]any{"b": "2"}, entries[1]["metadata"])
}
