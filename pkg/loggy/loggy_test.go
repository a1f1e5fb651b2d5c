package loggy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/config"
	"github.com/loggy-dev/loggy-go/internal/infrastructure/transport"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type ingestServer struct {
	*httptest.Server

	mu       sync.Mutex
	payloads map[string][]map[string]json.RawMessage
	headers  []http.Header
	priv     []byte
}

func newIngestServer(t *testing.T, privPEM []byte) *ingestServer {
	t.Helper()
	s := &ingestServer{payloads: make(map[string][]map[string]json.RawMessage), priv: privPEM}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *ingestServer) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if r.Header.Get("Content-Type") == transport.ContentTypeEncrypted {
		var env transport.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		key, err := transport.ParsePrivateKey(s.priv)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if body, err = transport.Decrypt(&env, key); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.payloads[r.URL.Path] = append(s.payloads[r.URL.Path], payload)
	s.headers = append(s.headers, r.Header.Clone())
	s.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (s *ingestServer) records(t *testing.T, path, key string) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []map[string]any
	for _, p := range s.payloads[path] {
		var batch []map[string]any
		require.NoError(t, json.Unmarshal(p[key], &batch))
		out = append(out, batch...)
	}
	return out
}

func remoteConfig(endpoint string) Config {
	cfg := DefaultConfig()
	cfg.Service.Name = "checkout"
	cfg.Service.Environment = "test"
	cfg.Remote.Token = "secret"
	cfg.Remote.Endpoint = endpoint
	cfg.Remote.FlushInterval = config.Duration(time.Hour)
	return cfg
}

func TestNewLocalOnly(t *testing.T) {
	client, err := New(DefaultConfig(), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	assert.Nil(t, client.Remote())
	assert.Nil(t, client.Recorder())
	require.NotNil(t, client.Logger())

	ctx, span := client.Tracer().StartSpan(context.Background(), "local")
	client.Log(ctx, zapcore.InfoLevel, "ignored", nil)
	span.End()

	assert.Equal(t, 0, client.Tracer().Pending())
	assert.NoError(t, client.Flush(context.Background()))
	assert.NoError(t, client.Shutdown(context.Background()))
	assert.NoError(t, client.Shutdown(context.Background()))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Remote.BatchSize = 0

	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Remote.Token = "secret"
	cfg.Remote.PublicKey = "not a key"
	_, err = New(cfg, WithLogger(zap.NewNop()))
	assert.ErrorIs(t, err, transport.ErrInvalidPublicKey)
}

func TestClientShipsAllSignals(t *testing.T) {
	server := newIngestServer(t, nil)
	client, err := New(remoteConfig(server.URL),
		WithLogger(zap.NewNop()),
		WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Shutdown(context.Background()) })

	router := gin.New()
	router.Use(client.Middleware()...)
	router.GET("/orders/:id", func(c *gin.Context) {
		client.Log(c.Request.Context(), zapcore.WarnLevel, "slow order", map[string]any{"id": c.Param("id")})
		c.String(http.StatusOK, "ok")
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/9", nil))

	require.NoError(t, client.Flush(context.Background()))

	spans := server.records(t, "/api/traces/ingest", "spans")
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /orders/:id", spans[0]["operationName"])
	assert.Equal(t, "checkout", spans[0]["serviceName"])
	traceID := spans[0]["traceId"]

	logs := server.records(t, "/api/logs/ingest", "logs")
	require.Len(t, logs, 1)
	assert.Equal(t, "slow order", logs[0]["message"])
	assert.Equal(t, traceID, logs[0]["traceId"])
	assert.Equal(t, spans[0]["spanId"], logs[0]["spanId"])

	metrics := server.records(t, "/api/metrics/ingest", "metrics")
	require.Len(t, metrics, 1)
	assert.Equal(t, "/orders/:id", metrics[0]["path"])
	assert.Equal(t, traceID, metrics[0]["traceId"])

	server.mu.Lock()
	for _, h := range server.headers {
		assert.Equal(t, "secret", h.Get(transport.TokenHeader))
	}
	server.mu.Unlock()
}

func TestClientLoggerTeesToRemote(t *testing.T) {
	server := newIngestServer(t, nil)
	client, err := New(remoteConfig(server.URL),
		WithLogger(zap.NewNop()),
		WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Shutdown(context.Background()) })

	client.Logger().Info("payment captured", zap.Int("cents", 1299), zap.String("trace_id", "0af7651916cd43dd8448eb211c80319c"))
	client.Logger().Debug("below remote level")
	require.NoError(t, client.Flush(context.Background()))

	logs := server.records(t, "/api/logs/ingest", "logs")
	require.Len(t, logs, 1)
	assert.Equal(t, "payment captured", logs[0]["message"])
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", logs[0]["traceId"])
	assert.Equal(t, map[string]any{"cents": float64(1299)}, logs[0]["metadata"])
}

func TestClientEncryptsPayloads(t *testing.T) {
	privPEM, pubPEM, err := transport.GenerateKeyPair(2048)
	require.NoError(t, err)

	server := newIngestServer(t, privPEM)
	cfg := remoteConfig(server.URL)
	cfg.Remote.PublicKey = string(pubPEM)

	client, err := New(cfg, WithLogger(zap.NewNop()), WithHTTPClient(server.Client()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Shutdown(context.Background()) })

	_, span := client.Tracer().StartSpan(context.Background(), "sealed")
	span.End()
	require.NoError(t, client.Flush(context.Background()))

	spans := server.records(t, "/api/traces/ingest", "spans")
	require.Len(t, spans, 1)
	assert.Equal(t, "sealed", spans[0]["operationName"])
}

func TestFlushFailureKeepsBatch(t *testing.T) {
	var fail sync.Once
	var calls int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		status := http.StatusOK
		fail.Do(func() { status = http.StatusServiceUnavailable })
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	cfg := remoteConfig(server.URL)
	client, err := New(cfg, WithLogger(zap.NewNop()), WithHTTPClient(server.Client()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Shutdown(context.Background()) })

	_, span := client.Tracer().StartSpan(context.Background(), "retry-me")
	span.End()

	err = client.Flush(context.Background())
	var statusErr *transport.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, 1, client.Tracer().Pending())

	require.NoError(t, client.Flush(context.Background()))
	assert.Equal(t, 0, client.Tracer().Pending())

	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := DefaultConfig()
	// the scrape itself would otherwise be an active span
	cfg.Middleware.IgnorePaths = []string{"/metrics"}
	client, err := New(cfg, WithLogger(zap.NewNop()), WithRegisterer(reg))
	require.NoError(t, err)

	router := gin.New()
	router.Use(client.Middleware()...)
	router.GET("/metrics", client.MetricsHandler())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `loggy_http_requests_total{method="GET",path="/ping",status="204"} 1`)
	assert.Contains(t, w.Body.String(), "loggy_active_spans 0")
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("LOGGY_SERVICE_NAME", "from-env")
	t.Setenv("LOGGY_FLUSH_INTERVAL", "250")

	client, err := NewFromEnv(WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Shutdown(context.Background()) })

	assert.Equal(t, "from-env", client.Tracer().ServiceName())
	assert.Equal(t, 250*time.Millisecond, client.Config().Remote.FlushInterval.Std())
}

func TestWithSpanHelpers(t *testing.T) {
	client, err := New(DefaultConfig(), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	var ended []SpanData
	client.Tracer().OnSpanEnd(func(d SpanData) { ended = append(ended, d) })

	got, err := WithSpan(context.Background(), client.Tracer(), "compute", func(ctx context.Context) (int, error) {
		assert.NotNil(t, SpanFromContext(ctx))
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	boom := errors.New("boom")
	assert.ErrorIs(t, Do(context.Background(), client.Tracer(), "fail", func(context.Context) error { return boom }), boom)

	require.Len(t, ended, 2)
	assert.Equal(t, StatusOK, ended[0].Status)
	assert.Equal(t, StatusError, ended[1].Status)
}
