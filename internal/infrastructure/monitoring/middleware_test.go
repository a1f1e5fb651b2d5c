package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/tracing"
)

type captureTransport struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (c *captureTransport) Send(_ context.Context, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies = append(c.bodies, body)
	return nil
}

func (c *captureTransport) metrics(t *testing.T) []RequestMetric {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []RequestMetric
	for _, b := range c.bodies {
		var payload map[string][]RequestMetric
		require.NoError(t, json.Unmarshal(b, &payload))
		out = append(out, payload[MetricsSignal]...)
	}
	return out
}

func newTestRecorder(t *testing.T) (*Recorder, *captureTransport) {
	t.Helper()
	tr := &captureTransport{}
	rec, err := NewRecorder(RecorderConfig{
		Service:       "shop",
		Transport:     tr,
		FlushInterval: time.Hour,
		Clock:         clockz.NewFakeClock(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close(context.Background()) })
	return rec, tr
}

func TestNewRecorderRequiresTransport(t *testing.T) {
	_, err := NewRecorder(RecorderConfig{})
	assert.Error(t, err)
}

func TestMiddlewareRecordsRequest(t *testing.T) {
	rec, tr := newTestRecorder(t)
	m := NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(m, rec))
	router.POST("/orders/:id", func(c *gin.Context) {
		c.String(http.StatusCreated, "created")
	})

	req := httptest.NewRequest(http.MethodPost, "/orders/7", strings.NewReader(`{"qty":1}`))
	router.ServeHTTP(httptest.NewRecorder(), req)
	require.NoError(t, rec.Flush(context.Background()))

	got := tr.metrics(t)
	require.Len(t, got, 1)
	assert.Equal(t, "shop", got[0].Service)
	assert.Equal(t, "POST", got[0].Method)
	assert.Equal(t, "/orders/:id", got[0].Path)
	assert.Equal(t, http.StatusCreated, got[0].StatusCode)
	assert.Equal(t, int64(9), got[0].RequestBytes)
	assert.Equal(t, int64(7), got[0].ResponseBytes)
	assert.NotEmpty(t, got[0].Timestamp)
	assert.Empty(t, got[0].TraceID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "/orders/:id", "201")))
}

func TestMiddlewareCarriesTraceID(t *testing.T) {
	rec, tr := newTestRecorder(t)
	tracer := tracing.New(tracing.TracerConfig{ServiceName: "shop"})

	router := gin.New()
	router.Use(Middleware(nil, rec))
	router.Use(tracing.HTTPMiddleware(tracer, tracing.MiddlewareConfig{}))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	router.ServeHTTP(httptest.NewRecorder(), req)
	require.NoError(t, rec.Flush(context.Background()))

	got := tr.metrics(t)
	require.Len(t, got, 1)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", got[0].TraceID)
}

func TestMiddlewareMetricsOnly(t *testing.T) {
	m := NewMetrics(nil)

	router := gin.New()
	router.Use(Middleware(m, nil))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/unknown", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/unknown", "404")))
	assert.Equal(t, int64(1), m.Snapshot().TotalErrors)
}
