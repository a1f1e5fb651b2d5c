package tracing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/transport"
)

func TestStartSpanRootAndChild(t *testing.T) {
	tracer, _ := newTestTracer(t, TracerConfig{})

	ctx, root := tracer.StartSpan(context.Background(), "root")
	assert.True(t, root.SpanContext().IsValid())
	assert.False(t, root.ParentSpanID().IsValid())
	assert.Empty(t, root.ToData().ParentSpanID)

	_, child := tracer.StartSpan(ctx, "child")
	assert.Equal(t, root.SpanContext().TraceID, child.SpanContext().TraceID)
	assert.Equal(t, root.SpanContext().SpanID, child.ParentSpanID())
	assert.NotEqual(t, root.SpanContext().SpanID, child.SpanContext().SpanID)

	_, other := tracer.StartSpan(context.Background(), "other-root")
	assert.NotEqual(t, root.SpanContext().TraceID, other.SpanContext().TraceID)
}

func TestOnSpanEndHooksRunInOrder(t *testing.T) {
	tracer, _ := newTestTracer(t, TracerConfig{})

	var order []string
	tracer.OnSpanEnd(func(d SpanData) { order = append(order, "first:"+d.OperationName) })
	tracer.OnSpanEnd(nil)
	tracer.OnSpanEnd(func(d SpanData) { order = append(order, "second:"+d.OperationName) })

	_, span := tracer.StartSpan(context.Background(), "op")
	span.End()
	span.End()

	assert.Equal(t, []string{"first:op", "second:op"}, order)
}

func TestStartSpanExplicitParentWins(t *testing.T) {
	tracer, _ := newTestTracer(t, TracerConfig{})
	parent, ok := ParseTraceparent(sampleTraceparent)
	require.True(t, ok)

	ctx, _ := tracer.StartSpan(context.Background(), "ambient")
	_, span := tracer.StartSpan(ctx, "op", WithParent(parent))

	data := span.ToData()
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", data.TraceID)
	assert.Equal(t, "b7ad6b7169203331", data.ParentSpanID)
}

func TestStartSpanFromRemoteContext(t *testing.T) {
	tracer, _ := newTestTracer(t, TracerConfig{})

	remote, ok := tracer.Extract(MapCarrier{"traceparent": sampleTraceparent, "tracestate": "vendor=x"})
	require.True(t, ok)

	ctx := ContextWithRemoteSpanContext(context.Background(), remote)
	_, span := tracer.StartSpan(ctx, "server")

	sc := span.SpanContext()
	assert.Equal(t, remote.TraceID, sc.TraceID)
	assert.Equal(t, remote.SpanID, span.ParentSpanID())
	assert.Equal(t, "vendor=x", sc.TraceState.String())
	assert.False(t, sc.Remote)
}

func TestTracerInjectPrefersContext(t *testing.T) {
	tracer, _ := newTestTracer(t, TracerConfig{})

	ctx, first := tracer.StartSpan(context.Background(), "first")
	_, second := tracer.StartSpan(context.Background(), "second")

	carrier := tracer.Inject(ctx, nil)
	assert.Equal(t, FormatTraceparent(first.SpanContext()), carrier.Get(TraceparentHeader))

	// Without a span in ctx the most recent active span is used.
	carrier = tracer.Inject(context.Background(), MapCarrier{})
	assert.Equal(t, FormatTraceparent(second.SpanContext()), carrier.Get(TraceparentHeader))

	second.End()
	first.End()
	carrier = tracer.Inject(context.Background(), MapCarrier{})
	assert.Empty(t, carrier.Get(TraceparentHeader))
}

func TestTracerRegistry(t *testing.T) {
	tracer, _ := newTestTracer(t, TracerConfig{})

	_, a := tracer.StartSpan(context.Background(), "a")
	_, b := tracer.StartSpan(context.Background(), "b")
	assert.Equal(t, 2, tracer.ActiveSpans())
	assert.Same(t, b, tracer.CurrentSpan())

	b.End()
	assert.Same(t, a, tracer.CurrentSpan())
	sc, ok := tracer.CurrentContext()
	require.True(t, ok)
	assert.Equal(t, a.SpanContext(), sc)

	a.End()
	assert.Nil(t, tracer.CurrentSpan())
	_, ok = tracer.CurrentContext()
	assert.False(t, ok)
}

func TestCorrelationIDs(t *testing.T) {
	tracer, _ := newTestTracer(t, TracerConfig{})

	traceID, spanID := CorrelationIDs(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)

	ctx, span := tracer.StartSpan(context.Background(), "op")
	traceID, spanID = CorrelationIDs(ctx)
	assert.Equal(t, span.SpanContext().TraceIDString(), traceID)
	assert.Equal(t, span.SpanContext().SpanIDString(), spanID)
}

func TestTracerWithoutTransportFlushIsNoop(t *testing.T) {
	tracer, _ := newTestTracer(t, TracerConfig{})
	_, span := tracer.StartSpan(context.Background(), "op")
	span.End()

	assert.NoError(t, tracer.Flush(context.Background()))
	assert.Equal(t, 0, tracer.Pending())
}

// flakyIngest fails the first request and accepts the rest.
type flakyIngest struct {
	mu     sync.Mutex
	bodies []map[string][]map[string]any
}

func (f *flakyIngest) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var body map[string][]map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))

		f.mu.Lock()
		f.bodies = append(f.bodies, body)
		n := len(f.bodies)
		f.mu.Unlock()

		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func TestTracerFlushRetriesFailedBatch(t *testing.T) {
	ingest := &flakyIngest{}
	srv := httptest.NewServer(ingest.handler(t))
	defer srv.Close()

	sender, err := transport.NewSender(transport.SenderConfig{Endpoint: srv.URL, Token: "tok"})
	require.NoError(t, err)

	tracer, _ := newTestTracer(t, TracerConfig{Transport: sender})

	_, span := tracer.StartSpan(context.Background(), "checkout")
	span.End()
	require.Equal(t, 1, tracer.Pending())

	assert.Error(t, tracer.Flush(context.Background()))
	assert.Equal(t, 1, tracer.Pending())

	require.NoError(t, tracer.Flush(context.Background()))
	assert.Equal(t, 0, tracer.Pending())

	ingest.mu.Lock()
	defer ingest.mu.Unlock()
	require.Len(t, ingest.bodies, 2)
	assert.Equal(t, ingest.bodies[0], ingest.bodies[1])
	require.Len(t, ingest.bodies[0]["spans"], 1)
	assert.Equal(t, "checkout", ingest.bodies[0]["spans"][0]["operationName"])
}

func TestTracerBatchSizeTriggersFlush(t *testing.T) {
	var mu sync.Mutex
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender, err := transport.NewSender(transport.SenderConfig{Endpoint: srv.URL, Token: "tok"})
	require.NoError(t, err)

	tracer, _ := newTestTracer(t, TracerConfig{Transport: sender, BatchSize: 2})
	for i := 0; i < 2; i++ {
		_, span := tracer.StartSpan(context.Background(), "op")
		span.End()
	}

	require.NoError(t, tracer.Shutdown(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, tracer.Pending())
}

func TestTracerShutdownFlushesOnce(t *testing.T) {
	var mu sync.Mutex
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
	}))
	defer srv.Close()

	sender, err := transport.NewSender(transport.SenderConfig{Endpoint: srv.URL, Token: "tok"})
	require.NoError(t, err)

	tracer := New(TracerConfig{ServiceName: "svc", Transport: sender, Clock: clockz.NewFakeClock()})
	_, span := tracer.StartSpan(context.Background(), "op")
	span.End()

	require.NoError(t, tracer.Shutdown(context.Background()))
	require.NoError(t, tracer.Shutdown(context.Background()))

	_, late := tracer.StartSpan(context.Background(), "late")
	late.End()
	assert.Equal(t, 0, tracer.Pending())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}
