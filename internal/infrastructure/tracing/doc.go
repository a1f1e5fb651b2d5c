/*
Package tracing provides W3C-compatible distributed tracing for services
that report to Loggy.

# Overview

A Tracer starts spans, propagates their identity through traceparent and
tracestate headers, and hands ended spans to a batching pipeline that ships
them to the ingestion endpoint as {"spans": [...]}. Delivery failures never
reach the caller: a failed batch is kept and retried on the next flush.

# Features

- W3C traceparent/tracestate codec over HTTP headers, gRPC metadata, or maps
- Span creation with parent-child relationships through context.Context
- Tagged attribute values with stable JSON encoding
- Gin middleware and gRPC interceptors for automatic instrumentation
- WithSpan helper that records errors and panics without masking them
- Local OnSpanEnd hooks for logging or tests

# Usage

	tracer := tracing.New(tracing.TracerConfig{
		ServiceName: "checkout",
		Transport:   sender,
		Logger:      logger,
	})
	defer tracer.Shutdown(context.Background())

	// HTTP middleware
	router.Use(tracing.HTTPMiddleware(tracer, tracing.MiddlewareConfig{
		IgnorePaths: []string{"/health", "/static/**"},
	}))

	// gRPC server interceptor
	server := grpc.NewServer(
		grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)),
		grpc.StreamInterceptor(tracing.GRPCStreamInterceptor(tracer)),
	)

	// Manual span creation
	ctx, span := tracer.StartSpan(ctx, "charge-card", tracing.WithSpanKind(tracing.SpanKindClient))
	defer span.End()
	span.SetAttribute("payment.amount", 42.5)

	// Wrapped operation
	order, err := tracing.WithSpan(ctx, tracer, "load-order", func(ctx context.Context) (*Order, error) {
		return repo.Load(ctx, id)
	})

# Context

Pass context.Context explicitly. The tracer also remembers started spans in
start order so CurrentSpan and Inject work without a context, but under
concurrent requests the most recent span may belong to another request.
*/
package tracing
