/*
Package monitoring provides the metrics signal and the SDK's own
Prometheus metrics.

# Overview

Recorder ships one RequestMetric per HTTP request to the metrics endpoint
under the "metrics" payload key; percentiles and rollups are computed by
the ingestion service. Metrics tracks the delivery pipeline itself and
implements transport.Observer, so every batcher reports into it.

# Features

- Per-request metrics (method, route, status, latency, sizes, trace ID)
- Pipeline metrics (enqueued, flushed, requeued, pending, flush latency)
- Active span gauge
- HTTP request counters for the instrumented application
- Uptime gauge and a JSON snapshot of running totals

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	metrics.TrackActiveSpans(tracer.ActiveSpans)

	recorder, err := monitoring.NewRecorder(monitoring.RecorderConfig{
		Service:   "checkout",
		Transport: sender,
		Observer:  metrics,
	})

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics, recorder))

# Metrics Endpoint

	router.GET("/metrics", monitoring.Handler(reg))
	router.GET("/stats", monitoring.StatsHandler(metrics))
*/
package monitoring
