// Package server provides the development collector: a small ingestion
// server that accepts SDK batches and keeps the latest ones in memory.
//
// Routes:
//   - POST /api/{traces,logs,metrics}/ingest: accept one batch
//   - GET /api/{traces,logs,metrics}: retained records, newest last
//   - GET /health: liveness and per-signal totals
//   - GET /metrics: Prometheus metrics for the collector itself
//
// Middleware stack: recovery, request metrics, CORS, then a per-token rate
// limit on the /api group.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.New(cfg.Collector, server.Options{Logger: logger})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
