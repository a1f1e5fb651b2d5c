// Package logging provides structured logging using uber/zap, and the
// remote logs signal that ships application records to Loggy.
//
// SDK diagnostics come from New, configured from the logging section of the
// SDK configuration with FromConfig:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Application records go through RemoteLogger, which batches Entry values
// under the "logs" payload key. NewCore adapts a RemoteLogger to
// zapcore.Core so an existing zap logger can ship records as well:
//
//	remote, _ := logging.NewRemoteLogger(logging.RemoteLoggerConfig{
//		Service:    "checkout",
//		Transport:  sender,
//		Correlator: tracing.CorrelationIDs,
//	})
//	remote.Info(ctx, "order placed", map[string]any{"order_id": 42})
//
//	logger := zap.New(zapcore.NewTee(local.Core(), logging.NewCore(remote, zap.InfoLevel)))
//	logger.Warn("cache cold", zap.String("trace_id", traceID))
package logging
