// Package config provides 12-factor configuration management for the loggy SDK.
//
// Configuration is loaded from environment variables with sensible defaults,
// or from a YAML, TOML or JSON file layered over the same defaults.
//
// Configuration Sections:
//   - Service: service name, version and deployment environment
//   - Remote: token, endpoints, batching, encryption, compression
//   - Logging: local log level and format, minimum shipped level
//   - Middleware: ignored paths and body capture
//   - Collector: settings for the development collector
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// Environment Variables:
//   - LOGGY_SERVICE_NAME, LOGGY_SERVICE_VERSION, LOGGY_ENVIRONMENT
//   - LOGGY_TOKEN, LOGGY_ENDPOINT, LOGGY_{TRACES,LOGS,METRICS}_ENDPOINT
//   - LOGGY_BATCH_SIZE, LOGGY_FLUSH_INTERVAL (Go duration or milliseconds)
//   - LOGGY_PUBLIC_KEY, LOGGY_PUBLIC_KEY_FILE, LOGGY_CIPHER
//   - LOGGY_COMPRESS, LOGGY_RATE_LIMIT
//   - LOGGY_LOG_LEVEL, LOGGY_LOG_DEV, LOGGY_REMOTE_LOG_LEVEL
//   - LOGGY_IGNORE_PATHS, LOGGY_CAPTURE_BODIES, LOGGY_MAX_BODY_SIZE
//   - LOGGY_COLLECTOR_ADDR, LOGGY_COLLECTOR_TOKENS, LOGGY_COLLECTOR_PRIVATE_KEY_FILE
package config
