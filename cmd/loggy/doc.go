// Package main is the entry point for the loggy command line.
//
// The binary bundles the developer tooling that ships with the SDK:
//
//	Instrumented service (pkg/loggy) → loggy collect (in-memory ingestion)
//
// Commands:
//   - collect: run a local ingestion collector
//   - demo: run a Gin service instrumented with the SDK
//   - keygen: generate an RSA key pair for payload encryption
//   - traceparent new|parse: create or decode W3C trace context headers
//   - version: print the CLI version
//
// Configuration:
//   - Environment variables (LOGGY_*)
//   - --config file (yaml, toml or json)
//   - CLI flags (override both)
//
// Usage:
//
//	loggy collect --tokens dev-token --private-key ./keys/loggy_private.pem
//	LOGGY_TOKEN=dev-token LOGGY_PUBLIC_KEY_FILE=./keys/loggy_public.pem loggy demo
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
