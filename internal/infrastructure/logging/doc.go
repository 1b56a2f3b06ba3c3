// Package logging provides structured logging for the RoboLink gateway.
//
// This package wraps Go's standard log/slog package so that every component
// (acceptor, sessions, sweeper, telemetry store, API) logs with the same
// fields and format.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Per-component child loggers via Component
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	gwLog := logger.Component("gateway")
//	gwLog.Info("listening", "address", addr)
//
// Robot payloads are logged at debug level only. Never log JWT secrets or
// database passwords.
package logging
