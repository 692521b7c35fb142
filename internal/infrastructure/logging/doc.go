// Package logging provides structured logging for the heat-pump bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Optional append-only file output
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "/var/log/graylogic/heatpump.log"
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	coordLog := logger.Component("coordinator")
//	coordLog.Info("refresh complete", "registers", 42)
//
// Never log secrets such as the MQTT password or InfluxDB token.
package logging
