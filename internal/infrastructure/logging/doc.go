// Package logging provides structured logging for the gateway.
//
// It wraps log/slog with JSON (default) or text output, level filtering,
// and service/version fields on every entry.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting gateway", "port", cfg.Port)
//	logger.Error("engine call failed", "error", err, "request_id", id)
//
// Never log API keys or broker passwords.
package logging
