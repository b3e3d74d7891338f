// Package logging provides structured logging for the coop bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the bridge, the observer hub
// and the store adapters.
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, logging.Build{Version: "1.0.0", Site: cfg.Site.ID})
//	logger.Info("starting service", "port", 8080)
//	logger.Component("bridge").Warn("decode failed", "topic", topic)
//
// Attributes whose key mentions a password, token or secret are redacted.
// Do not smuggle credentials into messages.
package logging
