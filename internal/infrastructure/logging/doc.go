// Package logging provides structured logging for airlink2mqtt.
//
// It wraps the standard log/slog package so every component logs with the
// same handler, level and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// The --verbose flag forces the debug level.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("bridge started", "prefix", cfg.MQTT.TopicPrefix)
//
// Never log SMS credentials, broker passwords or tokens.
package logging
