// Package logging provides structured logging for roomgate.
//
// It wraps Go's standard log/slog package so every entry carries the
// service name and build version.
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
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("uplink forwarded", "writes", 2)
//	logger.Error("store unreachable", "error", err)
//
// # Redaction
//
// Every attribute passes through a ReplaceAttr hook before it is written:
//
//   - keys naming a secret, password, token, credential, authorization,
//     auth or ticket are replaced with [REDACTED]
//   - string and error values have ?auth= and ?ticket= query values and
//     bearer credentials masked (see Scrub)
//
// The hook is a backstop. Callers still should not pass the store master
// secret, client tokens or the admin password to the logger.
package logging
