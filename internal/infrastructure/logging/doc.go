// Package logging provides structured logging for the sqlitekit tool.
//
// This package wraps Go's standard log/slog package. The library package
// database only depends on a small Logger interface; this package supplies
// the concrete implementation used by cmd/sqlitekit.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stderr"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("migrations complete", "applied", 3)
//
// Never log migration bodies or bound values at info level; they may hold
// user data. Statements are logged at debug level without their arguments.
package logging
