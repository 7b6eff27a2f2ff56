// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// Example:
//
//	logger := logging.NewDefault()
//	logger.Info("server starting", zap.String("port", "8400"))
package logging
