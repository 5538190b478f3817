// Package logging provides structured logging for mediafleet, built on
// log/slog with JSON output for production and text output for development.
package logging
