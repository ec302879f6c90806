// Package logging provides structured logging built on log/slog.
package logging
