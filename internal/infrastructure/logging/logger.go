package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/usul27/pknx/internal/infrastructure/config"
)

// Logger wraps slog.Logger with pknx defaults.
//
// Its Debug/Info/Warn/Error methods take a message and alternating
// key/value pairs, which also satisfies the optional Logger interfaces
// of the tunnel, bridge, and recorder packages.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from the logging configuration.
//
// It configures the output format (JSON for production, text for
// development), level filtering, default fields, and the output
// destination.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	level := parseLevel(cfg.Level)

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "pknx"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error.
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	tunnelLogger := logger.With("component", "tunnel")
//	tunnelLogger.Info("connected") // Includes component=tunnel
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a logger for use before configuration is loaded.
//
// It outputs to stderr in text format at info level so early startup
// messages do not pollute stdout, which the CLI uses for results.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}, "dev")
}
