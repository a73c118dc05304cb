package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dabrowsk/upcast/internal/infrastructure/config"
)

// Logger is the structured logger used throughout upcast. It wraps
// slog.Logger so every record carries the service and version fields,
// and so component loggers can be derived with With.
//
// All methods are safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of config.yaml: level
// filtering, JSON or text output, stdout or stderr destination, and
// the service/version default fields.
//
// Parameters:
//   - cfg: Logging configuration
//   - version: Build version attached to every record
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(destination(cfg.Output), opts)
	} else {
		handler = slog.NewJSONHandler(destination(cfg.Output), opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "upcast"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// destination maps the configured output name to a writer. Anything
// other than "stderr" goes to stdout.
func destination(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel maps a level name to slog.Level, defaulting to info for
// anything unrecognised.
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

// With derives a child logger carrying extra default attributes.
// Components use it to tag their records:
//
//	discLogger := logger.With("component", "discovery")
//	discLogger.Info("scan started") // includes component=discovery
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON/info/stdout logger for use during early
// startup, before configuration has been loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
