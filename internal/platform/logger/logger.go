package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LoggerConfig holds the settings Setup needs.
type LoggerConfig struct {
	Level string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// Setup initializes the application's logging system. It creates a structured
// JSON logger with the configured level and sets it as the slog default.
func Setup(cfg LoggerConfig) (*slog.Logger, error) {
	level, ok := ParseLevel(cfg.Level)
	if !ok {
		tmpLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmpLogger.Warn("invalid log level configured, using default level",
			"configured_level", cfg.Level,
			"default_level", "info")
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)

	slog.SetDefault(logger)

	return logger, nil
}

// ParseLevel maps a case-insensitive level name to a slog.Level. Unknown
// names yield slog.LevelInfo and false.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
