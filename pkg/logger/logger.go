package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var Log *slog.Logger = slog.Default()

// Init configures the global logger. Level and sink come from env so the
// same binary can log to a file in production and stdout in dev:
// MOSAIC_LOG_LEVEL=debug|info|warn|error, MOSAIC_LOG_SINK=file:/path/to/log.
func Init(service string) {
	var level slog.Level
	switch strings.ToLower(strings.TrimSpace(os.Getenv("MOSAIC_LOG_LEVEL"))) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stdout
	if sink := os.Getenv("MOSAIC_LOG_SINK"); strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		} else {
			out = f
		}
	}

	Log = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})).
		With("service", service)
	slog.SetDefault(Log)
}
