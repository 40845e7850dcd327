package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// New builds the service logger and points the stdlib logger at the same
// writer so helper packages using log.Printf end up in one stream.
func New(service, level string) *slog.Logger {
	return NewWithWriter(os.Stdout, service, level)
}

func NewWithWriter(w io.Writer, service, level string) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	logger := slog.New(h).With("service", service)
	log.SetOutput(w)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
