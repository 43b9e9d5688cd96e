package logger

import (
	"log/slog"
	"os"

	"github.com/Niskigvan/couchdb/config"
)

func getSLogLevel() slog.Level {
	switch config.Config.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns the process-wide slog logger configured from the loaded config.
func New() *slog.Logger {
	opts := &slog.HandlerOptions{Level: getSLogLevel()}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
