package util

import (
	"log/slog"
	"os"
)

// SetupLogging configures the default slog logger. The level is taken from
// the CDECAO_LOG environment variable ("debug", "info", "warn", "error")
// and defaults to info.
func SetupLogging() {
	var level slog.Level
	switch os.Getenv("CDECAO_LOG") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
