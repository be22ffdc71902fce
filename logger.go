package flexijoin

import (
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging installs a TextHandler on the default slog logger and sets
// its level from the FLEXIJOIN_LOG_LEVEL environment variable (DEBUG, WARN,
// ERROR; defaults to INFO). Callers that already manage slog's default
// handler can skip this and call SetLogLevel directly.
func ConfigureLogging() {
	logLevel.Set(slog.LevelInfo)

	switch os.Getenv("FLEXIJOIN_LOG_LEVEL") {
	case "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "WARN":
		logLevel.Set(slog.LevelWarn)
	case "ERROR":
		logLevel.Set(slog.LevelError)
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel overrides the level set by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}
