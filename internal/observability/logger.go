// Package observability configures the structured logger the daemon and its
// services write through.
package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLogLevel overrides the default info level (trace, debug, info, warn,
// error).
const EnvLogLevel = "FOREMAN_LOG_LEVEL"

// InitLogger builds the process-wide logger: console output, RFC3339
// timestamps, tagged with the app name. It also replaces the zerolog global
// so stray log calls end up in the same stream.
func InitLogger(app string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).
		Level(levelFromEnv()).
		With().
		Timestamp().
		Str("app", app).
		Logger()
	log.Logger = logger
	return logger
}

func levelFromEnv() zerolog.Level {
	raw := os.Getenv(EnvLogLevel)
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
