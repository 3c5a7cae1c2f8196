// Package logx configures the zerolog logger shared by all components.
package logx

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the service logger. LOG_LEVEL and LOG_FORMAT come from the
// environment; JSON is the default, console output is for development.
func New(service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := parseLevel(os.Getenv("LOG_LEVEL"))
	zerolog.SetGlobalLevel(level)

	var out = os.Stderr
	logger := zerolog.New(out)
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	}
	return logger.With().Timestamp().Str("service", service).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
