// Package obslog provides structured, leveled logging for every component
// of the serial engine, grounded on the wider pack's zerolog console-writer
// convention. Logging is diagnostic only; nothing in the transport core
// depends on it for correctness.
package obslog

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger tagged with component, with its level taken
// from P1150_LOG_LEVEL (default: info). An empty component falls back to
// "engine".
func New(component string) zerolog.Logger {
	if component == "" {
		component = "engine"
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	level := parseLevel(os.Getenv("P1150_LOG_LEVEL"))
	return zerolog.New(output).Level(level).With().Timestamp().Str("component", component).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
