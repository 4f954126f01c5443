// Package logging configures the global zerolog logger and hands out
// per-component child loggers.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level      string // DEBUG, INFO, WARN, ERROR
	JSONFormat bool   // JSON output; console writer otherwise
	Output     string // "stdout", "stderr"
}

// Setup configures the global logger. Call once at startup before any
// component logger is created.
func Setup(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	out := os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}

	if cfg.JSONFormat {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}).
			With().Timestamp().Logger()
	}
}

// Component returns a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
