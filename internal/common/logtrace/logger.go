// Package logtrace provides logging and tracing utilities for the application.
// It integrates with zerolog for structured logging and supports request tracing.
package logtrace

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the global logger. Console output is meant for people
// running the CLI; otherwise log lines are JSON with Unix timestamps. An
// unknown level falls back to warn.
func InitLogger(level string, console bool) {
	InitLoggerTo(os.Stderr, level, console)
}

// InitLoggerTo is InitLogger with an explicit destination.
func InitLoggerTo(w io.Writer, level string, console bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}
