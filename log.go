package main

import (
	"os"

	"github.com/rs/zerolog"
)

const logDate string = `2006-01-02T15:04:05.000-07:00`

// newLogger builds the process-wide logger, writing structured lines
// to stderr. Debug output is gated on --verbose.
func newLogger(verbose bool) zerolog.Logger {
	zerolog.TimeFieldFormat = logDate

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(os.Stderr).
		Level(level).
		With().
		Timestamp().
		Logger()
}
