// Package logging sets up the process-wide structured logger, built on
// zerolog with a console writer for TTYs and JSON for everything else.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// New builds the root logger for the given CLI log level (0=warn,
// 1=info, 2=debug). When stdout is an interactive terminal, records
// are rendered through zerolog's human-readable ConsoleWriter; when
// piped or redirected (the normal case for a daemon under a process
// supervisor), raw JSON is written instead.
func New(level int) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var zlevel zerolog.Level
	switch level {
	case 0:
		zlevel = zerolog.WarnLevel
	case 2:
		zlevel = zerolog.DebugLevel
	default:
		zlevel = zerolog.InfoLevel
	}

	var writer = os.Stdout
	if term.IsTerminal(int(writer.Fd())) {
		return zerolog.New(zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}).
			Level(zlevel).With().Timestamp().Logger()
	}

	return zerolog.New(writer).Level(zlevel).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the owning component's
// name via `.With().Str("component", ...).Logger()`, so log lines can
// be filtered by subsystem (scheduler, executor, authguard, ...).
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
