// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup installs the global logger. format "json" writes structured lines to
// stdout (what CloudWatch ingests); anything else gets the console writer on
// stderr.
func Setup(format string, debug bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = New(format, os.Stdout, os.Stderr)
}

func New(format string, stdout, stderr io.Writer) zerolog.Logger {
	if format == "json" {
		return zerolog.New(stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
}
