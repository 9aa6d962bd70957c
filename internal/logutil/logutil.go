package logutil

import (
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConfigureLogger sets up the global logger for a single analysis run.
// Output goes to stderr so reports and graph text written to stdout stay
// machine-readable.
func ConfigureLogger(verbose bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Str("run_id", uuid.New().String()).
		Logger()
}
