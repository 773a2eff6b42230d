package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects the global log level and output format
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // human console output instead of JSON
}

// Setup configures the global zerolog logger. JSON to stdout is the
// default; Pretty switches to the console writer for local runs.
func Setup(cfg Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	log.Info().Str("level", level.String()).Msg("logger configured")
}
