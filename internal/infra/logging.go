package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seenimoa/moexidx/internal/config"
)

// SetupLogging configures the global zerolog logger from the logging
// section. Unknown levels fall back to info.
func SetupLogging(cfg config.LoggingConfig) {
	SetupLoggingTo(os.Stderr, cfg)
}

// SetupLoggingTo is SetupLogging with an explicit sink.
func SetupLoggingTo(w io.Writer, cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := w
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: true}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
