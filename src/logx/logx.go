// Package logx builds the process-wide zerolog logger.
package logx

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to w. When json is false the output is the
// human console format; level accepts the usual zerolog level names and
// falls back to info on anything unknown.
func New(w io.Writer, level string, json bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := w
	if !json {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Nop returns a disabled logger for tests and quiet paths.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
