// Package sysutil holds process-level helpers used by cmd/server.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel sets the global zerolog level from a case-insensitive name.
// Empty or unknown names fall back to info; "warning" is accepted for warn.
func SetLogLevel(lvl string) {
	name := strings.ToLower(strings.TrimSpace(lvl))
	if name == "warning" {
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// SetupLogger configures the global logger: level, RFC3339Nano UTC
// timestamps, and a console writer when pretty is set. The result also
// becomes zerolog's default context logger, so zerolog.Ctx on a context
// without a request logger still logs.
func SetupLogger(level string, pretty bool, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	SetLogLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }

	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(out).With().Timestamp().Str("service", "pdfops").Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &log.Logger
	return l
}
