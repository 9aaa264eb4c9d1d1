// Package logger configures the global zerolog logger from command line
// options.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a go-flags option group embedded by every binary.
type Logger struct {
	Level  string `long:"log-level"  env:"LOG_LEVEL"  description:"Log level" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" default:"info"`
	Format string `long:"log-format" env:"LOG_FORMAT" description:"Log format" choice:"auto" choice:"console" choice:"json" default:"auto"`
	Output string `long:"log-output" env:"LOG_OUTPUT" description:"Log output" choice:"stderr" choice:"stdout" default:"stderr"`
}

// Setup applies the options to the global logger.
func (l Logger) Setup() {
	zerolog.SetGlobalLevel(parseLevel(l.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	log.Logger = zerolog.New(l.writer()).With().Timestamp().Logger()
}

func (l Logger) writer() io.Writer {
	out := os.Stderr
	if l.Output == "stdout" {
		out = os.Stdout
	}

	switch l.Format {
	case "json":
		return out
	case "console":
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}

	if isatty.IsTerminal(out.Fd()) {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}
	return out
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
