// Package logging builds the root zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// Level is a zerolog level name. Empty means info.
	Level string
	// File, when set, receives a copy of every line with size-based rotation.
	File string
	// Console pretty-prints stdout output.
	Console bool

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Stdout replaces os.Stdout, mainly for tests.
	Stdout io.Writer
}

// New returns the root logger and a closer for the rotating file, if any.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if strings.TrimSpace(opts.Level) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		level = parsed
	}

	var out io.Writer = os.Stdout
	if opts.Stdout != nil {
		out = opts.Stdout
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
		}
		out = zerolog.MultiLevelWriter(out, rotating)
		closer = rotating
	}

	log := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return log, closer, nil
}

// Token shortens a secret token for log output.
func Token(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
