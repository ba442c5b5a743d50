// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level  string // debug, info, warn or error
	Format string // json or text
	File   string // optional path of a rotated log file written alongside stdout
}

// New returns a logger writing to stdout and, when opts.File is set, to a
// size-rotated file. The returned closer releases the file.
func New(opts Options) (*slog.Logger, io.Closer) {
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}

		out = io.MultiWriter(os.Stdout, rotator)
		closer = rotator
	}

	return slog.New(newHandler(out, opts)), closer
}

func newHandler(w io.Writer, opts Options) slog.Handler {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	if strings.EqualFold(opts.Format, "text") {
		return slog.NewTextHandler(w, handlerOpts)
	}

	return slog.NewJSONHandler(w, handlerOpts)
}

// ParseLevel maps a level name to its slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}

	return level
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
