// Package logging builds the slog logger that cmd/clipkeeper injects into
// every component.
//
// Console output is colourised text on a terminal and JSON otherwise. With
// a log file configured, records are also written as JSON to a size-rotated
// file, so daemon runs keep a history that survives the terminal.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"
)

// Format selects the log output format.
type Format string

// Log formats accepted by --log-format.
const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat converts a string to a Format, returning FormatAuto for unknown values.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "text", "tint", "human":
		return FormatText
	case "json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// ParseLevel converts a string to a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// New returns a logger writing to w. Auto picks colourised text on a
// terminal and JSON otherwise.
func New(w io.Writer, format Format, level slog.Level) *slog.Logger {
	return slog.New(consoleHandler(w, format, level))
}

// Options configures NewWithFile.
type Options struct {
	Format Format
	Level  slog.Level
	// File, when set, receives every record as JSON in addition to the console.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// NewWithFile returns a logger writing to console and, when opts.File is
// set, to a rotating log file. The returned closer closes the file and is
// never nil.
func NewWithFile(console io.Writer, opts Options) (*slog.Logger, io.Closer, error) {
	h := consoleHandler(console, opts.Format, opts.Level)
	if opts.File == "" {
		return slog.New(h), nopCloser{}, nil
	}
	f, err := OpenFile(opts.File, opts.MaxSizeMB, opts.MaxBackups)
	if err != nil {
		return nil, nil, err
	}
	file := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: opts.Level})
	return slog.New(teeHandler{h, file}), f, nil
}

func consoleHandler(w io.Writer, format Format, level slog.Level) slog.Handler {
	if format == FormatText || (format == FormatAuto && IsTTY(w)) {
		return tinter.NewHandler(w, &tinter.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
