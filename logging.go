package rknnconvert

import (
	"fmt"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/mattn/go-isatty"
	"io"
	"log"
	"os"
	"time"
)

// LogOptions configures the logger returned by NewLogger
type LogOptions struct {
	// File is an optional log file, rotated daily with the date appended
	File string
	// MaxAge is how long rotated log files are kept, defaults to a week
	MaxAge time.Duration
	// Verbose adds the source file and line to each message
	Verbose bool
}

// NewLogger returns a logger writing to w and, when opts.File is set, to a
// rotating log file. Timestamps are added when w is not a terminal. The
// returned io.Closer closes the log file and must be called on exit.
func NewLogger(w *os.File, opts LogOptions) (*log.Logger, io.Closer, error) {

	flags := 0

	if !isatty.IsTerminal(w.Fd()) && !isatty.IsCygwinTerminal(w.Fd()) {
		flags = log.LstdFlags
	}

	if opts.Verbose {
		flags |= log.LstdFlags | log.Lshortfile
	}

	if opts.File == "" {
		return log.New(w, "", flags), nopCloser{}, nil
	}

	maxAge := opts.MaxAge

	if maxAge == 0 {
		maxAge = 7 * 24 * time.Hour
	}

	rl, err := rotatelogs.New(
		opts.File+"-%Y%m%d",
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithRotationTime(24*time.Hour),
	)

	if err != nil {
		return nil, nil, fmt.Errorf("error opening log file: %w", err)
	}

	// timestamps are always on when also logging to file
	return log.New(io.MultiWriter(w, rl), "", flags|log.LstdFlags), rl, nil
}

type nopCloser struct{}

func (nopCloser) Close() error {
	return nil
}
