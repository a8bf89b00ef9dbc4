// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a zerolog logger at the given level. Development mode writes
// human-readable console output; otherwise JSON lines go to stdout.
func New(dev bool, level string) (zerolog.Logger, error) {
	return NewWithWriter(os.Stdout, dev, level)
}

// NewWithWriter is New writing to w.
func NewWithWriter(w io.Writer, dev bool, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parsing log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	if dev {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).With().Timestamp().Str("app", "playgroup").Logger().Level(lvl), nil
}
