// Package logging builds the zerolog logger shared by pinvault's components.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// New returns a logger writing to w at the given level ("debug", "info",
// "warn", ...). An empty level means warn. Terminals get the human-readable
// console format, everything else gets JSON lines.
func New(level string, w io.Writer) (zerolog.Logger, error) {
	lvl := zerolog.WarnLevel
	if level != "" {
		var err error
		if lvl, err = zerolog.ParseLevel(level); err != nil {
			return zerolog.Nop(), err
		}
	}

	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
