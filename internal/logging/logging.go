// Package logging provides the leveled logger injected throughout the
// writer and reader pipelines. Components never reach for the global
// "log" package directly; they take a Logger (or embed a Nop one) so
// that CLI frontends can wire up zerolog however they like.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the minimal leveled-logging contract used across the module.
// It is satisfied by *zerolog.Logger and by Nop.
type Logger interface {
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
}

// wrapped adapts a zerolog.Logger value to the Logger interface.
type wrapped struct {
	zl zerolog.Logger
}

func (w wrapped) Debug() *zerolog.Event { return w.zl.Debug() }
func (w wrapped) Info() *zerolog.Event  { return w.zl.Info() }
func (w wrapped) Warn() *zerolog.Event  { return w.zl.Warn() }
func (w wrapped) Error() *zerolog.Event { return w.zl.Error() }

// Nop discards everything. It is the zero-value default so library
// callers never pay for logging they didn't ask for.
var Nop Logger = wrapped{zl: zerolog.New(io.Discard)}

// NewConsole returns a human-readable logger writing to os.Stderr, for
// use by cmd/mkdwarfs, cmd/dwarfsck and cmd/dwarfsextract.
func NewConsole(level zerolog.Level) Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return wrapped{zl: zl}
}

// With attaches a component name, for per-module logging (scanner,
// segmenter, block cache, ...).
func With(l Logger, component string) Logger {
	if w, ok := l.(wrapped); ok {
		return wrapped{zl: w.zl.With().Str("component", component).Logger()}
	}
	return l
}
