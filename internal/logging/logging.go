// Package logging provides the structured event log shared by every
// component of the control core. It is a thin wrapper over logiface so
// that the rest of the tree depends on a small interface instead of the
// logiface/stumpy API surface directly.
package logging

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Fields is a set of structured key/value pairs attached to a log event.
// Values are restricted to the small set of types the control loop ever
// actually logs, so call sites stay allocation-light on the hot path.
type Fields map[string]any

// Logger is the structured logging surface consumed by every package
// under internal/. A nil Logger is not usable; the constructors in this
// tree substitute Discard when they are given nil.
type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, err error, fields Fields)
}

// New builds a Logger writing newline-delimited JSON to w, using stumpy as
// the logiface backend.
func New(w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	return &stumpyLogger{
		base: stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		),
	}
}

// Discard is a Logger that drops every event. Useful as a default and in
// tests that don't care about log output.
var Discard Logger = discard{}

type discard struct{}

func (discard) Debug(string, Fields)        {}
func (discard) Info(string, Fields)         {}
func (discard) Warn(string, Fields)         {}
func (discard) Error(string, error, Fields) {}

type stumpyLogger struct {
	base *logiface.Logger[*stumpy.Event]
}

func (l *stumpyLogger) Debug(msg string, fields Fields) {
	apply(l.base.Debug(), fields).Log(msg)
}

func (l *stumpyLogger) Info(msg string, fields Fields) {
	apply(l.base.Info(), fields).Log(msg)
}

func (l *stumpyLogger) Warn(msg string, fields Fields) {
	apply(l.base.Warning(), fields).Log(msg)
}

func (l *stumpyLogger) Error(msg string, err error, fields Fields) {
	b := l.base.Err()
	if err != nil {
		b = b.Err(err)
	}
	apply(b, fields).Log(msg)
}

// apply writes fields onto a builder in map iteration order (which is not
// stable), type-switching on the handful of value shapes the control loop
// ever logs.
func apply(b *logiface.Builder[*stumpy.Event], fields Fields) *logiface.Builder[*stumpy.Event] {
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			b.Str(k, val)
		case int:
			b.Int(k, val)
		case int64:
			b.Int64(k, val)
		case float64:
			b.Float64(k, val)
		case bool:
			b.Bool(k, val)
		case error:
			b.Err(val)
		case interface{ String() string }:
			b.Str(k, val.String())
		default:
			b.Any(k, val)
		}
	}
	return b
}
