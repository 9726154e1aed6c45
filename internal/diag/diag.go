// Package diag carries diagnostics from the preprocessor to its caller.
//
// The core never prints anything itself: every problem is handed to a Sink
// with a severity and a location. Counter wraps a sink and keeps the
// run-wide tallies the caller uses for its exit status.
package diag

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fwessels/cpp/internal/token"
)

// Severity orders diagnostics from least to most serious.
type Severity uint8

const (
	Note Severity = iota
	Warning
	Pedwarn // warning required by the standard, an error under pedantic-errors
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Note:
		return "note"
	case Warning, Pedwarn:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal error"
	}
	return fmt.Sprintf("Severity(%d)", s)
}

// Diagnostic is one reported problem.
type Diagnostic struct {
	Severity Severity
	Loc      token.Loc
	Msg      string
}

func (d Diagnostic) String() string {
	if !d.Loc.IsValid() {
		return fmt.Sprintf("%s: %s", d.Severity, d.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", d.Loc, d.Severity, d.Msg)
}

// Sink receives diagnostics.
type Sink interface {
	Report(Diagnostic)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Diagnostic)

func (f SinkFunc) Report(d Diagnostic) { f(d) }

// Discard drops everything.
var Discard Sink = SinkFunc(func(Diagnostic) {})

// Counter counts diagnostics by severity and forwards them.
type Counter struct {
	next     Sink
	errors   int
	warnings int
}

// NewCounter wraps next, which may be nil.
func NewCounter(next Sink) *Counter {
	if next == nil {
		next = Discard
	}
	return &Counter{next: next}
}

func (c *Counter) Report(d Diagnostic) {
	switch {
	case d.Severity >= Error:
		c.errors++
	case d.Severity >= Warning:
		c.warnings++
	}
	c.next.Report(d)
}

// Errors returns the number of errors and fatal errors seen.
func (c *Counter) Errors() int { return c.errors }

// Warnings returns the number of warnings seen.
func (c *Counter) Warnings() int { return c.warnings }

// Bag stores diagnostics. It is safe for concurrent use.
type Bag struct {
	mu    sync.Mutex
	items []Diagnostic
}

func (b *Bag) Report(d Diagnostic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, d)
}

// Diagnostics returns a copy of what was reported.
func (b *Bag) Diagnostics() []Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Diagnostic(nil), b.items...)
}

// Messages returns the message texts in report order.
func (b *Bag) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.items))
	for i, d := range b.items {
		out[i] = d.Msg
	}
	return out
}

// Writer prints one diagnostic per line to w.
func Writer(w io.Writer) Sink {
	return SinkFunc(func(d Diagnostic) {
		fmt.Fprintln(w, d)
	})
}

// Logger reports diagnostics as slog records.
func Logger(l *slog.Logger) Sink {
	return SinkFunc(func(d Diagnostic) {
		level := slog.LevelWarn
		switch d.Severity {
		case Note:
			level = slog.LevelInfo
		case Error, Fatal:
			level = slog.LevelError
		}
		l.Log(context.Background(), level, d.Msg, "loc", d.Loc.String(), "severity", d.Severity.String())
	})
}

// Tee reports to every sink in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(d Diagnostic) {
		for _, s := range sinks {
			s.Report(d)
		}
	})
}
