package diag

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounter(t *testing.T) {
	var bag Bag
	c := NewCounter(&bag)

	c.Report(Diagnostic{Severity: Note, Msg: "n"})
	c.Report(Diagnostic{Severity: Warning, Msg: "w"})
	c.Report(Diagnostic{Severity: Pedwarn, Msg: "p"})
	c.Report(Diagnostic{Severity: Error, Msg: "e"})
	c.Report(Diagnostic{Severity: Fatal, Msg: "f"})

	assert.Equal(t, 2, c.Errors())
	assert.Equal(t, 2, c.Warnings())
	assert.Equal(t, []string{"n", "w", "p", "e", "f"}, bag.Messages())
}

func TestNilCounterSink(t *testing.T) {
	c := NewCounter(nil)
	c.Report(Diagnostic{Severity: Error})
	assert.Equal(t, 1, c.Errors())
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	Writer(&buf).Report(Diagnostic{Severity: Pedwarn, Msg: "extra tokens"})
	assert.Equal(t, "warning: extra tokens\n", buf.String())
}

func TestLoggerAndTee(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	var bag Bag
	Tee(Logger(l), &bag).Report(Diagnostic{Severity: Error, Msg: "boom"})

	assert.True(t, strings.Contains(buf.String(), "level=ERROR"))
	assert.True(t, strings.Contains(buf.String(), "msg=boom"))
	assert.Len(t, bag.Diagnostics(), 1)
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "fatal error", Fatal.String())
	assert.Equal(t, "warning", Pedwarn.String())
	assert.Equal(t, "Severity(9)", Severity(9).String())
}
