package buffer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwessels/cpp/internal/diag"
)

func readLines(b *Buffer) []string {
	var out []string
	for b.NextLine() {
		b.Cur = len(b.Line)
		b.ProcessNotes(false)
		out = append(out, string(b.Line))
	}
	return out
}

func pushed(t *testing.T, cfg Config, b *Buffer) *diag.Bag {
	t.Helper()
	bag := &diag.Bag{}
	cfg.Sink = bag
	require.NoError(t, NewStack(cfg).Push(b, 0))
	return bag
}

func TestCleanLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"no final newline", "a\nb", []string{"a\n", "b\n"}},
		{"escaped newline", "ab\\\ncd\n", []string{"abcd\n"}},
		{"crlf and cr", "a\r\nb\rc", []string{"a\n", "b\n", "c\n"}},
		{"crlf splice", "a\\\r\nb\r\n", []string{"ab\n"}},
		{"blank lines", "\n\n", []string{"\n", "\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewFile("t.c", []byte(tt.input))
			pushed(t, Config{}, b)
			assert.Equal(t, tt.want, readLines(b))
		})
	}
}

func TestSpliceOffsets(t *testing.T) {
	b := NewFile("t.c", []byte("ab\\\ncd\n"))
	pushed(t, Config{}, b)
	require.True(t, b.NextLine())

	assert.Equal(t, []Note{{Pos: 2, Kind: EscapedNewline}}, b.Notes())
	assert.Equal(t, 1, b.Offset(1))
	assert.Equal(t, 4, b.Offset(2))

	pos := b.Loc(3).Position()
	assert.Equal(t, 2, pos.Line)
	assert.Equal(t, 2, pos.Column)
}

func TestTrigraphs(t *testing.T) {
	b := NewFile("t.c", []byte("??=define X ??(\n"))
	bag := pushed(t, Config{Trigraphs: true, WarnTrigraphs: true}, b)

	assert.Equal(t, []string{"#define X [\n"}, readLines(b))
	assert.Equal(t, []string{"trigraph ??= converted to #", "trigraph ??( converted to ["}, bag.Messages())
}

func TestTrigraphsIgnored(t *testing.T) {
	b := NewFile("t.c", []byte("a ??= b\n"))
	bag := pushed(t, Config{WarnTrigraphs: true}, b)

	assert.Equal(t, []string{"a ??= b\n"}, readLines(b))
	assert.Equal(t, []string{"trigraph ??= ignored, use --trigraphs to enable"}, bag.Messages())
}

func TestTrigraphWarningInComment(t *testing.T) {
	b := NewFile("t.c", []byte("??=\n"))
	bag := pushed(t, Config{Trigraphs: true, WarnTrigraphs: true}, b)
	require.True(t, b.NextLine())
	b.Cur = len(b.Line)
	b.ProcessNotes(true)
	assert.Empty(t, bag.Messages())
}

func TestTrigraphSplice(t *testing.T) {
	b := NewFile("t.c", []byte("a??/\nb\n"))
	pushed(t, Config{Trigraphs: true}, b)
	require.True(t, b.NextLine())
	assert.Equal(t, "ab\n", string(b.Line))
	assert.Equal(t, 5, b.Offset(1))
}

func TestSpliceWarnings(t *testing.T) {
	b := NewFile("t.c", []byte("a\\ \nb\\\n"))
	bag := pushed(t, Config{}, b)

	assert.Equal(t, []string{"ab\n"}, readLines(b))
	assert.Equal(t, []string{
		"backslash and newline separated by space",
		"backslash-newline at end of file",
	}, bag.Messages())
}

func TestNotesAreLazy(t *testing.T) {
	b := NewFile("t.c", []byte("x ??= y\n"))
	bag := pushed(t, Config{Trigraphs: true, WarnTrigraphs: true}, b)
	require.True(t, b.NextLine())

	b.Cur = 1
	assert.False(t, b.NotesPending())
	b.ProcessNotes(false)
	assert.Empty(t, bag.Messages())

	b.Cur = 2
	assert.True(t, b.NotesPending())
	b.ProcessNotes(false)
	assert.Len(t, bag.Messages(), 1)
}

func TestStage3(t *testing.T) {
	b := NewText("<paste>", []byte("a\\\nb ??="))
	pushed(t, Config{Trigraphs: true}, b)
	assert.Equal(t, []string{"a\\\n", "b ??=\n"}, readLines(b))
}

func TestStackDepth(t *testing.T) {
	s := NewStack(Config{MaxDepth: 2})
	require.NoError(t, s.Push(NewFile("a", nil), 0))
	require.NoError(t, s.Push(NewText("paste", nil), 0))
	require.NoError(t, s.Push(NewFile("b", nil), 0))

	err := s.Push(NewFile("c", nil), 0)
	assert.True(t, errors.Is(err, ErrStackDepth))
	assert.Equal(t, 3, s.Depth())
	assert.Equal(t, 2, s.FileDepth())
}

func TestPopChecksConditionals(t *testing.T) {
	s := NewStack(Config{})
	outer := NewFile("outer.c", nil)
	inner := NewFile("inner.h", nil)
	require.NoError(t, s.Push(outer, 0))
	require.NoError(t, s.Push(inner, 1))

	b, err := s.Pop(2)
	assert.Same(t, inner, b)
	assert.True(t, errors.Is(err, ErrUnterminatedConditional))
	assert.Same(t, outer, s.Top())

	_, err = s.Pop(0)
	assert.NoError(t, err)
	assert.Nil(t, s.Top())
	assert.Panics(t, func() { s.Pop(0) })
}

func TestMissingFinalNewline(t *testing.T) {
	for _, tt := range []struct {
		input string
		want  []string
	}{
		{"a\nb", []string{"no newline at end of file"}},
		{"a\nb\n", nil},
		{"a\r", nil},
		{"", nil},
	} {
		bag := &diag.Bag{}
		s := NewStack(Config{Sink: bag})
		b := NewFile("t.c", []byte(tt.input))
		require.NoError(t, s.Push(b, 0))
		readLines(b)
		_, err := s.Pop(0)
		require.NoError(t, err)
		if tt.want == nil {
			assert.Empty(t, bag.Messages(), "%q", tt.input)
		} else {
			assert.Equal(t, tt.want, bag.Messages(), "%q", tt.input)
		}
	}
}
