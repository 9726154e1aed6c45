package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpelling(t *testing.T) {
	tests := []struct {
		tok  Token
		want string
	}{
		{Token{Kind: LShiftEq}, "<<="},
		{Token{Kind: Paste}, "##"},
		{Token{Kind: Paste, Flags: Digraph}, "%:%:"},
		{Token{Kind: OpenBrace, Flags: Digraph}, "<%"},
		{Token{Kind: Plus, Flags: Digraph}, "+"},
		{Token{Kind: Name, Text: "foo"}, "foo"},
		{Token{Kind: String, Text: `"x"`}, `"x"`},
		{Token{Kind: EOF}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.tok.Spelling())
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "PUNCT", Comma.String())
	assert.Equal(t, "NAME", Name.String())
	assert.Equal(t, "EOF", EOF.String())
	assert.False(t, Name.IsOperator())
	assert.True(t, DotStar.IsOperator())
	assert.Equal(t, "->*", OperatorSpelling(DerefStar))
	assert.Equal(t, "", OperatorSpelling(Number))
	assert.False(t, EOF.Valid())
	assert.True(t, MacroArg.Valid())
	assert.False(t, Kind(200).Valid())
}

func TestEquivalent(t *testing.T) {
	a := Token{Kind: Name, Text: "x", Flags: PrevWhite | BOL}
	assert.True(t, a.Equivalent(Token{Kind: Name, Text: "x", Flags: PrevWhite}), "BOL does not matter")
	assert.False(t, a.Equivalent(Token{Kind: Name, Text: "x"}), "whitespace matters")
	assert.False(t, a.Equivalent(Token{Kind: Name, Text: "y", Flags: PrevWhite}))

	p0 := Token{Kind: MacroArg, Arg: 0, Text: "a"}
	assert.True(t, p0.Equivalent(Token{Kind: MacroArg, Arg: 0, Text: "b"}), "parameters compare by index")
	assert.False(t, p0.Equivalent(Token{Kind: MacroArg, Arg: 1, Text: "a"}))
	assert.False(t, p0.Equivalent(Token{Kind: MacroArg, Arg: 0, Flags: Stringify}))
}

func TestZeroLoc(t *testing.T) {
	var l Loc
	assert.False(t, l.IsValid())
	assert.Equal(t, "<built-in>", l.String())
}

func fill(s *Runs, n int, base int) {
	for i := 0; i < n; i++ {
		tok, replay := s.Next()
		if replay {
			panic("unexpected replay")
		}
		tok.Arg = base + i
	}
}

func TestRunsReuseWithoutRetention(t *testing.T) {
	s := NewRuns(4)
	fill(s, 4, 0)
	first, _ := s.Next()
	first.Arg = 100
	require.Equal(t, 2, s.Count())

	assert.True(t, s.Rewind())
	fill(s, 5, 0)
	assert.Equal(t, 2, s.Count(), "second run is reused after a rewind")
}

func TestRunsGrowWhileRetained(t *testing.T) {
	s := NewRuns(2)
	s.Retain()
	fill(s, 2+4+8+1, 0)
	assert.Equal(t, 4, s.Count())
	assert.False(t, s.Rewind())

	s.Backup(3)
	assert.Equal(t, 3, s.Lookaheads())
	for want := 12; want < 15; want++ {
		tok, replay := s.Next()
		require.True(t, replay)
		assert.Equal(t, want, tok.Arg)
	}
	s.Release()
	assert.False(t, s.Retained())
	assert.True(t, s.Rewind())
}

func TestRunsRetainedNeverOverwritten(t *testing.T) {
	s := NewRuns(2)
	fill(s, 3, 0) // spills into a second run
	s.Rewind()

	fill(s, 1, 10)
	s.Retain()
	fill(s, 3, 11) // would reuse run two, but tokens are retained

	assert.Equal(t, 3, s.Count())
	s.Backup(4)
	for want := 10; want < 14; want++ {
		tok, replay := s.Next()
		require.True(t, replay)
		assert.Equal(t, want, tok.Arg)
	}
	s.Release()
}

func TestRunsBackupAcrossRuns(t *testing.T) {
	s := NewRuns(2)
	s.Retain()
	fill(s, 3, 0)
	s.Backup(2)

	tok, replay := s.Next()
	assert.True(t, replay)
	assert.Equal(t, 1, tok.Arg)
	tok, replay = s.Next()
	assert.True(t, replay)
	assert.Equal(t, 2, tok.Arg)

	tok, replay = s.Next()
	assert.False(t, replay)
	assert.Equal(t, Token{}, *tok, "fresh slots are zeroed")
}

func TestRunsMisuse(t *testing.T) {
	s := NewRuns(0)
	assert.Panics(t, func() { s.Release() })
	assert.Panics(t, func() { s.Backup(1) })
}
