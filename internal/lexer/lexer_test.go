package lexer

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwessels/cpp/internal/arena"
	"github.com/fwessels/cpp/internal/buffer"
	"github.com/fwessels/cpp/internal/diag"
	"github.com/fwessels/cpp/internal/token"
)

func newLexer(cfg Config, input string) (*Lexer, *buffer.Buffer, *diag.Bag) {
	bag := &diag.Bag{}
	s := buffer.NewStack(buffer.Config{Sink: bag})
	b := buffer.NewFile("t.c", []byte(input))
	if err := s.Push(b, 0); err != nil {
		panic(err)
	}
	return New(cfg, arena.NewStrings(), bag), b, bag
}

func drain(l *Lexer, b *buffer.Buffer) []token.Token {
	var out []token.Token
	for {
		var t token.Token
		l.Lex(b, &t)
		if t.Kind == token.EOF {
			return out
		}
		out = append(out, t)
	}
}

func join(toks []token.Token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.Spelling()
	}
	return strings.Join(parts, ".")
}

var lexTests = []struct {
	name   string
	cfg    Config
	input  string
	output string
}{
	{"empty", Config{}, "", ""},
	{"simple", Config{}, "1 (a)", "1.(.a.)"},
	{"operators", Config{}, "a<<=b>>c->d...e", "a.<<=.b.>>.c.->.d.....e"},
	{"greedy", Config{}, "x+++++y", "x.++.++.+.y"},
	{"pp-numbers", Config{}, "1e+5 0x1p-3 .5f 1.2.3 12ab", "1e+5.0x1p-3..5f.1.2.3.12ab"},
	{"not an exponent", Config{}, "0x1f+2", "0x1f.+.2"},
	{"literals", Config{}, `"a\"b" 'c' L"w" L'x'`, `"a\"b".'c'.L"w".L'x'`},
	{"comments", Config{}, "a/* x */b // tail", "a.b"},
	{"block comment across lines", Config{}, "a /* 1\n2 */ b\nc", "a.b.c"},
	{"paste and hash", Config{}, "# ## #", "#.##.#"},
	{"digraphs off", Config{}, "<: %:", "<.:.%.:"},
	{"digraphs", Config{Digraphs: true}, "<: :> <% %> %: %:%:", "<:.:>.<%.%>.%:.%:%:"},
	{"digraph hash then mod", Config{Digraphs: true}, "%:%", "%:.%"},
	{"c++ operators", Config{CPlusPlus: true}, "a::b .* ->*", "a.::.b..*.->*"},
	{"c operators", Config{}, "a::b", "a.:.:.b"},
	{"stray characters", Config{}, "@ ` \\", "@.`.\\"},
	{"dollar off", Config{}, "a$b", "a.$.b"},
	{"dollar on", Config{Dollars: true}, "a$b", "a$b"},
	{"utf-8", Config{}, "é", "é"},
	{"spliced identifier", Config{}, "ab\\\ncd", "abcd"},
}

func TestLex(t *testing.T) {
	for _, tt := range lexTests {
		t.Run(tt.name, func(t *testing.T) {
			l, b, _ := newLexer(tt.cfg, tt.input)
			got := join(drain(l, b))
			if diff := cmp.Diff(tt.output, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestKinds(t *testing.T) {
	l, b, _ := newLexer(Config{}, `x 1 'c' L'c' "s" L"s" @ ;`)
	var kinds []token.Kind
	for _, tok := range drain(l, b) {
		kinds = append(kinds, tok.Kind)
	}
	want := []token.Kind{token.Name, token.Number, token.Char, token.WChar, token.String, token.WString, token.Other, token.Semicolon}
	assert.Equal(t, want, kinds)
}

func TestFlags(t *testing.T) {
	l, b, _ := newLexer(Config{}, "a b/**/c\n  d")
	toks := drain(l, b)
	require.Len(t, toks, 4)
	assert.Equal(t, token.BOL, toks[0].Flags)
	assert.Equal(t, token.PrevWhite, toks[1].Flags)
	assert.Equal(t, token.PrevWhite, toks[2].Flags, "comments count as whitespace")
	assert.Equal(t, token.BOL|token.PrevWhite, toks[3].Flags)
}

func TestLocations(t *testing.T) {
	l, b, _ := newLexer(Config{}, "a\n  bb\\\n c")
	toks := drain(l, b)
	require.Len(t, toks, 3)

	p := toks[1].Loc.Position()
	assert.Equal(t, 2, p.Line)
	assert.Equal(t, 3, p.Column)
	assert.Equal(t, "bb", toks[1].Text)

	p = toks[2].Loc.Position()
	assert.Equal(t, 3, p.Line)
	assert.Equal(t, 2, p.Column)
}

func TestDirectiveEndsAtNewline(t *testing.T) {
	l, b, _ := newLexer(Config{}, "#define X 1\nY")
	require.True(t, b.NextLine())
	l.InDirective = true

	var got []string
	for {
		var tok token.Token
		l.Lex(b, &tok)
		if tok.Kind == token.EOF {
			break
		}
		got = append(got, tok.Spelling())
	}
	assert.Equal(t, []string{"#", "define", "X", "1"}, got)

	l.InDirective = false
	var tok token.Token
	l.Lex(b, &tok)
	assert.Equal(t, "Y", tok.Text)
	assert.True(t, tok.Has(token.BOL))
}

func TestHeaderNames(t *testing.T) {
	l, b, _ := newLexer(Config{}, "<stdio.h> <a")
	l.AngledHeaders = true
	toks := drain(l, b)
	require.Len(t, toks, 3)
	assert.Equal(t, token.HeaderName, toks[0].Kind)
	assert.Equal(t, "<stdio.h>", toks[0].Text)
	assert.Equal(t, token.Less, toks[1].Kind)
}

func TestSavedComments(t *testing.T) {
	l, b, _ := newLexer(Config{}, "a /* x\ny */ // z\nb")
	l.SaveComments = true
	toks := drain(l, b)
	require.Len(t, toks, 4)
	assert.Equal(t, token.Comment, toks[1].Kind)
	assert.Equal(t, "/* x\ny */", toks[1].Text)
	assert.Equal(t, "// z", toks[2].Text)
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/* open", "unterminated comment"},
		{"'a", "missing terminating ' character"},
		{"\"a", "missing terminating \" character"},
		{"a\x00b", "null character(s) ignored"},
	}
	for _, tt := range tests {
		l, b, bag := newLexer(Config{}, tt.input)
		drain(l, b)
		assert.Equal(t, []string{tt.want}, bag.Messages(), tt.input)
	}
}

func TestSkippingMutesWarnings(t *testing.T) {
	l, b, bag := newLexer(Config{}, "'a")
	l.Skipping = true
	toks := drain(l, b)
	require.Len(t, toks, 1)
	assert.Equal(t, token.Other, toks[0].Kind)
	assert.Empty(t, bag.Messages())
}

func TestAtLineEnd(t *testing.T) {
	l, _, _ := newLexer(Config{}, "")
	b := buffer.NewText("<paste>", []byte("ab"))
	var tok token.Token
	l.Lex(b, &tok)
	assert.True(t, AtLineEnd(b))

	b = buffer.NewText("<paste>", []byte("+-"))
	l.Lex(b, &tok)
	assert.False(t, AtLineEnd(b))
}
