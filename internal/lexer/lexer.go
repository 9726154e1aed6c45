// Package lexer turns clean source lines into preprocessing tokens.
package lexer

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/fwessels/cpp/internal/arena"
	"github.com/fwessels/cpp/internal/buffer"
	"github.com/fwessels/cpp/internal/diag"
	"github.com/fwessels/cpp/internal/token"
)

// ASCII classification tables.
var (
	isIdentStart [128]bool
	isIdentPart  [128]bool
	isDigit      [128]bool
	isHSpace     [128]bool
	singleChar   [128]token.Kind
)

func init() {
	for i := 0; i < 128; i++ {
		ch := byte(i)
		isDigit[i] = '0' <= ch && ch <= '9'
		isIdentStart[i] = ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
		isIdentPart[i] = isIdentStart[i] || isDigit[i]
		isHSpace[i] = ch == ' ' || ch == '\t' || ch == '\f' || ch == '\v' || ch == 0
		singleChar[i] = token.EOF
	}
	singleChar['~'] = token.Compl
	singleChar['?'] = token.Query
	singleChar[','] = token.Comma
	singleChar['('] = token.OpenParen
	singleChar[')'] = token.CloseParen
	singleChar['['] = token.OpenSquare
	singleChar[']'] = token.CloseSquare
	singleChar['{'] = token.OpenBrace
	singleChar['}'] = token.CloseBrace
	singleChar[';'] = token.Semicolon
}

// Config selects language features.
type Config struct {
	Dollars   bool // '$' is an identifier character
	Digraphs  bool
	CPlusPlus bool // lex ::, .* and ->*
}

// State holds the mode flags of the current pass. The engine owns it and
// flips the flags as it enters and leaves directives.
type State struct {
	InDirective   bool // end of line yields EOF
	AngledHeaders bool // '<' starts a header name
	SaveComments  bool // comments outside directives become tokens
	Skipping      bool // inside a failed conditional; lexical diagnostics are muted
}

// Lexer reads tokens from a buffer.
type Lexer struct {
	State

	cfg  Config
	strs *arena.Strings
	sink diag.Sink
}

// New returns a lexer interning spellings in strs.
func New(cfg Config, strs *arena.Strings, sink diag.Sink) *Lexer {
	if sink == nil {
		sink = diag.Discard
	}
	return &Lexer{cfg: cfg, strs: strs, sink: sink}
}

func (l *Lexer) report(sev diag.Severity, loc token.Loc, format string, args ...any) {
	if l.Skipping && sev < diag.Error {
		return
	}
	l.sink.Report(diag.Diagnostic{Severity: sev, Loc: loc, Msg: fmt.Sprintf(format, args...)})
}

func digit(c byte) bool { return c < utf8.RuneSelf && isDigit[c] }

func (l *Lexer) identStart(c byte) bool { return isIdentStart[c] || (c == '$' && l.cfg.Dollars) }
func (l *Lexer) identPart(c byte) bool  { return isIdentPart[c] || (c == '$' && l.cfg.Dollars) }

// Lex reads the next token of b into t. The end of the buffer, and the end
// of the line while InDirective is set, yield EOF.
func (l *Lexer) Lex(b *buffer.Buffer, t *token.Token) {
	var flags token.Flags
	for {
		if b.NeedLine() {
			if l.InDirective {
				*t = token.Token{Kind: token.EOF, Flags: flags, Loc: b.Loc(max(len(b.Line)-1, 0))}
				return
			}
			if !b.NextLine() {
				*t = token.Token{Kind: token.EOF, Flags: flags, Loc: b.Loc(0)}
				return
			}
			flags = token.BOL
		}
		b.ProcessNotes(false)

		start := b.Cur
		c := b.Line[start]
		switch {
		case c == '\n':
			b.Cur++
			continue
		case c < utf8.RuneSelf && isHSpace[c]:
			l.skipWhitespace(b)
			flags |= token.PrevWhite
			continue
		case c == '/' && b.Peek(1) == '*':
			loc := b.Loc(start)
			text := l.blockComment(b)
			if l.SaveComments && !l.InDirective {
				*t = token.Token{Kind: token.Comment, Flags: flags, Text: text, Loc: loc}
				return
			}
			flags |= token.PrevWhite
			continue
		case c == '/' && b.Peek(1) == '/':
			end := len(b.Line) - 1
			text := ""
			if l.SaveComments && !l.InDirective {
				text = l.strs.Copy(b.Line[start:end])
			}
			b.Cur = end
			b.ProcessNotes(true)
			if text != "" {
				*t = token.Token{Kind: token.Comment, Flags: flags, Text: text, Loc: b.Loc(start)}
				return
			}
			flags |= token.PrevWhite
			continue
		}

		*t = token.Token{Flags: flags, Loc: b.Loc(start)}
		l.lexToken(b, t, c)
		return
	}
}

func (l *Lexer) skipWhitespace(b *buffer.Buffer) {
	warned := false
	for {
		c := b.Line[b.Cur]
		if c >= utf8.RuneSelf || !isHSpace[c] {
			return
		}
		switch {
		case c == 0 && !warned:
			l.report(diag.Warning, b.Loc(b.Cur), "null character(s) ignored")
			warned = true
		case (c == '\f' || c == '\v') && l.InDirective && !warned:
			name := "form feed"
			if c == '\v' {
				name = "vertical tab"
			}
			l.report(diag.Pedwarn, b.Loc(b.Cur), "%s in preprocessing directive", name)
			warned = true
		}
		b.Cur++
	}
}

// blockComment skips a comment starting at the cursor, crossing lines as
// needed, and returns its text when comments are being saved.
func (l *Lexer) blockComment(b *buffer.Buffer) string {
	start := b.Cur
	save := l.SaveComments && !l.InDirective
	var scratch *arena.Block[byte]
	if save {
		scratch = l.strs.Scratch(64)
	}
	b.Cur += 2
	for {
		rest := b.Line[b.Cur:]
		if i := bytes.Index(rest, []byte("*/")); i >= 0 {
			b.Cur += i + 2
			if save {
				scratch = l.strs.GrowScratch(scratch, b.Cur-start)
				scratch.Append(b.Line[start:b.Cur]...)
			}
			b.ProcessNotes(true)
			break
		}
		if save {
			scratch = l.strs.GrowScratch(scratch, len(b.Line)-start)
			scratch.Append(b.Line[start:]...)
		}
		b.Cur = len(b.Line)
		b.ProcessNotes(true)
		loc := b.Loc(start)
		if !b.NextLine() {
			l.report(diag.Error, loc, "unterminated comment")
			break
		}
		start = 0
	}
	if !save {
		return ""
	}
	text := l.strs.Copy(scratch.Items())
	l.strs.ReleaseScratch(scratch)
	return text
}

func (l *Lexer) lexToken(b *buffer.Buffer, t *token.Token, c byte) {
	line := b.Line
	start := b.Cur
	switch {
	case c == 'L' && (b.Peek(1) == '\'' || b.Peek(1) == '"'):
		b.Cur++
		l.literal(b, t, start, line[b.Cur])
	case c < utf8.RuneSelf && l.identStart(c):
		end := start + 1
		for line[end] < utf8.RuneSelf && l.identPart(line[end]) {
			end++
		}
		b.Cur = end
		t.Kind = token.Name
		t.Text = l.strs.Intern(line[start:end])
	case digit(c) || (c == '.' && digit(b.Peek(1))):
		l.number(b, t)
	case c == '\'' || c == '"':
		l.literal(b, t, start, c)
	case c == '<' && l.AngledHeaders:
		if i := bytes.IndexByte(line[start+1:], '>'); i >= 0 {
			b.Cur = start + i + 2
			t.Kind = token.HeaderName
			t.Text = l.strs.Copy(line[start:b.Cur])
			return
		}
		l.punct(b, t, c)
	case c >= utf8.RuneSelf:
		_, n := utf8.DecodeRune(line[start : len(line)-1])
		b.Cur += n
		t.Kind = token.Other
		t.Text = l.strs.Copy(line[start:b.Cur])
	default:
		l.punct(b, t, c)
	}
}

// number lexes a pp-number: a digit, optionally after a dot, followed by
// identifier characters, dots and exponent signs.
func (l *Lexer) number(b *buffer.Buffer, t *token.Token) {
	line := b.Line
	start := b.Cur
	end := start + 1
	for {
		c := line[end]
		if c < utf8.RuneSelf && (l.identPart(c) || c == '.') {
			end++
			continue
		}
		if (c == '+' || c == '-') && isExponent(line[end-1]) {
			end++
			continue
		}
		break
	}
	b.Cur = end
	t.Kind = token.Number
	t.Text = l.strs.Copy(line[start:end])
}

func isExponent(c byte) bool {
	return c == 'e' || c == 'E' || c == 'p' || c == 'P'
}

// literal lexes a character constant or string literal; start is the first
// byte of the spelling including any L prefix. A literal that reaches the
// end of the line becomes an Other token.
func (l *Lexer) literal(b *buffer.Buffer, t *token.Token, start int, quote byte) {
	line := b.Line
	cur := b.Cur + 1
	closed := false
	for {
		ch := line[cur]
		if ch == '\n' {
			break
		}
		cur++
		if ch == '\\' && line[cur] != '\n' {
			cur++
			continue
		}
		if ch == quote {
			closed = true
			break
		}
	}
	b.Cur = cur
	t.Text = l.strs.Copy(line[start:cur])
	if !closed {
		t.Kind = token.Other
		l.report(diag.Pedwarn, t.Loc, "missing terminating %c character", quote)
		return
	}
	wide := line[start] == 'L'
	switch {
	case quote == '"' && wide:
		t.Kind = token.WString
	case quote == '"':
		t.Kind = token.String
	case wide:
		t.Kind = token.WChar
	default:
		t.Kind = token.Char
	}
}

func (l *Lexer) punct(b *buffer.Buffer, t *token.Token, c byte) {
	p1, p2 := b.Peek(1), b.Peek(2)
	n := 1
	k := token.EOF
	digraph := false
	pick := func(kind token.Kind, width int) { k, n = kind, width }

	switch c {
	case '=':
		pick(token.Eq, 1)
		if p1 == '=' {
			pick(token.EqEq, 2)
		}
	case '!':
		pick(token.Not, 1)
		if p1 == '=' {
			pick(token.NotEq, 2)
		}
	case '<':
		switch {
		case p1 == '<' && p2 == '=':
			pick(token.LShiftEq, 3)
		case p1 == '<':
			pick(token.LShift, 2)
		case p1 == '=':
			pick(token.LessEq, 2)
		case p1 == ':' && l.cfg.Digraphs:
			pick(token.OpenSquare, 2)
			digraph = true
		case p1 == '%' && l.cfg.Digraphs:
			pick(token.OpenBrace, 2)
			digraph = true
		default:
			pick(token.Less, 1)
		}
	case '>':
		switch {
		case p1 == '>' && p2 == '=':
			pick(token.RShiftEq, 3)
		case p1 == '>':
			pick(token.RShift, 2)
		case p1 == '=':
			pick(token.GreaterEq, 2)
		default:
			pick(token.Greater, 1)
		}
	case '+':
		switch p1 {
		case '+':
			pick(token.PlusPlus, 2)
		case '=':
			pick(token.PlusEq, 2)
		default:
			pick(token.Plus, 1)
		}
	case '-':
		switch {
		case p1 == '-':
			pick(token.MinusMinus, 2)
		case p1 == '=':
			pick(token.MinusEq, 2)
		case p1 == '>' && p2 == '*' && l.cfg.CPlusPlus:
			pick(token.DerefStar, 3)
		case p1 == '>':
			pick(token.Deref, 2)
		default:
			pick(token.Minus, 1)
		}
	case '*':
		pick(token.Mult, 1)
		if p1 == '=' {
			pick(token.MultEq, 2)
		}
	case '/':
		pick(token.Div, 1)
		if p1 == '=' {
			pick(token.DivEq, 2)
		}
	case '%':
		switch {
		case p1 == '=':
			pick(token.ModEq, 2)
		case p1 == ':' && l.cfg.Digraphs:
			pick(token.Hash, 2)
			digraph = true
			if p2 == '%' && b.Peek(3) == ':' {
				pick(token.Paste, 4)
			}
		case p1 == '>' && l.cfg.Digraphs:
			pick(token.CloseBrace, 2)
			digraph = true
		default:
			pick(token.Mod, 1)
		}
	case '&':
		switch p1 {
		case '&':
			pick(token.AndAnd, 2)
		case '=':
			pick(token.AndEq, 2)
		default:
			pick(token.And, 1)
		}
	case '|':
		switch p1 {
		case '|':
			pick(token.OrOr, 2)
		case '=':
			pick(token.OrEq, 2)
		default:
			pick(token.Or, 1)
		}
	case '^':
		pick(token.Xor, 1)
		if p1 == '=' {
			pick(token.XorEq, 2)
		}
	case ':':
		switch {
		case p1 == ':' && l.cfg.CPlusPlus:
			pick(token.Scope, 2)
		case p1 == '>' && l.cfg.Digraphs:
			pick(token.CloseSquare, 2)
			digraph = true
		default:
			pick(token.Colon, 1)
		}
	case '.':
		switch {
		case p1 == '.' && p2 == '.':
			pick(token.Ellipsis, 3)
		case p1 == '*' && l.cfg.CPlusPlus:
			pick(token.DotStar, 2)
		default:
			pick(token.Dot, 1)
		}
	case '#':
		pick(token.Hash, 1)
		if p1 == '#' {
			pick(token.Paste, 2)
		}
	default:
		if c < utf8.RuneSelf {
			k = singleChar[c]
		}
	}

	if k == token.EOF {
		t.Kind = token.Other
		t.Text = l.strs.Copy(b.Line[b.Cur : b.Cur+1])
		b.Cur++
		return
	}
	t.Kind = k
	if digraph {
		t.Flags |= token.Digraph
	}
	b.Cur += n
}

// AtLineEnd reports whether only the line terminator remains in b's
// current line, meaning a single Lex consumed everything before it.
func AtLineEnd(b *buffer.Buffer) bool {
	return b.Cur == len(b.Line)-1 || b.NeedLine()
}
