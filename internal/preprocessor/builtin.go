package preprocessor

import (
	"strconv"
	"strings"

	"github.com/fwessels/cpp/internal/buffer"
	"github.com/fwessels/cpp/internal/lexer"
	"github.com/fwessels/cpp/internal/macro"
	"github.com/fwessels/cpp/internal/token"
)

// builtin expands a macro whose value the reader computes.
func (r *Reader) builtin(m *macro.Macro, name token.Token) bool {
	lead := name.Flags & (token.PrevWhite | token.BOL)
	if m.Builtin == macro.BuiltinPragma {
		if !r.pragmaOperator(name) {
			return false
		}
		m.MarkUsed()
		r.pad |= lead
		return true
	}
	m.MarkUsed()

	res := token.Token{Loc: name.Loc}
	switch m.Builtin {
	case macro.BuiltinFile:
		res.Kind, res.Text = token.String, r.strs.InternString(quote(r.here().Position().Filename))
	case macro.BuiltinBaseFile:
		res.Kind, res.Text = token.String, r.strs.InternString(quote(r.mainName))
	case macro.BuiltinLine:
		res.Kind, res.Text = token.Number, r.number(r.here().Position().Line)
	case macro.BuiltinIncludeLevel:
		res.Kind, res.Text = token.Number, r.number(r.stack.FileDepth()-1)
	case macro.BuiltinCounter:
		res.Kind, res.Text = token.Number, r.number(r.counter)
		r.counter++
	case macro.BuiltinDate:
		res.Kind, res.Text = token.String, r.strs.InternString(quote(r.now.Format("Jan _2 2006")))
	case macro.BuiltinTime:
		res.Kind, res.Text = token.String, r.strs.InternString(quote(r.now.Format("15:04:05")))
	}
	r.log.Debug("builtin", "macro", m.Name, "value", res.Text)
	r.pushTokens(m, []token.Token{res}, nil, lead)
	return true
}

func (r *Reader) number(n int) string { return r.strs.InternString(strconv.Itoa(n)) }

// quote spells s as a string literal.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' || s[i] == '"' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

// destringize undoes quote, dropping any L prefix.
func destringize(s string) string {
	s = strings.TrimPrefix(s, "L")
	if len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '\\' || s[i+1] == '"') {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// pragmaOperator runs _Pragma("..."). The operand is destringized and
// handled as the body of a #pragma directive.
func (r *Reader) pragmaOperator(name token.Token) bool {
	str, ok := r.pragmaString()
	if !ok {
		r.errorf(name.Loc, "_Pragma takes a parenthesized string literal")
		return false
	}

	b := buffer.NewText("<_Pragma>", []byte(destringize(str.Text)))
	b.NextLine()
	saved := r.lex.State
	r.lex.State = lexer.State{InDirective: true}
	var toks []token.Token
	for {
		var t token.Token
		r.lex.Lex(b, &t)
		if t.Kind == token.EOF {
			break
		}
		t.Loc = str.Loc
		toks = append(toks, t)
	}
	r.lex.State = saved
	r.pragma(name.Loc, toks)
	return true
}

func (r *Reader) pragmaString() (token.Token, bool) {
	expect := func(ok func(token.Token) bool) (token.Token, bool) {
		t := r.get()
		if ok(t) {
			return t, true
		}
		if t.Kind == token.EOF {
			r.backup()
		}
		return t, false
	}
	if _, ok := expect(func(t token.Token) bool { return t.Kind == token.OpenParen }); !ok {
		return token.Token{}, false
	}
	str, ok := expect(func(t token.Token) bool { return t.Kind == token.String || t.Kind == token.WString })
	if !ok {
		return token.Token{}, false
	}
	if _, ok := expect(func(t token.Token) bool { return t.Kind == token.CloseParen }); !ok {
		return token.Token{}, false
	}
	return str, true
}

// pragma acts on the pragmas the reader knows and hands the rest on.
func (r *Reader) pragma(loc token.Loc, toks []token.Token) {
	if len(toks) == 0 {
		return
	}
	switch {
	case toks[0].Kind == token.Name && toks[0].Text == "once":
		r.pragmaOnce(loc)
	case len(toks) > 1 && toks[0].Text == "GCC" && toks[1].Text == "system_header":
		r.pragmaSystemHeader(loc)
	case r.opts.Pragma != nil:
		r.opts.Pragma(loc, toks)
	default:
		r.log.Debug("pragma ignored", "name", toks[0].Spelling(), "loc", loc.String())
	}
}

func (r *Reader) pragmaOnce(loc token.Loc) {
	b := r.currentFile()
	if b == nil || r.stack.FileDepth() == 1 {
		r.warnf(loc, "#pragma once in main file")
		return
	}
	r.once[b.Name] = true
}

func (r *Reader) pragmaSystemHeader(loc token.Loc) {
	b := r.currentFile()
	if b == nil || r.stack.FileDepth() == 1 {
		r.warnf(loc, "#pragma system_header ignored outside include file")
		return
	}
	b.System = true
}
