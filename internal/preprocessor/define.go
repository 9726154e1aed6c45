package preprocessor

import (
	"bytes"
	stdcontext "context"
	"log/slog"
	"slices"
	"strings"

	"github.com/fwessels/cpp/internal/macro"
	"github.com/fwessels/cpp/internal/token"
)

// ParseDefine splits a command-line definition "NAME=VALUE". A bare NAME
// is defined to 1.
func ParseDefine(s string) (name, value string) {
	if i := strings.IndexByte(s, '='); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, "1"
}

// lexMacroName reads the macro name of #define, #undef, #ifdef and #ifndef.
func (r *Reader) lexMacroName(dname token.Token) (token.Token, bool) {
	t := r.lexToken()
	switch {
	case t.Kind == token.Name && t.Text == "defined":
		r.errorf(t.Loc, `"defined" cannot be used as a macro name`)
	case t.Kind == token.Name:
		return t, true
	case t.Kind == token.EOF:
		r.errorf(dname.Loc, "no macro name given in #%s directive", dname.Text)
	default:
		r.errorf(t.Loc, "macro names must be identifiers")
	}
	return t, false
}

func (r *Reader) doDefine(dname token.Token) {
	name, ok := r.lexMacroName(dname)
	if !ok {
		return
	}
	m := &macro.Macro{Name: name.Text, Loc: name.Loc, System: r.inSystemHeader()}
	if r.opts.Traditional {
		ok = r.tradDefinition(m)
	} else {
		ok = r.isoDefinition(m)
	}
	if !ok {
		return
	}
	if err := r.macros.Define(m); err != nil {
		r.fatal(name.Loc, err, "%q redefined", m.Name)
		return
	}
	if r.log.Enabled(stdcontext.Background(), slog.LevelDebug) {
		r.log.Debug("define", "macro", m.Definition(), "loc", name.Loc.String())
	}
}

func (r *Reader) isoDefinition(m *macro.Macro) bool {
	t := r.lexToken()
	switch {
	case t.Kind == token.OpenParen && t.Flags&token.PrevWhite == 0:
		m.Fun = true
		if !r.parseParams(m) {
			return false
		}
		t = r.lexToken()
	case t.Kind != token.EOF && t.Flags&token.PrevWhite == 0:
		r.pedwarnf(t.Loc, "ISO C99 requires whitespace after the macro name")
	}

	var body []token.Token
	for ; t.Kind != token.EOF; t = r.lexToken() {
		t.Flags &^= token.BOL
		if t.Kind == token.Name {
			if i := slices.Index(m.Params, t.Text); i >= 0 {
				t = token.Token{Kind: token.MacroArg, Flags: t.Flags & token.PrevWhite, Text: t.Text, Arg: i, Loc: t.Loc}
			} else if t.Text == macro.VarArgs {
				r.pedwarnf(t.Loc, "__VA_ARGS__ can only appear in the expansion of a C99 variadic macro")
			}
		}

		switch {
		case t.Kind == token.Hash && m.Fun:
			arg := r.lexToken()
			if arg.Kind != token.Name || !slices.Contains(m.Params, arg.Text) {
				r.errorf(t.Loc, "'#' is not followed by a macro parameter")
				return false
			}
			t = token.Token{
				Kind:  token.MacroArg,
				Flags: t.Flags&token.PrevWhite | token.Stringify,
				Text:  arg.Text,
				Arg:   slices.Index(m.Params, arg.Text),
				Loc:   t.Loc,
			}
		case t.Kind == token.Paste:
			if len(body) == 0 {
				r.errorf(t.Loc, "'##' cannot appear at either end of a macro expansion")
				return false
			}
			body[len(body)-1].Flags |= token.PasteLeft
			if next := r.lexToken(); next.Kind == token.EOF {
				r.errorf(t.Loc, "'##' cannot appear at either end of a macro expansion")
				return false
			}
			r.backup()
			continue
		}
		body = append(body, t)
	}
	if len(body) > 0 {
		body[0].Flags &^= token.PrevWhite
		m.Tokens = r.toks.Permanent(len(body))
		copy(m.Tokens, body)
	}
	return true
}

// parseParams reads a parameter list; the '(' has been consumed.
func (r *Reader) parseParams(m *macro.Macro) bool {
	prevIdent := false
	for {
		t := r.lexToken()
		switch t.Kind {
		case token.Name:
			if prevIdent {
				r.errorf(t.Loc, "macro parameters must be comma-separated")
				return false
			}
			if t.Text == macro.VarArgs {
				r.pedwarnf(t.Loc, "__VA_ARGS__ can only appear in the expansion of a C99 variadic macro")
			}
			if slices.Contains(m.Params, t.Text) {
				r.errorf(t.Loc, "duplicate macro parameter %q", t.Text)
				return false
			}
			m.Params = append(m.Params, t.Text)
			prevIdent = true
			continue

		case token.CloseParen:
			if prevIdent || len(m.Params) == 0 {
				return true
			}
			r.errorf(t.Loc, "parameter name missing")
			return false

		case token.Comma:
			if !prevIdent {
				r.errorf(t.Loc, "parameter name missing")
				return false
			}
			prevIdent = false
			continue

		case token.Ellipsis:
			m.Variadic = true
			if !prevIdent {
				m.Params = append(m.Params, macro.VarArgs)
			} else if r.opts.Pedantic {
				r.pedwarnf(t.Loc, "ISO C does not permit named variadic macros")
			}
			if c := r.lexToken(); c.Kind != token.CloseParen {
				r.errorf(c.Loc, "missing ')' in macro parameter list")
				return false
			}
			return true

		case token.EOF:
			r.errorf(t.Loc, "missing ')' in macro parameter list")
			return false

		default:
			r.errorf(t.Loc, "%q may not appear in macro parameter list", t.Spelling())
			return false
		}
	}
}

// tradDefinition keeps the rest of the directive line as raw text.
func (r *Reader) tradDefinition(m *macro.Macro) bool {
	b := r.stack.Top()
	if b.Cur < len(b.Line) && b.Line[b.Cur] == '(' {
		r.lexToken()
		m.Fun = true
		if !r.parseParams(m) {
			return false
		}
	}
	m.Traditional = true
	if b.Cur < len(b.Line) {
		m.Text = r.strs.Copy(bytes.TrimSpace(b.Line[b.Cur:]))
		b.Cur = len(b.Line) - 1
	}
	return true
}

func (r *Reader) doUndef(dname token.Token) {
	name, ok := r.lexMacroName(dname)
	if !ok {
		return
	}
	if m := r.macros.Peek(name.Text); m != nil {
		if r.opts.WarnUnusedMacros && !m.Used() && !m.System && m.Builtin == macro.NotBuiltin {
			r.warnUnused(m)
		}
		r.macros.Undef(name.Text, name.Loc)
		r.log.Debug("undef", "macro", name.Text)
	}
	r.checkEOL(dname)
}
