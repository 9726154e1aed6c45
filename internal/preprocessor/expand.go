package preprocessor

import (
	"github.com/fwessels/cpp/internal/arena"
	"github.com/fwessels/cpp/internal/buffer"
	"github.com/fwessels/cpp/internal/diag"
	"github.com/fwessels/cpp/internal/lexer"
	"github.com/fwessels/cpp/internal/macro"
	"github.com/fwessels/cpp/internal/token"
)

// macroArg is one collected argument.
type macroArg struct {
	first   []token.Token // as written, terminated by an EOF token
	omitted bool          // variadic group left out of the call entirely

	expanded []token.Token
	expBlock *arena.Block[token.Token]
	expDone  bool

	str     token.Token
	strDone bool
}

func (a *macroArg) raw() []token.Token { return a.first[:len(a.first)-1] }

// enterMacro expands m, whose name is t. It returns false when a
// function-like macro turns out not to be invoked, leaving t to be
// returned as it is.
func (r *Reader) enterMacro(m *macro.Macro, t token.Token) bool {
	if m.Builtin != macro.NotBuiltin {
		return r.builtin(m, t)
	}
	lead := t.Flags & (token.PrevWhite | token.BOL)

	var args []macroArg
	var block *arena.Block[token.Token]
	if m.Fun {
		r.st.preventExpansion++
		r.runs.Retain()
		r.st.parsingArgs = 1
		var ok bool
		args, block, ok = r.funlikeInvocation(m, t)
		r.st.parsingArgs = 0
		r.runs.Release()
		r.st.preventExpansion--
		if !ok {
			return false
		}
	}
	m.MarkUsed()

	switch {
	case m.Traditional:
		r.pushText(m, r.tradExpansion(m, args), t.Loc, lead)
	case len(m.Params) > 0:
		r.replaceArgs(m, args, lead)
	default:
		r.pushTokens(m, m.Tokens, nil, lead)
	}
	if block != nil {
		r.toks.Release(block)
	}
	return true
}

// funlikeInvocation looks for the '(' that makes a function-like macro
// name an invocation and collects the arguments.
func (r *Reader) funlikeInvocation(m *macro.Macro, name token.Token) ([]macroArg, *arena.Block[token.Token], bool) {
	t := r.get()
	for t.Kind == token.Comment {
		t = r.get()
	}
	if t.Kind != token.OpenParen {
		r.backup()
		return nil, nil, false
	}
	r.st.parsingArgs = 2
	return r.collectArgs(m, name)
}

// collectArgs reads the arguments up to the matching ')'. Every argument
// is stored in one block, each followed by an EOF token that stops its
// pre-expansion.
func (r *Reader) collectArgs(m *macro.Macro, name token.Token) ([]macroArg, *arena.Block[token.Token], bool) {
	block := r.toks.Acquire(32)
	var ends []int
	depth := 0
	variadicLast := func() bool { return m.Variadic && len(ends) == len(m.Params)-1 }
	closeArg := func(at token.Token) {
		block = r.toks.Extend(block, 1)
		ends = append(ends, block.Len())
		block.Append(token.Token{Kind: token.EOF, Loc: at.Loc})
	}

collect:
	for {
		t := r.get()
		switch t.Kind {
		case token.Comment:
			continue
		case token.OpenParen:
			depth++
		case token.CloseParen:
			if depth == 0 {
				closeArg(t)
				break collect
			}
			depth--
		case token.Comma:
			if depth == 0 && !variadicLast() {
				closeArg(t)
				continue
			}
		case token.EOF:
			r.toks.Release(block)
			r.unterminated(m, name)
			return nil, nil, false
		}
		if t.Flags&token.BOL != 0 {
			t.Flags = t.Flags&^token.BOL | token.PrevWhite
		}
		block = r.toks.Extend(block, 1)
		block.Append(t)
	}

	items := block.Items()
	args := make([]macroArg, 0, len(ends)+1)
	start := 0
	for _, end := range ends {
		args = append(args, macroArg{first: items[start : end+1]})
		start = end + 1
	}
	if len(args) == 1 && len(m.Params) == 0 && len(args[0].first) == 1 {
		args = args[:0]
	}
	if !r.argumentsOK(m, name, len(args)) {
		r.toks.Release(block)
		return nil, nil, false
	}
	if len(args) < len(m.Params) {
		args = append(args, macroArg{first: []token.Token{{Kind: token.EOF}}, omitted: true})
	}
	return args, block, true
}

func (r *Reader) argumentsOK(m *macro.Macro, name token.Token, argc int) bool {
	paramc := len(m.Params)
	switch {
	case argc == paramc:
		return true
	case argc < paramc:
		if argc+1 == paramc && m.Variadic {
			if r.opts.Pedantic && !m.System {
				r.pedwarnf(name.Loc, "ISO C99 requires rest arguments to be used")
			}
			return true
		}
		r.errorf(name.Loc, "macro %q requires %d arguments, but only %d given", m.Name, paramc, argc)
	default:
		r.errorf(name.Loc, "macro %q passed %d arguments, but takes just %d", m.Name, argc, paramc)
	}
	return false
}

// unterminated handles an EOF inside an argument list. Running out of a
// directive line or of a rescanned argument is an error; running out of
// input is fatal.
func (r *Reader) unterminated(m *macro.Macro, name token.Token) {
	if r.ctx.kind != baseContext || r.lex.InDirective {
		r.backup()
		r.errorf(name.Loc, "unterminated argument list invoking macro %q", m.Name)
		return
	}
	r.fatal(name.Loc, ErrUnterminatedCall, "unterminated argument list invoking macro %q", m.Name)
}

// expandArg macro-expands an argument in isolation: its tokens are pushed
// as a context and pulled until the terminating EOF.
func (r *Reader) expandArg(a *macroArg) {
	a.expDone = true
	r.ctx = &context{kind: tokenContext, prev: r.ctx, toks: a.first}
	argCtx := r.ctx
	blk := r.toks.Acquire(len(a.first))
	for {
		t := r.get()
		if t.Kind == token.EOF {
			break
		}
		blk = r.toks.Extend(blk, 1)
		blk.Append(t)
	}
	if r.ctx == argCtx {
		r.ctx = argCtx.prev
	}
	a.expanded = blk.Items()
	a.expBlock = blk
}

// replaceArgs substitutes the arguments into m's replacement list and
// pushes the result.
func (r *Reader) replaceArgs(m *macro.Macro, args []macroArg, lead token.Flags) {
	src := m.Tokens
	total := len(src)
	for i, s := range src {
		if s.Kind != token.MacroArg {
			continue
		}
		a := &args[s.Arg]
		switch {
		case s.Flags&token.Stringify != 0:
			if !a.strDone {
				a.str = r.stringifyArg(a)
				a.strDone = true
			}
		case s.Flags&token.PasteLeft != 0 || (i > 0 && src[i-1].Flags&token.PasteLeft != 0):
			total += len(a.raw())
		default:
			if !a.expDone {
				r.expandArg(a)
			}
			total += len(a.expanded)
		}
	}

	blk := r.toks.Acquire(total)
	var white token.Flags
	for i, s := range src {
		if s.Kind != token.MacroArg {
			if white != 0 {
				s.Flags |= white
				white = 0
			}
			blk = r.toks.Extend(blk, 1)
			blk.Append(s)
			continue
		}

		a := &args[s.Arg]
		pasteRHS := i > 0 && src[i-1].Flags&token.PasteLeft != 0
		fix := -1
		var from []token.Token
		switch {
		case s.Flags&token.Stringify != 0:
			str := a.str
			str.Loc = s.Loc
			from = []token.Token{str}
		case s.Flags&token.PasteLeft != 0:
			from = a.raw()
		case pasteRHS:
			from = a.raw()
			if n := blk.Len(); n > 0 {
				prev := blk.Items()[n-1]
				switch {
				case prev.Kind == token.Comma && m.Variadic && s.Arg == len(m.Params)-1:
					// GNU comma elision: ", ## __VA_ARGS__" drops the comma
					// when the variadic group is omitted.
					if a.omitted {
						blk.Truncate(n - 1)
					} else {
						fix = n - 1
					}
				case len(from) == 0:
					fix = n - 1
				}
			}
		default:
			from = a.expanded
		}

		w := s.Flags&token.PrevWhite | white
		if pasteRHS {
			w = 0
		}
		white = 0
		if len(from) == 0 {
			white = w
		}
		blk = r.toks.Extend(blk, len(from))
		for j, t := range from {
			if j == 0 && !pasteRHS {
				t.Flags = t.Flags&^token.PrevWhite | w
			}
			blk.Append(t)
		}
		if s.Flags&token.PasteLeft != 0 && len(from) > 0 {
			fix = blk.Len() - 1
		}
		if fix >= 0 {
			it := &blk.Items()[fix]
			if s.Flags&token.PasteLeft != 0 {
				it.Flags |= token.PasteLeft
			} else {
				it.Flags &^= token.PasteLeft
			}
		}
	}

	for i := range args {
		if args[i].expBlock != nil {
			r.toks.Release(args[i].expBlock)
			args[i].expBlock = nil
		}
	}
	r.pushTokens(m, blk.Items(), blk, lead)
}

// stringifyArg spells an argument as a string literal. Whitespace between
// tokens becomes one space; quotes and backslashes inside string and
// character literals are escaped.
func (r *Reader) stringifyArg(a *macroArg) token.Token {
	buf := r.strs.Scratch(64)
	buf.Append('"')
	backslashes := 0
	for i, t := range a.raw() {
		s := t.Spelling()
		buf = r.strs.GrowScratch(buf, 2*len(s)+2)
		if i > 0 && t.Flags&token.PrevWhite != 0 {
			buf.Append(' ')
		}
		switch t.Kind {
		case token.String, token.WString, token.Char, token.WChar:
			for j := 0; j < len(s); j++ {
				if s[j] == '\\' || s[j] == '"' {
					buf.Append('\\')
				}
				buf.Append(s[j])
			}
		default:
			buf.Append([]byte(s)...)
		}
		if t.Kind == token.Other && s[0] == '\\' {
			backslashes++
		} else {
			backslashes = 0
		}
	}
	if backslashes%2 == 1 {
		r.warnf(a.first[len(a.first)-1].Loc, "invalid string literal, ignoring final '\\'")
		buf.Truncate(buf.Len() - 1)
	}
	buf = r.strs.GrowScratch(buf, 1)
	buf.Append('"')
	text := r.strs.Copy(buf.Items())
	r.strs.ReleaseScratch(buf)
	return token.Token{Kind: token.String, Text: text}
}

// pasteAll pastes lhs with the tokens that follow it in the current
// context for as long as they carry PasteLeft, and pushes the result.
func (r *Reader) pasteAll(lhs token.Token) {
	c := r.ctx
	for {
		if c.pos == len(c.toks) {
			lhs.Flags &^= token.PasteLeft
			break
		}
		rhs := c.toks[c.pos]
		c.pos++
		res, ok := r.pasteTokens(lhs, rhs)
		if !ok {
			c.pos--
			r.report(diag.Error, lhs.Loc, "pasting %q and %q does not give a valid preprocessing token", lhs.Spelling(), rhs.Spelling())
			lhs.Flags &^= token.PasteLeft
			break
		}
		lhs = res
		if rhs.Flags&token.PasteLeft == 0 {
			break
		}
	}
	r.pushTokens(nil, []token.Token{lhs}, nil, 0)
}

// pasteTokens re-lexes the joined spellings of lhs and rhs. The paste is
// valid when exactly one token comes out.
func (r *Reader) pasteTokens(lhs, rhs token.Token) (token.Token, bool) {
	ls, rs := lhs.Spelling(), rhs.Spelling()
	buf := r.strs.Scratch(len(ls) + len(rs) + 1)
	buf.Append([]byte(ls)...)
	// Keep "/" "/" and "/" "*" from lexing as a comment.
	if lhs.Kind == token.Div && rhs.Kind != token.Eq {
		buf.Append(' ')
	}
	buf.Append([]byte(rs)...)

	b := buffer.NewText("<paste>", buf.Items())
	var t token.Token
	saved := r.lex.State
	r.lex.State = lexer.State{}
	r.lex.Lex(b, &t)
	r.lex.State = saved
	ok := t.Kind != token.EOF && lexer.AtLineEnd(b)
	r.strs.ReleaseScratch(buf)

	t.Flags = t.Flags&token.Digraph | lhs.Flags&(token.PrevWhite|token.BOL)
	t.Loc = lhs.Loc
	return t, ok
}
