// Package preprocessor implements the C macro expansion engine.
//
// A Reader pulls raw tokens from the lexer, runs directives as it meets
// them and rewrites macro invocations through a stack of contexts layered
// over the buffer stack. Callers see only the final token stream.
package preprocessor

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fwessels/cpp/internal/arena"
	"github.com/fwessels/cpp/internal/buffer"
	"github.com/fwessels/cpp/internal/charset"
	"github.com/fwessels/cpp/internal/diag"
	"github.com/fwessels/cpp/internal/lexer"
	"github.com/fwessels/cpp/internal/macro"
	"github.com/fwessels/cpp/internal/token"
)

type ctxKind uint8

const (
	baseContext ctxKind = iota
	tokenContext
	textContext
)

// context is one active token source. Token contexts walk a slice of
// tokens, text contexts re-lex the raw replacement of a traditional macro.
type context struct {
	kind  ctxKind
	prev  *context
	macro *macro.Macro // nil for the base, argument and paste contexts

	toks  []token.Token
	pos   int
	block *arena.Block[token.Token] // owned storage behind toks

	text    *buffer.Buffer
	lastCur int
	loc     token.Loc

	// lead replaces the whitespace flags of the first token, so an
	// expansion inherits the spacing of the name it replaced.
	lead    token.Flags
	hasLead bool
}

// state is the per-pass mode of the engine, saved and restored around
// directives.
type state struct {
	preventExpansion int
	parsingArgs      int // 1 while looking for '(', 2 inside the argument list
	inExpression     bool
	exprFailed       bool
}

// Reader produces the preprocessed token stream of one translation unit.
// It is not safe for concurrent use.
type Reader struct {
	opts   Options
	log    *slog.Logger
	sink   *diag.Counter
	strs   *arena.Strings
	toks   *arena.Arena[token.Token]
	runs   *token.Runs
	stack  *buffer.Stack
	lex    *lexer.Lexer
	macros *macro.Table
	conv   *charset.Converter
	cond   condStack

	base *context
	ctx  *context
	st   state
	pad  token.Flags // whitespace left by an expansion that produced nothing

	err      error
	done     bool
	mainName string
	counter  int
	once     map[string]bool
	idents   []string
	pending  *includeRequest
	now      time.Time
}

// New returns a reader over data, the contents of the file called name.
// The command-line definitions in opts are applied before it returns.
func New(name string, data []byte, opts Options) (*Reader, error) {
	opts = opts.fill()
	conv, err := charset.Lookup(opts.InputCharset)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		opts:     opts,
		log:      opts.Logger,
		sink:     diag.NewCounter(opts.Sink),
		strs:     arena.NewStrings(),
		toks:     arena.New[token.Token](64),
		runs:     token.NewRuns(token.DefaultRunSize),
		conv:     conv,
		mainName: name,
		once:     make(map[string]bool),
		now:      opts.Now(),
	}
	r.stack = buffer.NewStack(buffer.Config{
		Trigraphs:     opts.Trigraphs,
		WarnTrigraphs: opts.WarnTrigraphs,
		MaxDepth:      opts.MaxDepth,
		Sink:          r.sink,
		Logger:        opts.Logger,
	})
	r.lex = lexer.New(lexer.Config{Dollars: opts.Dollars, Digraphs: opts.Digraphs, CPlusPlus: opts.CPlusPlus}, r.strs, r.sink)
	r.lex.SaveComments = opts.KeepComments
	r.macros = macro.NewTable(opts.Redefinition, r.sink)
	r.macros.DefineBuiltins()
	r.base = &context{}
	r.ctx = r.base

	data, err = r.convert(name, data)
	if err != nil {
		return nil, err
	}
	b := buffer.NewFile(name, data)
	b.Dir = filepath.Dir(name)
	if err := r.stack.Push(b, 0); err != nil {
		return nil, err
	}
	r.log.Debug("open", "file", name, "size", len(data), "charset", conv.Name())

	for _, d := range opts.Defines {
		n, v := ParseDefine(d)
		r.runDirective("define", n+" "+v)
	}
	for _, u := range opts.Undefines {
		r.runDirective("undef", u)
	}
	if r.err != nil {
		return nil, r.err
	}
	return r, nil
}

// convert transcodes a file to UTF-8. Without an explicit input charset
// the bytes are taken as they are, less any byte-order mark.
func (r *Reader) convert(name string, data []byte) ([]byte, error) {
	if r.opts.InputCharset == "" {
		return bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF")), nil
	}
	out, err := r.conv.Convert(data)
	if err != nil {
		return nil, &Error{Msg: fmt.Sprintf("%s: %v", name, err), Err: fmt.Errorf("%w: %w", ErrUnreadable, err)}
	}
	return out, nil
}

// Next returns the next token of the output. At the end it returns an EOF
// token; after a fatal error it keeps returning that error.
func (r *Reader) Next() (token.Token, error) {
	if r.err != nil {
		return token.Token{Kind: token.EOF}, r.err
	}
	if r.done {
		return token.Token{Kind: token.EOF}, nil
	}
	t := r.get()
	if r.err != nil {
		return token.Token{Kind: token.EOF}, r.err
	}
	if t.Kind == token.EOF {
		r.finish()
	}
	return t, nil
}

func (r *Reader) finish() {
	r.done = true
	if r.opts.WarnUnusedMacros {
		for _, m := range r.macros.Unused() {
			r.warnUnused(m)
		}
	}
	r.log.Debug("done", "errors", r.sink.Errors(), "warnings", r.sink.Warnings(),
		"macros", r.macros.Len(), "runs", r.runs.Count(), "strings", r.strs.Stats().Fresh)
}

func (r *Reader) warnUnused(m *macro.Macro) {
	if m.Loc.IsValid() && m.Loc.File.Name() != "<command-line>" {
		r.report(diag.Warning, m.Loc, "macro %q is not used", m.Name)
	}
}

// Macros returns the macro table.
func (r *Reader) Macros() *macro.Table { return r.macros }

// Errors returns how many errors were reported.
func (r *Reader) Errors() int { return r.sink.Errors() }

// Warnings returns how many warnings were reported.
func (r *Reader) Warnings() int { return r.sink.Warnings() }

// Idents returns the strings of #ident and #sccs directives seen so far.
func (r *Reader) Idents() []string { return r.idents }

// Unused returns the macros defined outside system headers that nothing has
// used yet.
func (r *Reader) Unused() []*macro.Macro { return r.macros.Unused() }

func (r *Reader) report(sev diag.Severity, loc token.Loc, format string, args ...any) {
	r.sink.Report(diag.Diagnostic{Severity: sev, Loc: loc, Msg: fmt.Sprintf(format, args...)})
}

func (r *Reader) errorf(loc token.Loc, format string, args ...any) {
	r.report(diag.Error, loc, format, args...)
}

func (r *Reader) warnf(loc token.Loc, format string, args ...any) {
	r.report(diag.Warning, loc, format, args...)
}

func (r *Reader) pedwarnf(loc token.Loc, format string, args ...any) {
	r.report(diag.Pedwarn, loc, format, args...)
}

// fatal records the first fatal error. From then on the lexer yields only
// EOF, so every loop in the engine unwinds.
func (r *Reader) fatal(loc token.Loc, err error, format string, args ...any) {
	if r.err != nil {
		return
	}
	e := &Error{Loc: loc, Msg: fmt.Sprintf(format, args...), Err: err}
	r.err = e
	r.sink.Report(diag.Diagnostic{Severity: diag.Fatal, Loc: loc, Msg: e.Msg})
	r.log.Debug("fatal", "err", e.Error())
}

// here is the lexer's position in the current buffer.
func (r *Reader) here() token.Loc {
	b := r.stack.Top()
	if b == nil {
		return token.Loc{}
	}
	return b.Loc(min(b.Cur, max(len(b.Line)-1, 0)))
}

// currentFile returns the innermost file buffer.
func (r *Reader) currentFile() *buffer.Buffer {
	for b := r.stack.Top(); b != nil; b = b.Prev {
		if b.IsFile {
			return b
		}
	}
	return nil
}

func (r *Reader) inSystemHeader() bool {
	b := r.currentFile()
	return b != nil && b.System
}

// get is the pull loop: pop exhausted contexts, take the next token from
// the innermost source and expand it if it names an enabled macro.
func (r *Reader) get() token.Token {
	for {
		c := r.ctx
		var t token.Token
		switch c.kind {
		case baseContext:
			t = r.lexToken()
		case tokenContext:
			if c.pos == len(c.toks) {
				r.popContext()
				continue
			}
			t = c.toks[c.pos]
			c.pos++
		case textContext:
			if !r.lexText(c, &t) {
				r.popContext()
				continue
			}
		}
		if c.hasLead {
			t.Flags = t.Flags&^(token.PrevWhite|token.BOL) | c.lead
			c.hasLead = false
		}
		if r.pad != 0 {
			t.Flags |= r.pad
			r.pad = 0
		}

		if t.Flags&token.PasteLeft != 0 && c.kind == tokenContext {
			r.pasteAll(t)
			continue
		}
		if t.Kind != token.Name || t.Flags&token.NoExpand != 0 {
			return t
		}
		m := r.macros.Peek(t.Text)
		if m == nil {
			return t
		}
		if r.expanding(m) {
			t.Flags |= token.NoExpand
			return t
		}
		if r.st.preventExpansion > 0 {
			return t
		}
		if r.enterMacro(m, t) {
			continue
		}
		return t
	}
}

// expanding reports whether m is being expanded along the current
// context chain.
func (r *Reader) expanding(m *macro.Macro) bool {
	for c := r.ctx; c != nil; c = c.prev {
		if c.macro == m {
			return true
		}
	}
	return false
}

func (r *Reader) pushTokens(m *macro.Macro, toks []token.Token, block *arena.Block[token.Token], lead token.Flags) {
	r.ctx = &context{kind: tokenContext, prev: r.ctx, macro: m, toks: toks, block: block, lead: lead, hasLead: m != nil}
}

func (r *Reader) pushText(m *macro.Macro, text []byte, loc token.Loc, lead token.Flags) {
	b := buffer.NewText("<"+m.Name+">", text)
	r.ctx = &context{kind: textContext, prev: r.ctx, macro: m, text: b, loc: loc, lead: lead, hasLead: true}
}

func (r *Reader) popContext() {
	c := r.ctx
	if c.prev == nil {
		panic("preprocessor: pop of base context")
	}
	if c.hasLead {
		r.pad |= c.lead
	}
	if c.block != nil {
		r.toks.Release(c.block)
		c.block = nil
	}
	r.ctx = c.prev
}

// backup steps back over the token most recently taken from the current
// context.
func (r *Reader) backup() {
	switch c := r.ctx; c.kind {
	case baseContext:
		r.runs.Backup(1)
	case tokenContext:
		c.pos--
	case textContext:
		c.text.Cur = c.lastCur
	}
}

// lexText lexes the next token of a text context; false means it is
// exhausted.
func (r *Reader) lexText(c *context, t *token.Token) bool {
	c.lastCur = c.text.Cur
	saved := r.lex.State
	r.lex.State = lexer.State{}
	r.lex.Lex(c.text, t)
	r.lex.State = saved
	if t.Kind == token.EOF {
		return false
	}
	t.Flags &^= token.BOL
	t.Loc = c.loc
	return true
}

// lexToken returns the next token of the base context, replaying backed-up
// tokens first. Directives are run here and tokens of skipped groups
// dropped.
func (r *Reader) lexToken() token.Token {
	for {
		if r.err != nil {
			return token.Token{Kind: token.EOF}
		}
		if r.runs.Lookaheads() == 0 {
			r.runs.Rewind()
		}
		slot, replay := r.runs.Next()
		if !replay {
			r.lexDirect(slot)
		}
		t := *slot

		// A directive inside an argument list is run, but not while the
		// engine only peeks for the list's opening parenthesis.
		if t.Kind == token.Hash && t.Flags&token.BOL != 0 && !r.lex.InDirective && r.st.parsingArgs != 1 {
			r.directive(t)
			continue
		}
		if r.lex.InDirective || !r.lex.Skipping || t.Kind == token.EOF {
			return t
		}
	}
}

// lexDirect lexes from the buffer stack, popping finished files.
func (r *Reader) lexDirect(t *token.Token) {
	for {
		b := r.stack.Top()
		if b == nil {
			*t = token.Token{Kind: token.EOF}
			return
		}
		r.lex.Lex(b, t)
		if t.Kind != token.EOF || r.lex.InDirective || b.ReturnAtEOF {
			return
		}
		r.popBuffer()
		if r.err != nil {
			*t = token.Token{Kind: token.EOF}
			return
		}
	}
}

func (r *Reader) popBuffer() {
	b := r.stack.Top()
	depth := r.cond.Depth()
	if _, err := r.stack.Pop(depth); err != nil {
		open := r.cond.Truncate(b.CondDepth)
		f := open[len(open)-1]
		r.fatal(f.loc, ErrUnterminatedConditional, "unterminated #%s", f.directive)
		return
	}
	r.lex.Skipping = !r.cond.Active()
}

// runDirective runs one directive over text, as if it appeared on its own
// line of a command-line buffer.
func (r *Reader) runDirective(name, text string) {
	b := buffer.NewText("<command-line>", []byte(text))
	b.ReturnAtEOF = true
	if err := r.stack.Push(b, r.cond.Depth()); err != nil {
		r.fatal(token.Loc{}, err, "%v", err)
		return
	}
	b.NextLine()
	saved := r.st
	r.st = state{}
	r.lex.InDirective = true
	dname := token.Token{Kind: token.Name, Text: name, Loc: b.Loc(0)}
	directives[name].fn(r, dname)
	r.endDirective()
	r.st = saved
	if _, err := r.stack.Pop(r.cond.Depth()); err != nil {
		r.fatal(token.Loc{}, err, "%v", err)
	}
}
