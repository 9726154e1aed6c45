package preprocessor

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/fwessels/cpp/internal/buffer"
	"github.com/fwessels/cpp/internal/diag"
	"github.com/fwessels/cpp/internal/token"
)

type directiveInfo struct {
	fn   func(r *Reader, dname token.Token)
	cond bool // runs inside skipped groups
}

var (
	directives     map[string]directiveInfo
	directiveNames []string
)

func init() {
	directives = map[string]directiveInfo{
		"define":       {fn: (*Reader).doDefine},
		"undef":        {fn: (*Reader).doUndef},
		"include":      {fn: (*Reader).doInclude},
		"include_next": {fn: (*Reader).doInclude},
		"import":       {fn: (*Reader).doInclude},
		"if":           {fn: (*Reader).doIf, cond: true},
		"ifdef":        {fn: (*Reader).doIfdef, cond: true},
		"ifndef":       {fn: (*Reader).doIfdef, cond: true},
		"elif":         {fn: (*Reader).doElif, cond: true},
		"else":         {fn: (*Reader).doElse, cond: true},
		"endif":        {fn: (*Reader).doEndif, cond: true},
		"line":         {fn: (*Reader).doLine},
		"error":        {fn: (*Reader).doDiagnostic},
		"warning":      {fn: (*Reader).doDiagnostic},
		"pragma":       {fn: (*Reader).doPragma},
		"ident":        {fn: (*Reader).doIdent},
		"sccs":         {fn: (*Reader).doIdent},
	}
	for n := range directives {
		directiveNames = append(directiveNames, n)
	}
	sort.Strings(directiveNames)
}

// directive runs the directive introduced by hash, then discards the rest
// of its line.
func (r *Reader) directive(hash token.Token) {
	saved := r.st
	r.st = state{}
	r.lex.InDirective = true
	skipping := r.lex.Skipping

	dname := r.lexToken()
	if saved.parsingArgs != 0 && dname.Kind != token.EOF && r.opts.Pedantic {
		r.pedwarnf(hash.Loc, "embedding a directive within macro arguments is not portable")
	}
	switch dname.Kind {
	case token.EOF:
		// null directive
	case token.Number:
		if !skipping {
			r.doLinemarker(dname)
		}
	case token.Name:
		d, ok := directives[dname.Text]
		switch {
		case ok && (d.cond || !skipping):
			d.fn(r, dname)
		case !ok && !skipping:
			r.unknownDirective(dname)
		}
	default:
		if !skipping {
			r.unknownDirective(dname)
		}
	}

	r.endDirective()
	r.st = saved
	if p := r.pending; p != nil {
		r.pending = nil
		r.pushInclude(p)
	}
}

// endDirective unwinds any expansion left by the directive and skips to
// the end of its line.
func (r *Reader) endDirective() {
	for r.ctx != r.base {
		r.popContext()
	}
	r.pad = 0
	for r.lexToken().Kind != token.EOF {
	}
	r.lex.InDirective = false
	r.lex.AngledHeaders = false
}

// checkEOL reports tokens left after a directive's operands.
func (r *Reader) checkEOL(dname token.Token) {
	if t := r.lexToken(); t.Kind != token.EOF {
		r.pedwarnf(t.Loc, "extra tokens at end of #%s directive", dname.Text)
	}
}

func (r *Reader) unknownDirective(dname token.Token) {
	msg := fmt.Sprintf("invalid preprocessing directive #%s", dname.Spelling())
	if dname.Kind == token.Name {
		if s := suggestDirective(dname.Text); s != "" {
			msg += fmt.Sprintf("; did you mean #%s?", s)
		}
	}
	r.report(diag.Error, dname.Loc, "%s", msg)
}

func suggestDirective(name string) string {
	ranks := fuzzy.RankFindFold(name, directiveNames)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}
	best, dist := "", 3
	for _, n := range directiveNames {
		if d := fuzzy.LevenshteinDistance(name, n); d < dist {
			best, dist = n, d
		}
	}
	return best
}

type includeRequest struct {
	directive string
	name      string
	angled    bool
	loc       token.Loc
}

func (r *Reader) doInclude(dname token.Token) {
	name, angled, ok := r.parseHeaderName(dname)
	if !ok {
		return
	}
	r.checkEOL(dname)
	// The file is pushed once the directive line is finished.
	r.pending = &includeRequest{directive: dname.Text, name: name, angled: angled, loc: dname.Loc}
}

// parseHeaderName reads "FILE" or <FILE>, the latter possibly spelled by
// macro-expanded tokens.
func (r *Reader) parseHeaderName(dname token.Token) (string, bool, bool) {
	r.lex.AngledHeaders = true
	t := r.get()
	r.lex.AngledHeaders = false

	var name string
	angled := false
	switch t.Kind {
	case token.String:
		name = t.Text[1 : len(t.Text)-1]
	case token.HeaderName:
		name, angled = t.Text[1:len(t.Text)-1], true
	case token.Less:
		var b strings.Builder
		for {
			t = r.get()
			if t.Kind == token.Greater {
				break
			}
			if t.Kind == token.EOF {
				r.errorf(dname.Loc, "missing terminating > character")
				return "", false, false
			}
			if t.Flags&token.PrevWhite != 0 && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(t.Spelling())
		}
		name, angled = b.String(), true
	default:
		r.errorf(t.Loc, `#%s expects "FILENAME" or <FILENAME>`, dname.Text)
		return "", false, false
	}
	if name == "" {
		r.errorf(dname.Loc, "empty filename in #%s", dname.Text)
		return "", false, false
	}
	return name, angled, true
}

// pushInclude opens an included file and makes it the current buffer.
func (r *Reader) pushInclude(p *includeRequest) {
	if r.stack.FileDepth() >= r.opts.MaxDepth {
		r.fatal(p.loc, ErrStackDepth, "#include nested too deeply")
		return
	}
	cur := r.currentFile()
	req := Request{Name: p.name, Angled: p.angled, After: -1}
	if cur != nil {
		req.Dir = cur.Dir
	}
	if p.directive == "include_next" {
		if r.stack.FileDepth() <= 1 {
			r.warnf(p.loc, "#include_next in primary source file")
		} else {
			req.After = cur.SearchIndex
			if cur.SearchIndex < 0 {
				req.Angled = true
			}
		}
	}

	f, err := r.opts.Opener.Open(req)
	if err != nil {
		if notFound(err) {
			r.errorf(p.loc, "%s: No such file or directory", p.name)
			return
		}
		if !errors.Is(err, ErrUnreadable) {
			err = fmt.Errorf("%w: %w", ErrUnreadable, err)
		}
		r.fatal(p.loc, err, "%s: %v", p.name, err)
		return
	}
	if r.once[f.Path] {
		r.log.Debug("include skipped", "file", f.Path, "reason", "once")
		return
	}
	if p.directive == "import" {
		r.once[f.Path] = true
	}

	data, err := r.convert(f.Path, f.Data)
	if err != nil {
		r.fatal(p.loc, err, "%v", err)
		return
	}
	b := buffer.NewFile(f.Path, data)
	b.Dir = f.Dir
	b.SearchIndex = f.Index
	b.System = f.System
	if err := r.stack.Push(b, r.cond.Depth()); err != nil {
		r.fatal(p.loc, err, "#include nested too deeply")
		return
	}
	r.log.Debug("include", "file", f.Path, "system", f.System, "depth", r.stack.FileDepth())
}

// condFloor is the conditional depth at which the current file started.
func (r *Reader) condFloor() int {
	if b := r.stack.Top(); b != nil {
		return b.CondDepth
	}
	return 0
}

func (r *Reader) pushCond(cond bool, dname token.Token) {
	r.cond.Push(cond, dname.Text, dname.Loc)
	r.lex.Skipping = !r.cond.Active()
}

func (r *Reader) doIfdef(dname token.Token) {
	cond := false
	if !r.lex.Skipping {
		if name, ok := r.lexMacroName(dname); ok {
			cond = r.macros.IsDefined(name.Text) == (dname.Text == "ifdef")
			r.checkEOL(dname)
		}
	}
	r.pushCond(cond, dname)
}

func (r *Reader) doIf(dname token.Token) {
	cond := false
	if !r.lex.Skipping {
		cond = r.evalCond(dname)
	}
	r.pushCond(cond, dname)
}

func (r *Reader) doElif(dname token.Token) {
	floor := r.condFloor()
	cond := false
	if r.cond.NeedsElif(floor) {
		cond = r.evalCond(dname)
	}
	f, err := r.cond.Elif(cond, floor)
	if err != nil {
		r.condError(dname, f, err)
		return
	}
	r.lex.Skipping = !r.cond.Active()
}

func (r *Reader) doElse(dname token.Token) {
	f, err := r.cond.Else(dname.Loc, r.condFloor())
	if err != nil {
		r.condError(dname, f, err)
		return
	}
	r.lex.Skipping = !r.cond.Active()
	if f.parentActive {
		r.checkEOL(dname)
	}
}

func (r *Reader) doEndif(dname token.Token) {
	f, err := r.cond.Pop(r.condFloor())
	if err != nil {
		r.condError(dname, nil, err)
		return
	}
	r.lex.Skipping = !r.cond.Active()
	if f.parentActive {
		r.checkEOL(dname)
	}
}

func (r *Reader) condError(dname token.Token, f *condFrame, err error) {
	switch err {
	case errAfterElse:
		r.errorf(dname.Loc, "#%s after #else", dname.Text)
		r.report(diag.Note, f.loc, "the conditional began here")
	default:
		r.errorf(dname.Loc, "#%s without #if", dname.Text)
	}
}

// evalCond macro-expands and evaluates the expression of #if or #elif.
func (r *Reader) evalCond(dname token.Token) bool {
	r.lex.Skipping = false
	r.st.inExpression = true
	r.st.exprFailed = false
	toks := r.readExpr()
	r.st.inExpression = false
	if r.st.exprFailed {
		return false
	}
	if len(toks) == 0 {
		r.errorf(dname.Loc, "#%s with no expression", dname.Text)
		return false
	}
	ok, err := r.opts.Evaluator.Eval(toks)
	if err != nil {
		var ee *ExprError
		if errors.As(err, &ee) && ee.Loc.IsValid() {
			r.errorf(ee.Loc, "%s", ee.Msg)
		} else {
			r.errorf(dname.Loc, "%v", err)
		}
		return false
	}
	return ok
}

func (r *Reader) readExpr() []token.Token {
	var toks []token.Token
	for {
		t := r.get()
		if t.Kind == token.EOF {
			return toks
		}
		if t.Kind == token.Name && t.Text == "defined" {
			t = r.parseDefined(t)
		}
		toks = append(toks, t)
	}
}

// parseDefined reads the operand of the defined operator and replaces the
// whole construct by 1 or 0.
func (r *Reader) parseDefined(def token.Token) token.Token {
	if r.opts.Pedantic && r.ctx != r.base {
		r.pedwarnf(def.Loc, `this use of "defined" may not be portable`)
	}
	r.st.preventExpansion++
	defer func() { r.st.preventExpansion-- }()

	res := token.Token{Kind: token.Number, Text: "0", Flags: def.Flags & token.PrevWhite, Loc: def.Loc}
	t := r.get()
	paren := t.Kind == token.OpenParen
	if paren {
		t = r.get()
	}
	if t.Kind != token.Name {
		r.errorf(def.Loc, `operator "defined" requires an identifier`)
		if t.Kind == token.EOF {
			r.backup()
		}
		r.st.exprFailed = true
		return res
	}
	if r.macros.IsDefined(t.Text) {
		res.Text = "1"
	}
	if paren {
		if c := r.get(); c.Kind != token.CloseParen {
			r.errorf(def.Loc, `missing ')' after "defined"`)
			if c.Kind == token.EOF {
				r.backup()
			}
			r.st.exprFailed = true
		}
	}
	return res
}

// lineNumber parses the digit sequence of #line and linemarkers.
func lineNumber(t token.Token) (uint64, bool) {
	if t.Kind != token.Number || strings.Trim(t.Text, "0123456789") != "" {
		return 0, false
	}
	n, err := strconv.ParseUint(t.Text, 10, 64)
	return n, err == nil
}

func (r *Reader) doLine(dname token.Token) {
	t := r.get()
	line, ok := lineNumber(t)
	if !ok {
		r.errorf(t.Loc, "%q after #line is not a positive integer", t.Spelling())
		return
	}
	if r.opts.Pedantic && (line == 0 || line > 2147483647) {
		r.pedwarnf(t.Loc, "line number out of range")
	}
	fname := ""
	switch t = r.get(); t.Kind {
	case token.EOF:
	case token.String:
		fname = destringize(t.Text)
		r.checkEOL(dname)
	default:
		r.errorf(t.Loc, "invalid filename %q", t.Spelling())
		return
	}
	r.applyLine(fname, int(line))
}

// doLinemarker handles the "# 33 "file" flags" form GCC writes.
func (r *Reader) doLinemarker(num token.Token) {
	line, ok := lineNumber(num)
	if !ok {
		r.errorf(num.Loc, "%q after # is not a positive integer", num.Spelling())
		return
	}
	if r.opts.Pedantic && !r.inSystemHeader() {
		r.pedwarnf(num.Loc, "style of line directive is a GCC extension")
	}
	fname := ""
	system := false
	switch t := r.lexToken(); t.Kind {
	case token.EOF:
	case token.String:
		fname = destringize(t.Text)
		for t = r.lexToken(); t.Kind != token.EOF; t = r.lexToken() {
			switch t.Text {
			case "1", "2", "4":
			case "3":
				system = true
			default:
				r.errorf(t.Loc, "invalid flag %q in line directive", t.Spelling())
				return
			}
		}
	default:
		r.errorf(t.Loc, "invalid filename %q", t.Spelling())
		return
	}
	if system {
		if b := r.currentFile(); b != nil {
			b.System = true
		}
	}
	r.applyLine(fname, int(line))
}

// applyLine makes the line after the directive line number line of fname.
func (r *Reader) applyLine(fname string, line int) {
	b := r.stack.Top()
	if fname == "" {
		fname = r.here().Position().Filename
	}
	if off := b.NextOffset(); off < b.Size() {
		b.File.AddLineInfo(off, fname, line)
	}
	r.log.Debug("line", "file", fname, "line", line)
}

func (r *Reader) doDiagnostic(dname token.Token) {
	var b strings.Builder
	for t := r.lexToken(); t.Kind != token.EOF; t = r.lexToken() {
		if b.Len() > 0 && t.Flags&token.PrevWhite != 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.Spelling())
	}
	sev := diag.Error
	if dname.Text == "warning" {
		sev = diag.Warning
	}
	msg := "#" + dname.Text
	if b.Len() > 0 {
		msg += " " + b.String()
	}
	r.report(sev, dname.Loc, "%s", msg)
}

func (r *Reader) doPragma(dname token.Token) {
	r.st.preventExpansion++
	var toks []token.Token
	for t := r.get(); t.Kind != token.EOF; t = r.get() {
		toks = append(toks, t)
	}
	r.st.preventExpansion--
	r.pragma(dname.Loc, toks)
}

func (r *Reader) doIdent(dname token.Token) {
	t := r.get()
	if t.Kind != token.String {
		r.errorf(dname.Loc, "invalid #%s directive", dname.Text)
		return
	}
	r.idents = append(r.idents, t.Text)
	r.checkEOL(dname)
}
