/*
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cpp is a C preprocessor.
//
//	r, err := cpp.New("main.c", src, cpp.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	return cpp.Print(os.Stdout, r)
package cpp

import (
	"bufio"
	"io"
	"strings"

	"github.com/fwessels/cpp/internal/diag"
	"github.com/fwessels/cpp/internal/macro"
	"github.com/fwessels/cpp/internal/preprocessor"
	"github.com/fwessels/cpp/internal/token"
)

type (
	Options   = preprocessor.Options
	Reader    = preprocessor.Reader
	Error     = preprocessor.Error
	DirOpener = preprocessor.DirOpener
	Request   = preprocessor.Request
	File      = preprocessor.File

	Token = token.Token
	Kind  = token.Kind
	Loc   = token.Loc

	Diagnostic = diag.Diagnostic
	Severity   = diag.Severity
	Sink       = diag.Sink
	Bag        = diag.Bag
)

const (
	RedefineWarn    = macro.RedefineWarn
	RedefineReplace = macro.RedefineReplace
	RedefineError   = macro.RedefineError
	RedefineFatal   = macro.RedefineFatal
)

var (
	ErrUnterminatedCall        = preprocessor.ErrUnterminatedCall
	ErrUnterminatedConditional = preprocessor.ErrUnterminatedConditional
	ErrStackDepth              = preprocessor.ErrStackDepth
	ErrUnreadable              = preprocessor.ErrUnreadable
	ErrRedefined               = preprocessor.ErrRedefined
)

// DefaultOptions returns the options New fills in for zero fields.
func DefaultOptions() Options { return preprocessor.DefaultOptions() }

// New returns a reader over data, the contents of the file called name.
func New(name string, data []byte, opts Options) (*Reader, error) {
	return preprocessor.New(name, data, opts)
}

// Tokens drains r.
func Tokens(r *Reader) ([]Token, error) {
	var toks []Token
	for {
		t, err := r.Next()
		if err != nil {
			return toks, err
		}
		if t.Kind == token.EOF {
			return toks, nil
		}
		toks = append(toks, t)
	}
}

// Print writes the output of r as text. Each output line starts on a new
// line, whitespace before a token becomes one space, and a space is put
// between tokens that would otherwise lex as something else.
func Print(w io.Writer, r *Reader) error {
	p := newPrinter(w)
	for {
		t, err := r.Next()
		if err != nil {
			p.finish()
			return err
		}
		if t.Kind == token.EOF {
			return p.finish()
		}
		p.print(t)
	}
}

// Preprocess runs a whole translation unit and returns its text.
func Preprocess(name string, data []byte, opts Options) (string, error) {
	r, err := New(name, data, opts)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	err = Print(&b, r)
	return b.String(), err
}

type printer struct {
	w       *bufio.Writer
	prev    Token
	started bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: bufio.NewWriter(w)}
}

func (p *printer) print(t Token) {
	switch {
	case p.started && t.Flags&token.BOL != 0:
		p.w.WriteByte('\n')
	case p.started && (t.Flags&token.PrevWhite != 0 || avoidPaste(p.prev, t)):
		p.w.WriteByte(' ')
	}
	p.w.WriteString(t.Spelling())
	p.prev = t
	p.started = true
}

func (p *printer) finish() error {
	if p.started {
		p.w.WriteByte('\n')
	}
	return p.w.Flush()
}

// avoidPaste reports whether a followed directly by b would lex
// differently than the two tokens.
func avoidPaste(a, b Token) bool {
	var c byte
	if s := b.Spelling(); s != "" {
		c = s[0]
	}
	if a.Kind >= token.Eq && a.Kind <= token.LShift && c == '=' {
		return true
	}
	switch a.Kind {
	case token.Greater:
		return c == '>'
	case token.Less:
		return c == '<' || c == '%' || c == ':'
	case token.Plus:
		return c == '+'
	case token.Minus:
		return c == '-' || c == '>'
	case token.Div:
		return c == '/' || c == '*'
	case token.Mod:
		return c == ':' || c == '%' || c == '>'
	case token.And:
		return c == '&'
	case token.Or:
		return c == '|'
	case token.Colon:
		return c == ':' || c == '>'
	case token.Deref:
		return c == '*'
	case token.Dot:
		return c == '.' || c == '%' || c == '*' || b.Kind == token.Number
	case token.Hash:
		return c == '#' || c == '%'
	case token.Name:
		return b.Kind == token.Name || b.Kind == token.Number || b.Kind == token.Char || b.Kind == token.String
	case token.Number:
		return b.Kind == token.Number || b.Kind == token.Name || b.Kind == token.Char || c == '.' || c == '+' || c == '-'
	case token.Other:
		return a.Text == "\\" && b.Kind == token.Name
	}
	return false
}
