package preprocessor

import (
	"io"
	"log/slog"
	"time"

	"github.com/fwessels/cpp/internal/buffer"
	"github.com/fwessels/cpp/internal/diag"
	"github.com/fwessels/cpp/internal/macro"
	"github.com/fwessels/cpp/internal/token"
)

// Options configures a Reader.
type Options struct {
	Trigraphs     bool
	WarnTrigraphs bool
	Traditional   bool // raw-text macros, substituted textually
	Dollars       bool
	Digraphs      bool
	CPlusPlus     bool
	KeepComments  bool
	Pedantic      bool

	// WarnUnusedMacros reports, at the end of the run, macros defined
	// outside system headers that were never used.
	WarnUnusedMacros bool

	Redefinition macro.Policy
	MaxDepth     int

	// Defines are "NAME", "NAME=VALUE" or "NAME(args)=VALUE". Undefines
	// are applied after them.
	Defines   []string
	Undefines []string

	// InputCharset names the encoding of source files; empty means UTF-8.
	InputCharset string

	Opener    Opener
	Evaluator Evaluator
	Pragma    PragmaHandler

	Logger *slog.Logger
	Sink   diag.Sink
	Now    func() time.Time
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		WarnTrigraphs: true,
		Dollars:       true,
		Digraphs:      true,
		Redefinition:  macro.RedefineWarn,
		MaxDepth:      buffer.DefaultMaxDepth,
		Opener:        &DirOpener{},
		Evaluator:     ExprEvaluator{},
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Sink:          diag.Discard,
		Now:           time.Now,
	}
}

// fill supplies defaults for the zero fields of o.
func (o Options) fill() Options {
	d := DefaultOptions()
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.Opener == nil {
		o.Opener = d.Opener
	}
	if o.Evaluator == nil {
		o.Evaluator = d.Evaluator
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	if o.Sink == nil {
		o.Sink = d.Sink
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

// Request asks an Opener for an included file.
type Request struct {
	Name   string // as spelled, without delimiters
	Dir    string // directory of the including file
	Angled bool

	// After is the search index to resume after, for #include_next; -1
	// searches from the start.
	After int
}

// File is what an Opener found.
type File struct {
	Path   string
	Dir    string
	Index  int // search directory the file was found in, or -1
	System bool
	Data   []byte
}

// Opener resolves include requests. It returns an error wrapping
// ErrNotFound when no directory holds the file; any other error is fatal to
// the run.
type Opener interface {
	Open(req Request) (*File, error)
}

// Evaluator computes #if conditions. The tokens have been macro-expanded
// and every defined operator already replaced by 0 or 1.
type Evaluator interface {
	Eval(expr []token.Token) (bool, error)
}

// PragmaHandler receives the tokens of pragmas the reader does not handle
// itself. The first token is the pragma's namespace or name.
type PragmaHandler func(loc token.Loc, toks []token.Token)
