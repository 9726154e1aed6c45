package buffer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fwessels/cpp/internal/diag"
	"github.com/fwessels/cpp/internal/token"
)

// DefaultMaxDepth bounds nested file buffers.
const DefaultMaxDepth = 200

var (
	ErrStackDepth              = errors.New("#include nested too deeply")
	ErrUnterminatedConditional = errors.New("unterminated conditional directive")
)

// Config controls line cleaning and stack limits.
type Config struct {
	Trigraphs     bool
	WarnTrigraphs bool
	MaxDepth      int
	Sink          diag.Sink
	Logger        *slog.Logger
}

// Stack is the LIFO of active buffers.
type Stack struct {
	cfg   Config
	top   *Buffer
	files int
	depth int
}

// NewStack returns an empty stack.
func NewStack(cfg Config) *Stack {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.Sink == nil {
		cfg.Sink = diag.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Stack{cfg: cfg}
}

func (s *Stack) report(sev diag.Severity, loc token.Loc, msg string) {
	s.cfg.Sink.Report(diag.Diagnostic{Severity: sev, Loc: loc, Msg: msg})
}

// Top returns the current buffer, or nil.
func (s *Stack) Top() *Buffer { return s.top }

// Depth returns the number of buffers.
func (s *Stack) Depth() int { return s.depth }

// FileDepth returns the number of file buffers; the main file counts as one.
func (s *Stack) FileDepth() int { return s.files }

// Push suspends the current buffer and makes b current. condDepth is the
// caller's conditional nesting, checked again when b is popped.
func (s *Stack) Push(b *Buffer, condDepth int) error {
	if b.IsFile && s.files >= s.cfg.MaxDepth {
		return fmt.Errorf("%s: %w (limit %d)", b.Name, ErrStackDepth, s.cfg.MaxDepth)
	}
	b.Prev = s.top
	b.CondDepth = condDepth
	b.stack = s
	s.top = b
	s.depth++
	if b.IsFile {
		s.files++
	}
	s.cfg.Logger.Debug("push buffer", "name", b.Name, "file", b.IsFile, "depth", s.depth)
	return nil
}

// Pop restores the previous buffer. Popping a file whose conditionals are
// still open, as shown by condDepth exceeding the depth recorded at push,
// is an error; the buffer is popped regardless.
func (s *Stack) Pop(condDepth int) (*Buffer, error) {
	b := s.top
	if b == nil {
		panic("buffer: pop of empty stack")
	}
	b.FlushNotes(false)
	s.top = b.Prev
	b.Prev = nil
	s.depth--
	if b.IsFile {
		s.files--
	}
	s.cfg.Logger.Debug("pop buffer", "name", b.Name, "depth", s.depth)
	if b.IsFile && b.noNewline {
		s.report(diag.Pedwarn, b.Loc(max(len(b.Line)-1, 0)), "no newline at end of file")
	}
	if b.IsFile && condDepth != b.CondDepth {
		return b, fmt.Errorf("%s: %w", b.Name, ErrUnterminatedConditional)
	}
	return b, nil
}
