package preprocessor

import (
	"errors"
	"fmt"

	"github.com/fwessels/cpp/internal/buffer"
	"github.com/fwessels/cpp/internal/macro"
	"github.com/fwessels/cpp/internal/token"
)

var (
	ErrUnterminatedCall = errors.New("unterminated argument list")
	ErrUnreadable       = errors.New("cannot read input")
	ErrNotFound         = errors.New("no such file or directory")

	ErrStackDepth              = buffer.ErrStackDepth
	ErrUnterminatedConditional = buffer.ErrUnterminatedConditional
	ErrRedefined               = macro.ErrRedefined
)

// Error is a fatal condition. The run it ends cannot continue.
type Error struct {
	Loc token.Loc
	Msg string
	Err error
}

func (e *Error) Error() string {
	if !e.Loc.IsValid() {
		return e.Msg
	}
	p := e.Loc.Position()
	return fmt.Sprintf("%s:%d: %s", p.Filename, p.Line, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }
