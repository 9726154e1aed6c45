package preprocessor

import (
	"errors"

	"github.com/fwessels/cpp/internal/token"
)

var (
	errNoIf       = errors.New("without #if")
	errAfterElse  = errors.New("after #else")
	errCondClosed = errors.New("conditional opened in another file")
)

type condStack struct {
	stack []condFrame
}

type condFrame struct {
	parentActive bool
	taken        bool // some group of this conditional was selected
	active       bool
	sawElse      bool
	directive    string
	loc          token.Loc // opening directive
	elseLoc      token.Loc
}

func (c *condStack) Depth() int { return len(c.stack) }

func (c *condStack) Active() bool {
	if len(c.stack) == 0 {
		return true
	}
	return c.stack[len(c.stack)-1].active
}

// Push opens a conditional. cond is ignored when the enclosing group is
// inactive.
func (c *condStack) Push(cond bool, directive string, loc token.Loc) {
	parent := c.Active()
	active := parent && cond
	c.stack = append(c.stack, condFrame{
		parentActive: parent,
		taken:        active,
		active:       active,
		directive:    directive,
		loc:          loc,
	})
}

// top returns the frame #elif, #else and #endif act on. floor is the depth
// below which frames belong to an including file.
func (c *condStack) top(floor int) (*condFrame, error) {
	if len(c.stack) == 0 {
		return nil, errNoIf
	}
	if len(c.stack) <= floor {
		return nil, errCondClosed
	}
	return &c.stack[len(c.stack)-1], nil
}

// NeedsElif reports whether an #elif at this point has to evaluate its
// condition: the enclosing group is active and no earlier group was taken.
func (c *condStack) NeedsElif(floor int) bool {
	top, err := c.top(floor)
	return err == nil && top.parentActive && !top.taken && !top.sawElse
}

func (c *condStack) Elif(cond bool, floor int) (*condFrame, error) {
	top, err := c.top(floor)
	if err != nil {
		return nil, err
	}
	if top.sawElse {
		return top, errAfterElse
	}
	if !top.parentActive || top.taken {
		top.active = false
		return top, nil
	}
	top.active = cond
	top.taken = cond
	return top, nil
}

func (c *condStack) Else(loc token.Loc, floor int) (*condFrame, error) {
	top, err := c.top(floor)
	if err != nil {
		return nil, err
	}
	if top.sawElse {
		return top, errAfterElse
	}
	top.sawElse = true
	top.directive = "else"
	top.elseLoc = loc
	if !top.parentActive {
		top.active = false
		return top, nil
	}
	top.active = !top.taken
	top.taken = true
	return top, nil
}

func (c *condStack) Pop(floor int) (condFrame, error) {
	top, err := c.top(floor)
	if err != nil {
		return condFrame{}, err
	}
	f := *top
	c.stack = c.stack[:len(c.stack)-1]
	return f, nil
}

// Truncate drops the frames above depth, returning them innermost first.
func (c *condStack) Truncate(depth int) []condFrame {
	var out []condFrame
	for len(c.stack) > depth {
		out = append(out, c.stack[len(c.stack)-1])
		c.stack = c.stack[:len(c.stack)-1]
	}
	return out
}
