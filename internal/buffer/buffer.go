// Package buffer implements the stack of input regions the lexer reads.
//
// A buffer cleans its input one logical line at a time: trigraphs are
// replaced and escaped newlines spliced while the line is copied, and the
// offset of every such event is recorded as a note. The lexer processes a
// note only when its cursor reaches it, so the cost of translation tracks
// the input actually consumed.
package buffer

import (
	"fmt"
	"sort"

	srctoken "modernc.org/token"

	"github.com/fwessels/cpp/internal/diag"
	"github.com/fwessels/cpp/internal/token"
)

var trigraphMap = [256]byte{
	'=': '#', '(': '[', '/': '\\', ')': ']', '\'': '^',
	'<': '{', '!': '|', '>': '}', '-': '~',
}

// Note kinds other than trigraph characters.
const (
	EscapedNewline      = '\\'
	EscapedNewlineSpace = ' '
)

// Note marks a position in the clean line where the raw text differed.
type Note struct {
	Pos   int  // index into the clean line
	Kind  byte // trigraph 'from' character, EscapedNewline or EscapedNewlineSpace
	AtEOF bool // escaped newline was the last thing in the buffer
}

type shift struct {
	at    int
	delta int // raw offset minus clean offset for clean indexes >= at
}

// Buffer is one pushed input region.
type Buffer struct {
	Name string
	File *srctoken.File
	Dir  string // directory searched first for quoted includes

	// Line is the current clean logical line, always terminated by '\n'.
	// Cur is the lexer's cursor into it.
	Line []byte
	Cur  int

	IsFile      bool
	Stage3      bool // no trigraph or escaped-newline processing
	System      bool // system header
	ReturnAtEOF bool // the lexer stops at the end instead of popping
	CondDepth   int  // conditional nesting when pushed

	// SearchIndex is the include directory the file was found in, or -1.
	SearchIndex int

	// Macro is set on buffers that re-lex macro output, such as pastes.
	Macro string

	Prev *Buffer

	data      []byte
	next      int // raw offset of the next physical line to clean
	lineStart int
	notes     []Note
	curNote   int
	shifts    []shift
	stack     *Stack
	noNewline bool
}

// NewFile returns a buffer over the contents of a source file.
func NewFile(name string, data []byte) *Buffer {
	return &Buffer{
		Name:        name,
		File:        srctoken.NewFile(name, len(data)),
		data:        data,
		IsFile:      true,
		SearchIndex: -1,
	}
}

// NewText returns an in-memory buffer whose text has already been through
// the first translation phases.
func NewText(name string, text []byte) *Buffer {
	return &Buffer{
		Name:        name,
		File:        srctoken.NewFile(name, len(text)),
		data:        text,
		Stage3:      true,
		SearchIndex: -1,
	}
}

// Size returns the raw input length.
func (b *Buffer) Size() int { return len(b.data) }

// NextOffset returns the raw offset where the next physical line starts.
func (b *Buffer) NextOffset() int { return b.next }

// NeedLine reports whether the current line has been consumed.
func (b *Buffer) NeedLine() bool { return b.Cur >= len(b.Line) }

// NextLine cleans the next logical line into Line. It returns false when the
// buffer is exhausted.
func (b *Buffer) NextLine() bool {
	if b.next >= len(b.data) {
		b.Line = b.Line[:0]
		b.Cur = 0
		return false
	}
	b.clean()
	return true
}

func (b *Buffer) clean() {
	b.Line = b.Line[:0]
	b.notes = b.notes[:0]
	b.shifts = b.shifts[:0]
	b.curNote = 0
	b.Cur = 0
	b.lineStart = b.next

	trigraphs := b.stack != nil && b.stack.cfg.Trigraphs
	data := b.data
	s := b.next
	delta := 0
	b.File.AddLine(s)
	for {
		if s >= len(data) {
			break
		}
		c := data[s]
		if c == '\n' || c == '\r' {
			nl := 1
			if c == '\r' && s+1 < len(data) && data[s+1] == '\n' {
				nl = 2
			}
			if !b.Stage3 {
				j := len(b.Line)
				for j > 0 && (b.Line[j-1] == ' ' || b.Line[j-1] == '\t' || b.Line[j-1] == '\f' || b.Line[j-1] == '\v') {
					j--
				}
				if j > 0 && b.Line[j-1] == '\\' {
					p := j - 1
					spaces := len(b.Line) - j
					b.Line = b.Line[:p]
					s += nl
					delta += spaces + 1 + nl
					b.setShift(p, delta)
					kind := byte(EscapedNewline)
					if spaces > 0 {
						kind = EscapedNewlineSpace
					}
					b.notes = append(b.notes, Note{Pos: p, Kind: kind, AtEOF: s >= len(data)})
					if s < len(data) {
						b.File.AddLine(s)
					}
					continue
				}
			}
			s += nl
			break
		}
		if c == '?' && !b.Stage3 && s+2 < len(data) && data[s+1] == '?' && trigraphMap[data[s+2]] != 0 {
			from := data[s+2]
			b.notes = append(b.notes, Note{Pos: len(b.Line), Kind: from})
			if trigraphs {
				b.Line = append(b.Line, trigraphMap[from])
				s += 3
				delta += 2
				b.setShift(len(b.Line), delta)
				continue
			}
		}
		b.Line = append(b.Line, c)
		s++
	}
	if s >= len(data) && len(data) > 0 && data[len(data)-1] != '\n' && data[len(data)-1] != '\r' {
		b.noNewline = true
	}
	b.next = s
	b.Line = append(b.Line, '\n')
}

// setShift records delta from clean index at onward, dropping shifts the
// truncated line no longer reaches.
func (b *Buffer) setShift(at, delta int) {
	for n := len(b.shifts); n > 0 && b.shifts[n-1].at >= at; n-- {
		b.shifts = b.shifts[:n-1]
	}
	b.shifts = append(b.shifts, shift{at: at, delta: delta})
}

// Offset maps an index of the clean line back to a raw input offset.
func (b *Buffer) Offset(i int) int {
	k := sort.Search(len(b.shifts), func(k int) bool { return b.shifts[k].at > i })
	off := b.lineStart + i
	if k > 0 {
		off += b.shifts[k-1].delta
	}
	return min(off, len(b.data))
}

// Loc returns the location of clean index i.
func (b *Buffer) Loc(i int) token.Loc {
	return token.Loc{File: b.File, Pos: b.File.Pos(b.Offset(i))}
}

// NotesPending reports whether a note lies at or before the cursor.
func (b *Buffer) NotesPending() bool {
	return b.curNote < len(b.notes) && b.notes[b.curNote].Pos <= b.Cur
}

// Notes returns the notes of the current line.
func (b *Buffer) Notes() []Note { return b.notes }

// ProcessNotes handles every note up to the cursor, reporting the warnings
// they call for. Trigraph warnings are suppressed inside comments.
func (b *Buffer) ProcessNotes(inComment bool) {
	for b.NotesPending() {
		n := b.notes[b.curNote]
		b.curNote++
		b.processNote(n, inComment)
	}
}

// FlushNotes handles the notes the cursor never reached, such as those in
// a skipped line.
func (b *Buffer) FlushNotes(inComment bool) {
	for b.curNote < len(b.notes) {
		n := b.notes[b.curNote]
		b.curNote++
		b.processNote(n, inComment)
	}
}

func (b *Buffer) processNote(n Note, inComment bool) {
	if b.stack == nil {
		return
	}
	cfg := &b.stack.cfg
	switch n.Kind {
	case EscapedNewline, EscapedNewlineSpace:
		if n.Kind == EscapedNewlineSpace && !inComment {
			b.stack.report(diag.Warning, b.Loc(n.Pos), "backslash and newline separated by space")
		}
		if n.AtEOF {
			b.stack.report(diag.Pedwarn, b.Loc(n.Pos), "backslash-newline at end of file")
		}
	default:
		if !cfg.WarnTrigraphs || inComment {
			return
		}
		if cfg.Trigraphs {
			b.stack.report(diag.Warning, b.Loc(n.Pos), fmt.Sprintf("trigraph ??%c converted to %c", n.Kind, trigraphMap[n.Kind]))
		} else {
			b.stack.report(diag.Warning, b.Loc(n.Pos), fmt.Sprintf("trigraph ??%c ignored, use --trigraphs to enable", n.Kind))
		}
	}
}

// Peek returns the byte at Cur+k of the clean line, or 0 past its end.
func (b *Buffer) Peek(k int) byte {
	if i := b.Cur + k; i < len(b.Line) {
		return b.Line[i]
	}
	return 0
}
