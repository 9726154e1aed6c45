package token

import "fmt"

// DefaultRunSize is the capacity of the first run.
const DefaultRunSize = 250

// Run is a fixed-capacity array of tokens in a doubly-linked chain.
type Run struct {
	toks []Token
	next *Run
	prev *Run
}

// Len returns the run's capacity.
func (r *Run) Len() int { return len(r.toks) }

// Runs is the lexer's output buffer. Tokens are written at the cursor; a
// backed-up cursor replays tokens already written instead of lexing anew.
//
// While the retention counter is raised, issued tokens are never
// overwritten: a full run is followed by a fresh run of doubled capacity
// rather than by reusing the next one.
type Runs struct {
	base       *Run
	cur        *Run
	idx        int // next slot in cur
	keep       int
	lookaheads int
	count      int
}

// NewRuns returns a store whose first run holds size tokens.
func NewRuns(size int) *Runs {
	if size <= 0 {
		size = DefaultRunSize
	}
	base := &Run{toks: make([]Token, size)}
	return &Runs{base: base, cur: base, count: 1}
}

// Next returns the slot at the cursor and advances past it. replay is true
// when the slot holds a token issued earlier and backed up over; otherwise
// the slot is fresh and the caller fills it.
func (s *Runs) Next() (tok *Token, replay bool) {
	if s.lookaheads > 0 {
		s.lookaheads--
		if s.idx == len(s.cur.toks) {
			s.cur, s.idx = s.cur.next, 0
		}
		tok = &s.cur.toks[s.idx]
		s.idx++
		return tok, true
	}
	if s.idx == len(s.cur.toks) {
		s.cur, s.idx = s.nextRun(), 0
	}
	tok = &s.cur.toks[s.idx]
	*tok = Token{}
	s.idx++
	return tok, false
}

func (s *Runs) nextRun() *Run {
	if s.keep == 0 && s.cur.next != nil {
		return s.cur.next
	}
	r := &Run{toks: make([]Token, 2*len(s.cur.toks)), prev: s.cur, next: s.cur.next}
	if s.cur.next != nil {
		s.cur.next.prev = r
	}
	s.cur.next = r
	s.count++
	return r
}

// Backup moves the cursor back n tokens so the next n calls to Next replay
// them.
func (s *Runs) Backup(n int) {
	for i := 0; i < n; i++ {
		if s.idx == 0 {
			if s.cur.prev == nil {
				panic("token: backup before the first run")
			}
			s.cur = s.cur.prev
			s.idx = len(s.cur.toks)
		}
		s.idx--
		s.lookaheads++
	}
}

// Retain raises the retention counter.
func (s *Runs) Retain() { s.keep++ }

// Release lowers the retention counter.
func (s *Runs) Release() {
	if s.keep == 0 {
		panic("token: release without retain")
	}
	s.keep--
}

// Retained reports whether any caller holds the store.
func (s *Runs) Retained() bool { return s.keep > 0 }

// Lookaheads returns the number of backed-up tokens waiting to replay.
func (s *Runs) Lookaheads() int { return s.lookaheads }

// Rewind resets the cursor to the first run without freeing anything. It
// is a no-op while tokens are retained or waiting to replay.
func (s *Runs) Rewind() bool {
	if s.keep > 0 || s.lookaheads > 0 {
		return false
	}
	s.cur, s.idx = s.base, 0
	return true
}

// Count returns how many runs the chain holds.
func (s *Runs) Count() int { return s.count }

func (s *Runs) String() string {
	return fmt.Sprintf("runs=%d keep=%d lookaheads=%d", s.count, s.keep, s.lookaheads)
}
