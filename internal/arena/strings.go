package arena

import "unsafe"

// Strings is the byte-packed arena. Spellings copied into it live in
// permanent blocks and are exposed as strings without a second copy.
type Strings struct {
	bytes *Arena[byte]
	names map[string]string
}

// NewStrings returns an empty string arena.
func NewStrings() *Strings {
	return &Strings{
		bytes: New[byte](4096),
		names: make(map[string]string),
	}
}

// Copy stores b permanently and returns it as a string.
func (s *Strings) Copy(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	dst := s.bytes.Permanent(len(b))
	copy(dst, b)
	// dst is never released or written again, so the string is immutable.
	return unsafe.String(unsafe.SliceData(dst), len(dst))
}

// Intern returns the canonical copy of b, storing it on first sight.
func (s *Strings) Intern(b []byte) string {
	if v, ok := s.names[string(b)]; ok {
		return v
	}
	v := s.Copy(b)
	s.names[v] = v
	return v
}

// InternString is Intern for a string that may alias transient memory.
func (s *Strings) InternString(v string) string {
	if c, ok := s.names[v]; ok {
		return c
	}
	return s.Intern([]byte(v))
}

// Scratch returns a transient byte block for building spellings; release it
// with ReleaseScratch once the result has been copied or interned.
func (s *Strings) Scratch(n int) *Block[byte] { return s.bytes.Acquire(n) }

// GrowScratch makes room for n more bytes in a scratch block.
func (s *Strings) GrowScratch(b *Block[byte], n int) *Block[byte] { return s.bytes.Extend(b, n) }

// ReleaseScratch returns a scratch chain to the free list.
func (s *Strings) ReleaseScratch(b *Block[byte]) { s.bytes.Release(b) }

// Stats reports the underlying byte arena counters.
func (s *Strings) Stats() Stats { return s.bytes.Stats() }
