// Package arena provides block allocators with free-list reuse.
//
// An Arena hands out Blocks: contiguous runs of elements with a bump cursor.
// Blocks are never returned to the Go runtime while the arena lives; releasing
// a block chain puts every block on a free list ordered by descending
// capacity, and later acquisitions take the best fit from that list.
//
// Each arena also keeps one open permanent block. Permanent allocations are
// never released and stay valid until the arena is dropped.
package arena

import (
	"fmt"
	"sort"
)

const (
	// DefaultMinSize is the smallest block a fresh allocation produces.
	DefaultMinSize = 256

	// maxGrowth caps geometric growth of fresh blocks, in elements.
	maxGrowth = 1 << 20
)

// Block is a contiguous run of elements. len(buf) is the cursor and cap(buf)
// the limit; the cursor never exceeds the limit.
type Block[T any] struct {
	buf  []T
	next *Block[T]
}

// Len returns the number of elements in use.
func (b *Block[T]) Len() int { return len(b.buf) }

// Cap returns the block's limit.
func (b *Block[T]) Cap() int { return cap(b.buf) }

// Room returns how many more elements fit before the limit.
func (b *Block[T]) Room() int { return cap(b.buf) - len(b.buf) }

// Items returns the elements in use. The slice aliases the block.
func (b *Block[T]) Items() []T { return b.buf }

// Next returns the block chained behind b, if any.
func (b *Block[T]) Next() *Block[T] { return b.next }

// Append adds v at the cursor. It panics if the block has no room; callers
// grow through Arena.Extend first.
func (b *Block[T]) Append(v ...T) {
	if len(v) > b.Room() {
		panic(fmt.Sprintf("arena: append of %d elements overflows block with room %d", len(v), b.Room()))
	}
	b.buf = append(b.buf, v...)
}

// Alloc carves n zeroed elements at the cursor. The returned slice has its
// capacity clipped so appends to it cannot spill into the rest of the block.
func (b *Block[T]) Alloc(n int) []T {
	if n < 0 || n > b.Room() {
		panic(fmt.Sprintf("arena: alloc of %d elements overflows block with room %d", n, b.Room()))
	}
	lo := len(b.buf)
	b.buf = b.buf[:lo+n]
	return b.buf[lo : lo+n : lo+n]
}

// Truncate moves the cursor back to n.
func (b *Block[T]) Truncate(n int) {
	if n < 0 || n > len(b.buf) {
		panic(fmt.Sprintf("arena: truncate to %d outside [0, %d]", n, len(b.buf)))
	}
	clear(b.buf[n:])
	b.buf = b.buf[:n]
}

// Arena allocates blocks of T.
type Arena[T any] struct {
	free    []*Block[T] // descending capacity
	minSize int
	growth  int
	perm    *Block[T]

	fresh    int // blocks obtained from the runtime
	reused   int // acquisitions served from the free list
	released int
}

// New returns an arena whose fresh blocks hold at least minSize elements.
func New[T any](minSize int) *Arena[T] {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	return &Arena[T]{minSize: minSize, growth: minSize}
}

// upperBound is the largest free block Acquire accepts for a request of
// n elements, so a huge released block is not wasted on a tiny request.
func (a *Arena[T]) upperBound(n int) int {
	return 4*n + a.minSize
}

// Acquire returns an empty block with room for at least n elements,
// preferring the best-fitting free block.
func (a *Arena[T]) Acquire(n int) *Block[T] {
	if n < 0 {
		panic(fmt.Sprintf("arena: negative acquire %d", n))
	}
	// free is sorted by descending capacity, so walking from the tail finds
	// the smallest block that fits.
	for i := len(a.free) - 1; i >= 0; i-- {
		b := a.free[i]
		if b.Cap() < n {
			continue
		}
		if b.Cap() > a.upperBound(n) {
			break
		}
		a.free = append(a.free[:i], a.free[i+1:]...)
		a.reused++
		return b
	}
	return a.grow(n)
}

func (a *Arena[T]) grow(n int) *Block[T] {
	size := max(n, a.growth)
	if a.growth < maxGrowth {
		a.growth *= 2
	}
	a.fresh++
	return &Block[T]{buf: make([]T, 0, size)}
}

// Extend guarantees room for n more elements after b's cursor. If b
// already has the room it is returned unchanged. Otherwise a larger block is
// acquired, b's contents are copied into it and b is chained behind the new
// block, so releasing the result releases both.
func (a *Arena[T]) Extend(b *Block[T], n int) *Block[T] {
	if b.Room() >= n {
		return b
	}
	nb := a.Acquire(b.Len() + n + b.Len()/2)
	nb.buf = append(nb.buf, b.buf...)
	nb.next = b
	return nb
}

// Release returns every block of the chain starting at b to the free list.
func (a *Arena[T]) Release(b *Block[T]) {
	for b != nil {
		next := b.next
		clear(b.buf)
		b.buf = b.buf[:0]
		b.next = nil
		a.insertFree(b)
		a.released++
		b = next
	}
}

func (a *Arena[T]) insertFree(b *Block[T]) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].Cap() < b.Cap() })
	a.free = append(a.free, nil)
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = b
}

// Permanent carves n elements from the arena's permanent block. When the
// open block is too small a new one becomes the permanent block; the old
// one stays alive through whatever references its elements.
func (a *Arena[T]) Permanent(n int) []T {
	if a.perm == nil || a.perm.Room() < n {
		a.perm = a.grow(max(n, a.minSize*4))
	}
	return a.perm.Alloc(n)
}

// Stats describes arena activity.
type Stats struct {
	Fresh    int
	Reused   int
	Released int
	Free     int
}

// Stats reports allocation counters.
func (a *Arena[T]) Stats() Stats {
	return Stats{Fresh: a.fresh, Reused: a.reused, Released: a.released, Free: len(a.free)}
}
