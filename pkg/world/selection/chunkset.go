package selection

import (
	"errors"
	"fmt"
	"iter"
	"math/bits"

	"github.com/OCharnyshevich/world-pruner/pkg/world/coord"
)

const setWords = coord.RegionChunks / 64

// ErrImmutable is the panic value raised when a frozen ChunkSet is mutated.
var ErrImmutable = errors.New("cannot modify immutable ChunkSet")

// ChunkSet is a fixed set over the 1024 chunk slots of one region.
// The zero value is an empty, mutable set.
type ChunkSet struct {
	words  [setWords]uint64
	count  uint16
	frozen bool
}

var emptySet = (&ChunkSet{}).Immutable()

// NewChunkSet returns an empty set containing the given indices.
func NewChunkSet(indices ...int) *ChunkSet {
	s := &ChunkSet{}
	for _, i := range indices {
		s.Set(i)
	}
	return s
}

// FullChunkSet returns a mutable set with all 1024 slots present.
func FullChunkSet() *ChunkSet {
	s := &ChunkSet{count: coord.RegionChunks}
	for i := range s.words {
		s.words[i] = ^uint64(0)
	}
	return s
}

// EmptyChunkSet returns the shared frozen empty set.
func EmptyChunkSet() *ChunkSet {
	return emptySet
}

func checkIndex(i int) {
	if i < 0 || i >= coord.RegionChunks {
		panic(fmt.Sprintf("chunk index %d out of range [0,%d)", i, coord.RegionChunks))
	}
}

func (s *ChunkSet) mustMutable() {
	if s.frozen {
		panic(ErrImmutable)
	}
}

func (s *ChunkSet) Set(i int) {
	checkIndex(i)
	s.mustMutable()
	w, b := i>>6, uint64(1)<<(uint(i)&63)
	if s.words[w]&b == 0 {
		s.words[w] |= b
		s.count++
	}
}

func (s *ChunkSet) Clear(i int) {
	checkIndex(i)
	s.mustMutable()
	w, b := i>>6, uint64(1)<<(uint(i)&63)
	if s.words[w]&b != 0 {
		s.words[w] &^= b
		s.count--
	}
}

func (s *ChunkSet) Get(i int) bool {
	checkIndex(i)
	return s.words[i>>6]&(uint64(1)<<(uint(i)&63)) != 0
}

// Len returns the number of set slots.
func (s *ChunkSet) Len() int { return int(s.count) }

func (s *ChunkSet) IsEmpty() bool { return s.count == 0 }

func (s *ChunkSet) IsFull() bool { return s.count == coord.RegionChunks }

// IsImmutable reports whether mutators on s panic.
func (s *ChunkSet) IsImmutable() bool { return s.frozen }

// Merge ORs other into s.
func (s *ChunkSet) Merge(other *ChunkSet) {
	s.mustMutable()
	for i := range s.words {
		s.words[i] |= other.words[i]
	}
	s.recount()
}

// Subtract removes every slot of other from s.
func (s *ChunkSet) Subtract(other *ChunkSet) {
	s.mustMutable()
	for i := range s.words {
		s.words[i] &^= other.words[i]
	}
	s.recount()
}

// Intersect keeps only the slots present in both s and other.
func (s *ChunkSet) Intersect(other *ChunkSet) {
	s.mustMutable()
	for i := range s.words {
		s.words[i] &= other.words[i]
	}
	s.recount()
}

// RemoveIf clears every slot for which pred returns true.
func (s *ChunkSet) RemoveIf(pred func(int) bool) {
	s.mustMutable()
	for i := 0; i < coord.RegionChunks; i++ {
		if pred(i) {
			s.Clear(i)
		}
	}
}

// Clone returns a mutable copy of s, even if s is frozen.
func (s *ChunkSet) Clone() *ChunkSet {
	c := *s
	c.frozen = false
	return &c
}

// Complement returns a mutable set holding exactly the slots s does not hold.
func (s *ChunkSet) Complement() *ChunkSet {
	c := &ChunkSet{}
	for i := range s.words {
		c.words[i] = ^s.words[i]
	}
	c.count = coord.RegionChunks - s.count
	return c
}

// Immutable returns a frozen copy of s.
func (s *ChunkSet) Immutable() *ChunkSet {
	c := *s
	c.frozen = true
	return &c
}

// All yields the set slots in ascending order.
func (s *ChunkSet) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		for w, word := range s.words {
			for word != 0 {
				b := bits.TrailingZeros64(word)
				if !yield(w<<6 | b) {
					return
				}
				word &= word - 1
			}
		}
	}
}

// Equal reports whether s and other hold the same slots.
func (s *ChunkSet) Equal(other *ChunkSet) bool {
	return s.words == other.words
}

func (s *ChunkSet) recount() {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	s.count = uint16(n)
}

func (s *ChunkSet) String() string {
	return fmt.Sprintf("ChunkSet(%d)", s.count)
}
