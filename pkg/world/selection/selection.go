// Package selection implements a sparse predicate over the chunks of an
// unbounded world, stored as per-region exception sets plus an invert flag.
package selection

import (
	"maps"
	"slices"

	"github.com/OCharnyshevich/world-pruner/pkg/world/coord"
)

// Selection marks chunks of a world as selected.
//
// Each region key maps to the set of chunks that are exceptions to the
// default. A nil set means every chunk of the region is an exception, a
// missing key means none is. A chunk is selected when its exception bit
// differs from the inverted flag. Stored sets are never empty and never full.
type Selection struct {
	regions  map[int64]*ChunkSet
	inverted bool
}

// New returns an empty selection.
func New() *Selection {
	return &Selection{regions: make(map[int64]*ChunkSet)}
}

// NewInverted returns a selection that selects every chunk.
func NewInverted() *Selection {
	return &Selection{regions: make(map[int64]*ChunkSet), inverted: true}
}

// Inverted reports whether chunks outside any exception are selected.
func (s *Selection) Inverted() bool { return s.inverted }

// Len returns the number of regions carrying exceptions.
func (s *Selection) Len() int { return len(s.regions) }

// Clone returns a deep copy of s.
func (s *Selection) Clone() *Selection {
	c := &Selection{regions: make(map[int64]*ChunkSet, len(s.regions)), inverted: s.inverted}
	for k, v := range s.regions {
		c.regions[k] = cloneValue(v)
	}
	return c
}

// IsChunkSelected reports whether chunk is selected.
func (s *Selection) IsChunkSelected(chunk coord.Point) bool {
	return s.isSelected(chunk.ChunkToRegion().Key(), chunk.RelativeIndex())
}

func (s *Selection) isSelected(region int64, idx int) bool {
	chunks, ok := s.regions[region]
	if !ok {
		return s.inverted
	}
	return (chunks == nil || chunks.Get(idx)) != s.inverted
}

// AddChunk makes chunk selected.
func (s *Selection) AddChunk(chunk coord.Point) {
	s.addChunk(chunk.ChunkToRegion().Key(), chunk.RelativeIndex())
}

// AddChunkKey is AddChunk for a packed chunk key.
func (s *Selection) AddChunkKey(key int64) {
	s.AddChunk(coord.FromKey(key))
}

// AddAll selects every packed chunk key in keys.
func (s *Selection) AddAll(keys []int64) {
	for _, k := range keys {
		s.AddChunkKey(k)
	}
}

func (s *Selection) addChunk(region int64, idx int) {
	if s.inverted && s.isSelected(region, idx) {
		return
	}
	chunks, ok := s.regions[region]
	if !ok {
		s.regions[region] = NewChunkSet(idx)
		return
	}
	if chunks == nil {
		if s.inverted {
			// every chunk was an exception; all but this one stay that way
			chunks = FullChunkSet()
			chunks.Clear(idx)
			s.regions[region] = chunks
		}
		return
	}
	if s.inverted {
		chunks.Clear(idx)
	} else {
		chunks.Set(idx)
	}
	s.normalize(region, chunks)
}

// AddRegion selects every chunk of region.
func (s *Selection) AddRegion(region coord.Point) {
	if s.inverted {
		delete(s.regions, region.Key())
	} else {
		s.regions[region.Key()] = nil
	}
}

// IsRegionSelected reports whether every chunk of region is selected
// without having to inspect individual chunks.
func (s *Selection) IsRegionSelected(region coord.Point) bool {
	chunks, ok := s.regions[region.Key()]
	if s.inverted {
		return !ok
	}
	return ok && chunks == nil
}

// SelectedChunks returns the frozen set of selected slots of region.
func (s *Selection) SelectedChunks(region coord.Point) *ChunkSet {
	chunks, ok := s.regions[region.Key()]
	switch {
	case !ok && s.inverted:
		return FullChunkSet().Immutable()
	case !ok:
		return EmptyChunkSet()
	case chunks == nil && s.inverted:
		return EmptyChunkSet()
	case chunks == nil:
		return FullChunkSet().Immutable()
	case s.inverted:
		return chunks.Complement().Immutable()
	default:
		return chunks.Immutable()
	}
}

// Regions returns the region keys carrying exceptions in ascending order.
func (s *Selection) Regions() []int64 {
	return slices.Sorted(maps.Keys(s.regions))
}

// normalize stores chunks under region, collapsing full sets to the nil
// sentinel and dropping empty ones.
func (s *Selection) normalize(region int64, chunks *ChunkSet) {
	switch {
	case chunks == nil:
		s.regions[region] = nil
	case chunks.IsEmpty():
		delete(s.regions, region)
	case chunks.IsFull():
		s.regions[region] = nil
	default:
		s.regions[region] = chunks
	}
}

func cloneValue(v *ChunkSet) *ChunkSet {
	if v == nil {
		return nil
	}
	return v.Clone()
}

// complement inverts an exception value; the full sentinel becomes empty.
func complement(v *ChunkSet) *ChunkSet {
	if v == nil {
		return &ChunkSet{}
	}
	return v.Complement()
}
