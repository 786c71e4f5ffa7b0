// Package structures tracks structure starts and references seen while
// scanning chunks and turns the structures that must survive into the set of
// chunks they cover.
package structures

import (
	"log/slog"
	"slices"

	"github.com/OCharnyshevich/world-pruner/pkg/world/chunk"
	"github.com/OCharnyshevich/world-pruner/pkg/world/coord"
)

// margin widens every bounding box on X and Z before it is mapped to chunks.
const margin = 16

// ID identifies a structure by the chunk holding its start and its name.
type ID struct {
	Origin int64 // chunk key
	Name   string
}

// Record is a cached structure start.
type Record struct {
	ID    ID
	Boxes []chunk.BoundingBox
}

// Index caches structure starts and collects the identities whose chunks
// must be kept. It is fed sequentially during the scan.
type Index struct {
	log     *slog.Logger
	records map[ID]*Record
	keep    map[ID]struct{}
}

// New creates an empty Index.
func New(log *slog.Logger) *Index {
	return &Index{
		log:     log,
		records: make(map[ID]*Record),
		keep:    make(map[ID]struct{}),
	}
}

// OnChunkScanned records the starts defined in pos. When retain is set, the
// chunk's own starts and every structure it references must be kept.
func (x *Index) OnChunkScanned(pos coord.Point, data *chunk.Data, retain bool) {
	origin := pos.Key()
	for _, s := range data.Starts {
		id := ID{Origin: origin, Name: s.Name}
		x.records[id] = &Record{ID: id, Boxes: s.Boxes}
		if retain {
			x.keep[id] = struct{}{}
		}
	}
	if !retain {
		return
	}
	for _, ref := range data.References {
		x.keep[ID{Origin: ref.Origin.Key(), Name: ref.Name}] = struct{}{}
	}
}

// Len returns the number of cached structure starts.
func (x *Index) Len() int { return len(x.records) }

// Resolve returns the sorted keys of every chunk covered by a structure that
// must be kept. Identities without a cached start are logged and skipped.
func (x *Index) Resolve() []int64 {
	seen := make(map[int64]struct{})
	missing := 0
	for id := range x.keep {
		rec, ok := x.records[id]
		if !ok {
			missing++
			x.log.Warn("structure start not found",
				"structure", id.Name,
				"origin", coord.FromKey(id.Origin).ChunkToBlock().String())
			continue
		}
		for _, bb := range rec.Boxes {
			for _, key := range chunksInside(bb) {
				seen[key] = struct{}{}
			}
		}
	}

	keys := make([]int64, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	x.log.Info("resolved structures", "structures", len(x.keep)-missing, "missing", missing, "chunks", len(keys))
	return keys
}

// chunksInside samples the box widened by margin on a 16-block grid and maps
// every sample to its chunk.
func chunksInside(bb chunk.BoundingBox) []int64 {
	var keys []int64
	for bx := int64(bb.MinX) - margin; bx <= int64(bb.MaxX)+margin; bx += 16 {
		for bz := int64(bb.MinZ) - margin; bz <= int64(bb.MaxZ)+margin; bz += 16 {
			p := coord.Point{X: int32(bx), Z: int32(bz)}.BlockToChunk()
			keys = append(keys, p.Key())
		}
	}
	return keys
}
