// Package coord converts between block, chunk and region coordinates of a world save.
package coord

import "fmt"

const (
	// ChunksPerRegion is the number of chunks along one axis of a region.
	ChunksPerRegion = 32
	// RegionChunks is the number of chunk slots in a region.
	RegionChunks = ChunksPerRegion * ChunksPerRegion
)

// Point is a 2D grid position. Whether it addresses a block, a chunk or a
// region depends on the caller; the conversion methods shift between them.
type Point struct {
	X, Z int32
}

// FromKey unpacks a key produced by Point.Key.
func FromKey(key int64) Point {
	return Point{X: int32(key >> 32), Z: int32(key)}
}

// FromRelativeIndex returns the absolute chunk for slot idx of region.
func FromRelativeIndex(region Point, idx int) Point {
	origin := region.RegionToChunk()
	return Point{X: origin.X + int32(idx%ChunksPerRegion), Z: origin.Z + int32(idx/ChunksPerRegion)}
}

// Key packs the point into a single int64 with X in the high 32 bits.
func (p Point) Key() int64 {
	return int64(p.X)<<32 | int64(uint32(p.Z))
}

// Add returns p translated by (dx, dz).
func (p Point) Add(dx, dz int32) Point {
	return Point{X: p.X + dx, Z: p.Z + dz}
}

func (p Point) shiftRight(n uint) Point { return Point{X: p.X >> n, Z: p.Z >> n} }
func (p Point) shiftLeft(n uint) Point  { return Point{X: p.X << n, Z: p.Z << n} }

func (p Point) BlockToChunk() Point  { return p.shiftRight(4) }
func (p Point) ChunkToRegion() Point { return p.shiftRight(5) }
func (p Point) BlockToRegion() Point { return p.shiftRight(9) }
func (p Point) ChunkToBlock() Point  { return p.shiftLeft(4) }
func (p Point) RegionToChunk() Point { return p.shiftLeft(5) }
func (p Point) RegionToBlock() Point { return p.shiftLeft(9) }

// RelativeIndex maps a chunk to its slot inside the owning region.
// Negative coordinates wrap into [0,32) on both axes.
func (p Point) RelativeIndex() int {
	return int(floorMod(p.Z))*ChunksPerRegion + int(floorMod(p.X))
}

func floorMod(v int32) int32 {
	m := v % ChunksPerRegion
	if m < 0 {
		m += ChunksPerRegion
	}
	return m
}

func (p Point) String() string {
	return fmt.Sprintf("<%d, %d>", p.X, p.Z)
}
