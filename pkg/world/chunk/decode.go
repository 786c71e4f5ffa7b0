// Package chunk extracts the fields the pruner needs from a chunk payload:
// the inhabited time and the structure starts and references.
package chunk

import (
	"fmt"
	"io"
	"math"

	"github.com/OCharnyshevich/world-pruner/pkg/world/coord"
	"github.com/OCharnyshevich/world-pruner/pkg/world/nbt"
)

// BoundingBox is an axis-aligned box in block coordinates, bounds inclusive.
type BoundingBox struct {
	MinX, MinY, MinZ int32
	MaxX, MaxY, MaxZ int32
}

func boxFromInts(v []int32) (BoundingBox, bool) {
	if len(v) < 6 {
		return BoundingBox{}, false
	}
	return BoundingBox{MinX: v[0], MinY: v[1], MinZ: v[2], MaxX: v[3], MaxY: v[4], MaxZ: v[5]}, true
}

// Start is a structure whose origin is the decoded chunk.
type Start struct {
	Name  string
	Boxes []BoundingBox
}

// Reference names a structure whose origin is another chunk.
type Reference struct {
	Name   string
	Origin coord.Point
}

// Data holds the decoded fields of one chunk.
type Data struct {
	InhabitedTime    int64
	HasInhabitedTime bool
	Starts           []Start
	References       []Reference
}

// InhabitedTimeOr returns the inhabited time, or def if the chunk has none.
func (d *Data) InhabitedTimeOr(def int64) int64 {
	if !d.HasInhabitedTime {
		return def
	}
	return d.InhabitedTime
}

// Retained reports whether the chunk's activity exceeds threshold ticks.
// A chunk without an inhabited time counts as infinitely active.
func (d *Data) Retained(threshold uint64) bool {
	v := d.InhabitedTimeOr(math.MaxInt64)
	return v >= 0 && uint64(v) > threshold
}

type decoder struct {
	r    *nbt.Reader
	data Data

	inhabitedDone  bool
	structuresDone bool
}

func (d *decoder) done() bool {
	return d.inhabitedDone && d.structuresDone
}

// Decode reads a chunk NBT stream. It understands the flat layout
// (InhabitedTime and "structures" at the root) as well as the older one
// nested in "Level", and stops reading once both fields were found.
func Decode(r io.Reader) (*Data, error) {
	d := &decoder{r: nbt.NewReader(r)}
	if _, err := d.r.ReadRoot(); err != nil {
		return nil, fmt.Errorf("read chunk root: %w", err)
	}
	if err := d.compound(false); err != nil {
		return nil, err
	}
	return &d.data, nil
}

// compound walks the root compound, or Level when legacy is set.
func (d *decoder) compound(legacy bool) error {
	for !d.done() {
		tag, name, err := d.r.Next()
		if err != nil {
			return fmt.Errorf("read chunk entry: %w", err)
		}
		if tag == nbt.TagEnd {
			return nil
		}

		switch {
		case name == "InhabitedTime" && tag == nbt.TagLong:
			if d.data.InhabitedTime, err = d.r.Long(); err != nil {
				return fmt.Errorf("read InhabitedTime: %w", err)
			}
			d.data.HasInhabitedTime = true
			d.inhabitedDone = true
		case !legacy && name == "structures" && tag == nbt.TagCompound:
			if err := d.structures("starts"); err != nil {
				return err
			}
			d.structuresDone = true
		case legacy && name == "Structures" && tag == nbt.TagCompound:
			if err := d.structures("Starts"); err != nil {
				return err
			}
			d.structuresDone = true
		case !legacy && name == "Level" && tag == nbt.TagCompound:
			if err := d.compound(true); err != nil {
				return err
			}
		default:
			if err := d.r.Skip(tag); err != nil {
				return fmt.Errorf("skip %s: %w", name, err)
			}
		}
	}
	return nil
}

func (d *decoder) structures(startsName string) error {
	for {
		tag, name, err := d.r.Next()
		if err != nil {
			return fmt.Errorf("read structures: %w", err)
		}
		switch {
		case tag == nbt.TagEnd:
			return nil
		case name == "References" && tag == nbt.TagCompound:
			err = d.references()
		case name == startsName && tag == nbt.TagCompound:
			err = d.starts()
		default:
			err = d.r.Skip(tag)
		}
		if err != nil {
			return err
		}
	}
}

func (d *decoder) references() error {
	for {
		tag, name, err := d.r.Next()
		if err != nil {
			return fmt.Errorf("read references: %w", err)
		}
		if tag == nbt.TagEnd {
			return nil
		}
		if tag != nbt.TagLongArray {
			if err := d.r.Skip(tag); err != nil {
				return err
			}
			continue
		}
		refs, err := d.r.LongArray()
		if err != nil {
			return fmt.Errorf("read references of %s: %w", name, err)
		}
		for _, ref := range refs {
			d.data.References = append(d.data.References, Reference{Name: name, Origin: ChunkFromLong(ref)})
		}
	}
}

func (d *decoder) starts() error {
	for {
		tag, name, err := d.r.Next()
		if err != nil {
			return fmt.Errorf("read starts: %w", err)
		}
		if tag == nbt.TagEnd {
			return nil
		}
		if tag != nbt.TagCompound {
			if err := d.r.Skip(tag); err != nil {
				return err
			}
			continue
		}
		boxes, err := d.start()
		if err != nil {
			return fmt.Errorf("read start %s: %w", name, err)
		}
		// empty starts ("INVALID") carry no boxes
		if len(boxes) > 0 {
			d.data.Starts = append(d.data.Starts, Start{Name: name, Boxes: boxes})
		}
	}
}

func (d *decoder) start() ([]BoundingBox, error) {
	var boxes []BoundingBox
	for {
		tag, name, err := d.r.Next()
		if err != nil {
			return nil, err
		}
		switch {
		case tag == nbt.TagEnd:
			return boxes, nil
		case name == "BB" && tag == nbt.TagIntArray:
			ints, err := d.r.IntArray()
			if err != nil {
				return nil, err
			}
			if bb, ok := boxFromInts(ints); ok {
				boxes = append(boxes, bb)
			}
		case name == "Children" && tag == nbt.TagList:
			if boxes, err = d.children(boxes); err != nil {
				return nil, err
			}
		default:
			if err := d.r.Skip(tag); err != nil {
				return nil, err
			}
		}
	}
}

func (d *decoder) children(boxes []BoundingBox) ([]BoundingBox, error) {
	elem, n, err := d.r.ListHeader()
	if err != nil {
		return nil, err
	}
	if elem != nbt.TagCompound {
		return boxes, d.r.SkipList(elem, n)
	}
	for i := 0; i < n; i++ {
		for {
			tag, name, err := d.r.Next()
			if err != nil {
				return nil, err
			}
			if tag == nbt.TagEnd {
				break
			}
			if name != "BB" || tag != nbt.TagIntArray {
				if err := d.r.Skip(tag); err != nil {
					return nil, err
				}
				continue
			}
			ints, err := d.r.IntArray()
			if err != nil {
				return nil, err
			}
			if bb, ok := boxFromInts(ints); ok {
				boxes = append(boxes, bb)
			}
		}
	}
	return boxes, nil
}

// ChunkFromLong unpacks a chunk position stored by the game as a long,
// with x in the low and z in the high 32 bits.
func ChunkFromLong(v int64) coord.Point {
	return coord.Point{X: int32(v), Z: int32(v >> 32)}
}

// ChunkToLong is the inverse of ChunkFromLong.
func ChunkToLong(p coord.Point) int64 {
	return int64(p.Z)<<32 | int64(uint32(p.X))
}
