package chunk

import (
	"bytes"

	"github.com/OCharnyshevich/world-pruner/pkg/world/coord"
	"github.com/OCharnyshevich/world-pruner/pkg/world/nbt"
)

// Layout selects the field layout written by Encode.
type Layout int

const (
	// LayoutFlat puts InhabitedTime and "structures" at the root.
	LayoutFlat Layout = iota
	// LayoutLevel nests them in "Level" with a capitalized "Structures".
	LayoutLevel
)

// Encode writes a minimal chunk NBT document for pos carrying the fields of d.
// Padding adds an unrelated byte array of that size before the interesting
// fields, the way block data precedes them in real chunks.
func Encode(pos coord.Point, d *Data, layout Layout, padding int) ([]byte, error) {
	var buf bytes.Buffer
	w := nbt.NewWriter(&buf)

	w.BeginCompound("")
	if layout == LayoutLevel {
		w.BeginCompound("Level")
	}
	w.WriteInt("xPos", pos.X)
	w.WriteInt("zPos", pos.Z)
	if padding > 0 {
		w.WriteByteArray("Blocks", make([]byte, padding))
	}
	if d.HasInhabitedTime {
		w.WriteLong("InhabitedTime", d.InhabitedTime)
	}

	structures, starts := "structures", "starts"
	if layout == LayoutLevel {
		structures, starts = "Structures", "Starts"
	}
	w.BeginCompound(structures)
	w.BeginCompound("References")
	for name, origins := range groupReferences(d.References) {
		w.WriteLongArray(name, origins)
	}
	w.EndCompound()
	w.BeginCompound(starts)
	for _, s := range d.Starts {
		writeStart(w, s)
	}
	w.EndCompound()
	w.EndCompound()

	w.WriteString("Status", "full")
	if layout == LayoutLevel {
		w.EndCompound()
	}
	w.EndCompound()

	if err := w.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeStart stores the first box as the start's own BB and the rest as
// children.
func writeStart(w *nbt.Writer, s Start) {
	w.BeginCompound(s.Name)
	w.WriteString("id", s.Name)
	if len(s.Boxes) > 0 {
		w.WriteIntArray("BB", boxInts(s.Boxes[0]))
	}
	children := s.Boxes[min(1, len(s.Boxes)):]
	w.BeginList("Children", nbt.TagCompound, int32(len(children)))
	for _, bb := range children {
		w.WriteString("id", "piece")
		w.WriteIntArray("BB", boxInts(bb))
		w.EndCompound()
	}
	w.EndCompound()
}

func boxInts(bb BoundingBox) []int32 {
	return []int32{bb.MinX, bb.MinY, bb.MinZ, bb.MaxX, bb.MaxY, bb.MaxZ}
}

func groupReferences(refs []Reference) map[string][]int64 {
	out := make(map[string][]int64)
	for _, r := range refs {
		out[r.Name] = append(out[r.Name], ChunkToLong(r.Origin))
	}
	return out
}
