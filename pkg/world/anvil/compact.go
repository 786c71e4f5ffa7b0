package anvil

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/OCharnyshevich/world-pruner/pkg/world/selection"
)

// CompactResult counts what Compact did with the slots of one file.
type CompactResult struct {
	Empty   int // absent in the source
	Dropped int // present but not in the keep mask
	Kept    int
	Deleted bool
}

// Compact rewrites the region file at path so it holds only the slots set in
// keep, packed from sector 2 in slot order with their payload bytes and
// timestamps unchanged. The file is deleted when it has no payload, when keep
// is empty or when no slot survives. On error the source is left untouched.
func Compact(path string, keep *selection.ChunkSet) (CompactResult, error) {
	var res CompactResult

	info, err := os.Stat(path)
	if err != nil {
		return res, fmt.Errorf("stat region: %w", err)
	}
	if info.Size() <= HeaderSize || keep.IsEmpty() {
		return deleteRegion(path, res)
	}

	src, err := os.Open(path)
	if err != nil {
		return res, fmt.Errorf("open region: %w", err)
	}
	defer src.Close()

	h, err := ReadHeader(src)
	if err != nil {
		return res, err
	}

	var out Header
	next := uint32(HeaderSectors)
	err = writeAtomic(path, func(f *os.File) error {
		// header is written last, once every slot has its new location
		if _, err := f.Seek(HeaderSize, io.SeekStart); err != nil {
			return fmt.Errorf("seek temp region file: %w", err)
		}
		buf := make([]byte, 0, 16*SectorSize)
		for slot := 0; slot < Slots; slot++ {
			loc := h.Locations[slot]
			switch {
			case !loc.Present():
				res.Empty++
				continue
			case !keep.Get(slot):
				res.Dropped++
				continue
			}

			payload, err := readSectors(src, info.Size(), loc, buf)
			if err != nil {
				return fmt.Errorf("slot %d: %w", slot, err)
			}
			buf = payload
			if _, err := f.Write(buf); err != nil {
				return fmt.Errorf("write slot %d: %w", slot, err)
			}
			if next > maxSectorOffset {
				return fmt.Errorf("slot %d: sector offset %d overflows the location table", slot, next)
			}
			out.Locations[slot] = Location{Offset: next, Sectors: loc.Sectors}
			out.Timestamps[slot] = h.Timestamps[slot]
			next += uint32(loc.Sectors)
			res.Kept++
		}
		if res.Kept == 0 {
			return errNothingKept
		}
		if _, err := f.WriteAt(out.Bytes(), 0); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		return nil
	})
	if errors.Is(err, errNothingKept) {
		src.Close()
		return deleteRegion(path, res)
	}
	if err != nil {
		return res, fmt.Errorf("compact %s: %w", path, err)
	}
	return res, nil
}

// errNothingKept aborts the temp file when every slot was dropped.
var errNothingKept = errors.New("anvil: no slot kept")

// readSectors reads the sectors of loc into buf. A final sector cut short by
// the end of the file is zero-padded; a slot starting past the end is an error.
func readSectors(src io.ReaderAt, size int64, loc Location, buf []byte) ([]byte, error) {
	off := int64(loc.Offset) * SectorSize
	n := int(loc.Sectors) * SectorSize
	if off >= size {
		return nil, fmt.Errorf("%w: offset %d, size %d", ErrSlotOutOfBounds, off, size)
	}
	buf = buf[:0]
	if cap(buf) < n {
		buf = make([]byte, 0, n)
	}
	buf = buf[:n]

	read, err := src.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	clear(buf[read:])
	return buf, nil
}

func deleteRegion(path string, res CompactResult) (CompactResult, error) {
	if err := os.Remove(path); err != nil {
		return res, fmt.Errorf("delete region: %w", err)
	}
	res.Deleted = true
	return res, nil
}
