// Package anvil reads, writes and compacts sector-addressed region files.
package anvil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/OCharnyshevich/world-pruner/pkg/world/coord"
)

const (
	SectorSize    = 4096
	HeaderSectors = 2 // location table + timestamp table
	HeaderSize    = HeaderSectors * SectorSize
	Slots         = coord.RegionChunks

	maxSectorOffset = 1<<24 - 1
)

// Chunk payload compression types.
const (
	CompressionGzip         byte = 1
	CompressionZlib         byte = 2
	CompressionNone         byte = 3
	CompressionLZ4          byte = 4
	compressionExternalFlag byte = 128
)

var (
	ErrNotPresent             = errors.New("anvil: chunk not present")
	ErrUnsupportedCompression = errors.New("anvil: unsupported compression type")
	ErrCorruptChunk           = errors.New("anvil: corrupt chunk header")
	ErrShortHeader            = errors.New("anvil: file shorter than region header")
	ErrSlotOutOfBounds        = errors.New("anvil: slot points past end of file")
)

var fileNamePattern = regexp.MustCompile(`^r\.(-?\d+)\.(-?\d+)\.mca$`)

// FileName returns the region file name for region.
func FileName(region coord.Point) string {
	return fmt.Sprintf("r.%d.%d.mca", region.X, region.Z)
}

// ParseFileName extracts the region position from a file name of the form
// r.<x>.<z>.mca.
func ParseFileName(name string) (coord.Point, bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return coord.Point{}, false
	}
	x, err := strconv.ParseInt(m[1], 10, 32)
	if err != nil {
		return coord.Point{}, false
	}
	z, err := strconv.ParseInt(m[2], 10, 32)
	if err != nil {
		return coord.Point{}, false
	}
	return coord.Point{X: int32(x), Z: int32(z)}, true
}

// Location is one entry of the location table.
type Location struct {
	Offset  uint32 // in sectors
	Sectors uint8
}

// Present reports whether the slot holds a chunk.
func (l Location) Present() bool {
	return l.Offset != 0 && l.Sectors != 0
}

// Header is the decoded pair of header sectors.
type Header struct {
	Locations  [Slots]Location
	Timestamps [Slots]uint32
}

// ReadHeader decodes the two header sectors of a region file.
func ReadHeader(r io.ReaderAt) (*Header, error) {
	var raw [HeaderSize]byte
	if n, err := r.ReadAt(raw[:], 0); n < HeaderSize {
		if err == nil || err == io.EOF {
			err = ErrShortHeader
		}
		return nil, fmt.Errorf("read region header: %w", err)
	}

	h := &Header{}
	for i := 0; i < Slots; i++ {
		entry := binary.BigEndian.Uint32(raw[i*4:])
		h.Locations[i] = Location{Offset: entry >> 8, Sectors: uint8(entry)}
		h.Timestamps[i] = binary.BigEndian.Uint32(raw[SectorSize+i*4:])
	}
	return h, nil
}

// Bytes encodes h into its on-disk form.
func (h *Header) Bytes() []byte {
	raw := make([]byte, HeaderSize)
	for i := 0; i < Slots; i++ {
		loc := h.Locations[i]
		binary.BigEndian.PutUint32(raw[i*4:], loc.Offset<<8|uint32(loc.Sectors))
		binary.BigEndian.PutUint32(raw[SectorSize+i*4:], h.Timestamps[i])
	}
	return raw
}

// Region is an open region file.
type Region struct {
	f      *os.File
	path   string
	pos    coord.Point
	header *Header
}

// Open opens the region file at path and reads its header. The region
// position is taken from the file name.
func Open(path string) (*Region, error) {
	pos, ok := ParseFileName(filepath.Base(path))
	if !ok {
		return nil, fmt.Errorf("open region %s: not a region file name", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open region: %w", err)
	}
	h, err := ReadHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Region{f: f, path: path, pos: pos, header: h}, nil
}

// Close closes the underlying file.
func (r *Region) Close() error {
	return r.f.Close()
}

// Position returns the region coordinates.
func (r *Region) Position() coord.Point { return r.pos }

// Header returns the decoded header.
func (r *Region) Header() *Header { return r.header }

// Chunk returns the absolute chunk position of slot.
func (r *Region) Chunk(slot int) coord.Point {
	return coord.FromRelativeIndex(r.pos, slot)
}

// ChunkReader returns the decompressed NBT stream of the chunk in slot.
// The caller must close it. ErrNotPresent is returned for empty slots.
func (r *Region) ChunkReader(slot int) (io.ReadCloser, error) {
	loc := r.header.Locations[slot]
	if !loc.Present() {
		return nil, ErrNotPresent
	}

	var head [5]byte
	if _, err := r.f.ReadAt(head[:], int64(loc.Offset)*SectorSize); err != nil {
		return nil, fmt.Errorf("read chunk %s header: %w", r.Chunk(slot), err)
	}
	length := binary.BigEndian.Uint32(head[:4])
	compression := head[4]
	if length == 0 || uint64(length)+4 > uint64(loc.Sectors)*SectorSize {
		return nil, fmt.Errorf("chunk %s length %d in %d sectors: %w", r.Chunk(slot), length, loc.Sectors, ErrCorruptChunk)
	}

	var src io.Reader
	if compression&compressionExternalFlag != 0 {
		compression &^= compressionExternalFlag
		chunk := r.Chunk(slot)
		data, err := os.ReadFile(filepath.Join(filepath.Dir(r.path), fmt.Sprintf("c.%d.%d.mcc", chunk.X, chunk.Z)))
		if err != nil {
			return nil, fmt.Errorf("read external chunk %s: %w", chunk, err)
		}
		src = bytes.NewReader(data)
	} else {
		src = io.NewSectionReader(r.f, int64(loc.Offset)*SectorSize+5, int64(length)-1)
	}
	return decompress(compression, src)
}

func decompress(compression byte, src io.Reader) (io.ReadCloser, error) {
	switch compression {
	case CompressionGzip:
		return gzip.NewReader(src)
	case CompressionZlib:
		return zlib.NewReader(src)
	case CompressionNone:
		return io.NopCloser(src), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, compression)
	}
}

// WriteRegion writes a region file at path holding the given chunks, keyed by
// slot and given as uncompressed NBT. Chunks are zlib-compressed and laid out
// in slot order. The file is replaced atomically.
func WriteRegion(path string, chunks map[int][]byte, timestamp uint32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create region dir: %w", err)
	}

	slots := make([]int, 0, len(chunks))
	for slot := range chunks {
		if slot < 0 || slot >= Slots {
			return fmt.Errorf("slot %d out of range", slot)
		}
		slots = append(slots, slot)
	}
	slices.Sort(slots)

	var h Header
	var dataBuf bytes.Buffer
	currentSector := uint32(HeaderSectors)

	for _, slot := range slots {
		var cbuf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&cbuf, zlib.DefaultCompression)
		if err != nil {
			return fmt.Errorf("create zlib writer: %w", err)
		}
		if _, err := zw.Write(chunks[slot]); err != nil {
			return fmt.Errorf("compress slot %d: %w", slot, err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("close zlib writer: %w", err)
		}

		// length (4 bytes) + compression (1 byte) + compressed NBT
		payloadLen := uint32(cbuf.Len()) + 1
		totalLen := 4 + payloadLen
		sectorCount := (totalLen + SectorSize - 1) / SectorSize
		if sectorCount > 255 {
			return fmt.Errorf("slot %d needs %d sectors", slot, sectorCount)
		}

		h.Locations[slot] = Location{Offset: currentSector, Sectors: uint8(sectorCount)}
		h.Timestamps[slot] = timestamp

		var head [5]byte
		binary.BigEndian.PutUint32(head[0:4], payloadLen)
		head[4] = CompressionZlib
		dataBuf.Write(head[:])
		dataBuf.Write(cbuf.Bytes())

		// pad to sector boundary
		if pad := int(sectorCount)*SectorSize - int(totalLen); pad > 0 {
			dataBuf.Write(make([]byte, pad))
		}
		currentSector += sectorCount
	}

	return writeAtomic(path, func(f *os.File) error {
		if _, err := f.Write(h.Bytes()); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if _, err := f.Write(dataBuf.Bytes()); err != nil {
			return fmt.Errorf("write chunk data: %w", err)
		}
		return nil
	})
}

// writeAtomic fills a temp file next to path and renames it over path.
// The temp file is removed on any failure.
func writeAtomic(path string, fill func(f *os.File) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp region file: %w", err)
	}
	tmp := f.Name()
	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err := fill(f); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync temp region file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp region file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		committed = true
		return fmt.Errorf("rename region file: %w", err)
	}
	committed = true
	return nil
}
