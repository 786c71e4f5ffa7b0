package anvil

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCharnyshevich/world-pruner/pkg/world/coord"
)

func TestFileName(t *testing.T) {
	assert.Equal(t, "r.-1.3.mca", FileName(coord.Point{X: -1, Z: 3}))

	tests := []struct {
		name string
		want coord.Point
		ok   bool
	}{
		{"r.0.0.mca", coord.Point{}, true},
		{"r.-12.7.mca", coord.Point{X: -12, Z: 7}, true},
		{"r.1.2.mcr", coord.Point{}, false},
		{"r.a.2.mca", coord.Point{}, false},
		{"r.1.2.mca.tmp", coord.Point{}, false},
		{"r.99999999999.0.mca", coord.Point{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFileName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	var h Header
	h.Locations[0] = Location{Offset: 2, Sectors: 1}
	h.Locations[1023] = Location{Offset: 1<<24 - 1, Sectors: 255}
	h.Timestamps[5] = 0xDEADBEEF

	raw := h.Bytes()
	require.Len(t, raw, HeaderSize)
	assert.Equal(t, []byte{0, 0, 2, 1}, raw[0:4])
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, raw[1023*4:1024*4])
	assert.Equal(t, uint32(0xDEADBEEF), binary.BigEndian.Uint32(raw[SectorSize+5*4:]))

	got, err := ReadHeader(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, h, *got)
	assert.True(t, got.Locations[0].Present())
	assert.False(t, got.Locations[1].Present())
}

func TestReadHeaderShort(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader(make([]byte, HeaderSize-1)))
	assert.ErrorIs(t, err, ErrShortHeader)
}

func TestWriteRegionReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region", "r.-1.2.mca")
	chunks := map[int][]byte{
		0:    []byte("first"),
		37:   bytes.Repeat([]byte{7}, 3*SectorSize),
		1023: []byte("last"),
	}
	require.NoError(t, WriteRegion(path, chunks, 1234))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, coord.Point{X: -1, Z: 2}, r.Position())
	assert.Equal(t, coord.Point{X: -1, Z: 95}, r.Chunk(1023))

	for slot, want := range chunks {
		rc, err := r.ChunkReader(slot)
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, want, got, "slot %d", slot)
		assert.Equal(t, uint32(1234), r.Header().Timestamps[slot])
	}

	// slots are laid out in order from sector 2
	locs := r.Header().Locations
	assert.Equal(t, uint32(2), locs[0].Offset)
	assert.Equal(t, locs[0].Offset+uint32(locs[0].Sectors), locs[37].Offset)
	assert.Equal(t, locs[37].Offset+uint32(locs[37].Sectors), locs[1023].Offset)

	_, err = r.ChunkReader(1)
	assert.ErrorIs(t, err, ErrNotPresent)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestChunkReaderCompressions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.0.0.mca")
	payload := []byte("payload bytes")

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	writeRawRegion(t, path, map[int]rawSlot{
		0: {compression: CompressionGzip, data: gz.Bytes()},
		1: {compression: CompressionNone, data: payload},
		2: {compression: CompressionLZ4, data: payload},
		3: {compression: CompressionNone | compressionExternalFlag},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.3.0.mcc"), payload, 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	for _, slot := range []int{0, 1, 3} {
		rc, err := r.ChunkReader(slot)
		require.NoError(t, err, "slot %d", slot)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		assert.Equal(t, payload, got, "slot %d", slot)
	}

	_, err = r.ChunkReader(2)
	assert.ErrorIs(t, err, ErrUnsupportedCompression)
}

func TestChunkReaderCorruptLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.0.0.mca")
	writeRawRegion(t, path, map[int]rawSlot{0: {compression: CompressionNone, data: []byte("x")}})

	// claim a length larger than the slot's single sector
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], SectorSize+10)
	_, err = f.WriteAt(length[:], 2*SectorSize)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	_, err = r.ChunkReader(0)
	assert.ErrorIs(t, err, ErrCorruptChunk)
}

func TestOpenRejectsName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level.dat")
	require.NoError(t, os.WriteFile(path, make([]byte, HeaderSize), 0o644))
	_, err := Open(path)
	assert.Error(t, err)
}

type rawSlot struct {
	compression byte
	data        []byte
	timestamp   uint32
}

// writeRawRegion writes slots verbatim, one after another from sector 2.
func writeRawRegion(t *testing.T, path string, slots map[int]rawSlot) {
	t.Helper()
	var h Header
	var body bytes.Buffer
	next := uint32(HeaderSectors)
	for slot := 0; slot < Slots; slot++ {
		s, ok := slots[slot]
		if !ok {
			continue
		}
		total := 5 + len(s.data)
		sectors := uint32((total + SectorSize - 1) / SectorSize)
		var head [5]byte
		binary.BigEndian.PutUint32(head[:4], uint32(len(s.data)+1))
		head[4] = s.compression
		body.Write(head[:])
		body.Write(s.data)
		body.Write(make([]byte, int(sectors)*SectorSize-total))
		h.Locations[slot] = Location{Offset: next, Sectors: uint8(sectors)}
		h.Timestamps[slot] = s.timestamp
		next += sectors
	}
	require.NoError(t, os.WriteFile(path, append(h.Bytes(), body.Bytes()...), 0o644))
}
