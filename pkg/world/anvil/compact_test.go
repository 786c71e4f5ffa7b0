package anvil

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCharnyshevich/world-pruner/pkg/world/selection"
)

// fragmentedRegion writes a region whose occupied slots are scattered over
// the file in random order with free sectors between them. It returns the
// raw sectors of each slot.
func fragmentedRegion(t *testing.T, path string, slots []int, rng *rand.Rand) map[int][]byte {
	t.Helper()
	var h Header
	payloads := make(map[int][]byte, len(slots))

	order := append([]int(nil), slots...)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	body := make([]byte, 0, len(slots)*3*SectorSize)
	next := uint32(HeaderSectors)
	for _, slot := range order {
		gap := rng.IntN(2)
		body = append(body, make([]byte, gap*SectorSize)...)
		next += uint32(gap)

		sectors := 1 + rng.IntN(3)
		raw := make([]byte, sectors*SectorSize)
		for i := range raw {
			raw[i] = byte(rng.Uint32())
		}
		payloads[slot] = raw
		body = append(body, raw...)

		h.Locations[slot] = Location{Offset: next, Sectors: uint8(sectors)}
		h.Timestamps[slot] = uint32(1_600_000_000 + slot)
		next += uint32(sectors)
	}
	require.NoError(t, os.WriteFile(path, append(h.Bytes(), body...), 0o644))
	return payloads
}

func TestCompactDefragments(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	dir := t.TempDir()
	path := filepath.Join(dir, "r.0.0.mca")

	perm := rng.Perm(Slots)
	occupied := perm[:500]
	payloads := fragmentedRegion(t, path, occupied, rng)

	keep := selection.NewChunkSet()
	for _, slot := range occupied[:200] {
		keep.Set(slot)
	}
	// kept but absent slots must stay empty
	for _, slot := range perm[500:520] {
		keep.Set(slot)
	}

	res, err := Compact(path, keep)
	require.NoError(t, err)
	assert.Equal(t, CompactResult{Empty: Slots - 500, Dropped: 300, Kept: 200}, res)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	h := r.Header()

	next := uint32(HeaderSectors)
	occupiedOut := 0
	for slot := 0; slot < Slots; slot++ {
		loc := h.Locations[slot]
		if !loc.Present() {
			assert.Zero(t, h.Timestamps[slot], "slot %d", slot)
			continue
		}
		occupiedOut++
		require.True(t, keep.Get(slot), "slot %d not kept", slot)
		require.Equal(t, next, loc.Offset, "slot %d not packed", slot)

		want := payloads[slot]
		start := int(loc.Offset) * SectorSize
		assert.Equal(t, want, data[start:start+len(want)], "slot %d payload", slot)
		assert.Equal(t, uint32(1_600_000_000+slot), h.Timestamps[slot])
		next += uint32(loc.Sectors)
	}
	assert.Equal(t, 200, occupiedOut)
	assert.Len(t, data, int(next)*SectorSize)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")
}

func TestCompactDeletes(t *testing.T) {
	tests := []struct {
		name  string
		write func(t *testing.T, path string)
		keep  *selection.ChunkSet
		want  CompactResult
	}{
		{
			name: "header only",
			write: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, make([]byte, HeaderSize), 0o644))
			},
			keep: selection.FullChunkSet(),
			want: CompactResult{Deleted: true},
		},
		{
			name: "empty file",
			write: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, nil, 0o644))
			},
			keep: selection.FullChunkSet(),
			want: CompactResult{Deleted: true},
		},
		{
			name: "empty keep mask",
			write: func(t *testing.T, path string) {
				require.NoError(t, WriteRegion(path, map[int][]byte{0: []byte("a")}, 1))
			},
			keep: selection.EmptyChunkSet(),
			want: CompactResult{Deleted: true},
		},
		{
			name: "nothing kept",
			write: func(t *testing.T, path string) {
				require.NoError(t, WriteRegion(path, map[int][]byte{0: []byte("a"), 1: []byte("b")}, 1))
			},
			keep: selection.NewChunkSet(2, 3),
			want: CompactResult{Empty: Slots - 2, Dropped: 2, Deleted: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "r.0.0.mca")
			tt.write(t, path)

			res, err := Compact(path, tt.keep)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestCompactKeepsEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.3.-4.mca")
	chunks := map[int][]byte{5: []byte("five"), 900: []byte("nine hundred")}
	require.NoError(t, WriteRegion(path, chunks, 99))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	res, err := Compact(path, selection.FullChunkSet())
	require.NoError(t, err)
	assert.Equal(t, CompactResult{Empty: Slots - 2, Kept: 2}, res)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCompactTruncatedPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.0.0.mca")
	var h Header
	h.Locations[0] = Location{Offset: 2, Sectors: 2}
	h.Locations[1] = Location{Offset: 40, Sectors: 1}
	body := []byte{0, 0, 0, 4, CompressionNone, 'a', 'b', 'c'}
	require.NoError(t, os.WriteFile(path, append(h.Bytes(), body...), 0o644))

	t.Run("short final sector is padded", func(t *testing.T) {
		res, err := Compact(path, selection.NewChunkSet(0))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Kept)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Len(t, data, HeaderSize+2*SectorSize)
		assert.Equal(t, body, data[HeaderSize:HeaderSize+len(body)])
		assert.Zero(t, data[len(data)-1])
	})

	t.Run("slot past end of file", func(t *testing.T) {
		h.Locations[0] = Location{}
		require.NoError(t, os.WriteFile(path, append(h.Bytes(), body...), 0o644))
		before, err := os.ReadFile(path)
		require.NoError(t, err)

		_, err = Compact(path, selection.NewChunkSet(1))
		assert.ErrorIs(t, err, ErrSlotOutOfBounds)

		after, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, before, after, "source untouched")
		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}
