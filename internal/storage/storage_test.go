package storage

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCharnyshevich/world-pruner/internal/pruner"
	"github.com/OCharnyshevich/world-pruner/pkg/world/coord"
	"github.com/OCharnyshevich/world-pruner/pkg/world/selection"
)

func newStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "out")
	s, err := New(dir, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	return s, dir
}

func TestRunRoundTrip(t *testing.T) {
	s, dir := newStorage(t)

	rd, err := s.LoadRun()
	require.NoError(t, err)
	assert.Nil(t, rd)

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sum := &pruner.Summary{Regions: 3, ChunksScanned: 40, Compacted: 2, Deleted: 1, SlotsDropped: 30, Phase: pruner.PhaseDone}
	want := RunDataFromSummary(sum, pruner.ErrAborted, started, started.Add(time.Minute))
	want.RunID = "run-1"
	require.NoError(t, s.SaveRun(want))

	got, err := s.LoadRun()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "aborted", got.Status)
	assert.Equal(t, "done", got.Phase)
	assert.Equal(t, 40, got.Scan.ChunksScanned)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")
}

func TestSaveKeepFeedsBackAsWhitelist(t *testing.T) {
	s, _ := newStorage(t)

	sel := selection.New()
	sel.AddRegion(coord.Point{X: -1, Z: 0})
	sel.AddChunk(coord.Point{X: 5, Z: 7})
	require.NoError(t, s.SaveKeep(sel))

	back, err := selection.LoadCSV(s.KeepPath())
	require.NoError(t, err)
	assert.Equal(t, sel.String(), back.String())
	assert.True(t, back.IsRegionSelected(coord.Point{X: -1, Z: 0}))
	assert.True(t, back.IsChunkSelected(coord.Point{X: 5, Z: 7}))
}

func TestLoadRunCorrupt(t *testing.T) {
	s, dir := newStorage(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.json"), []byte("{"), 0o644))
	_, err := s.LoadRun()
	assert.Error(t, err)
}
