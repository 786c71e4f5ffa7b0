package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCharnyshevich/world-pruner/pkg/world/anvil"
	"github.com/OCharnyshevich/world-pruner/pkg/world/chunk"
	"github.com/OCharnyshevich/world-pruner/pkg/world/coord"
	"github.com/OCharnyshevich/world-pruner/pkg/world/selection"
)

func writeWorld(t *testing.T) string {
	t.Helper()
	world := t.TempDir()
	kept, err := chunk.Encode(coord.Point{}, &chunk.Data{InhabitedTime: 72000, HasInhabitedTime: true}, chunk.LayoutFlat, 0)
	require.NoError(t, err)
	dropped, err := chunk.Encode(coord.Point{X: 1}, &chunk.Data{InhabitedTime: 10, HasInhabitedTime: true}, chunk.LayoutFlat, 0)
	require.NoError(t, err)
	require.NoError(t, anvil.WriteRegion(filepath.Join(world, "region", "r.0.0.mca"), map[int][]byte{0: kept, 1: dropped}, 1))
	require.NoError(t, anvil.WriteRegion(filepath.Join(world, "region", "r.3.3.mca"), map[int][]byte{5: dropped}, 1))
	return world
}

func TestRun(t *testing.T) {
	world := writeWorld(t)
	out := filepath.Join(t.TempDir(), "out")
	metrics := filepath.Join(t.TempDir(), "pruner.prom")
	db := filepath.Join(t.TempDir(), "runs.db")

	var logs bytes.Buffer
	code := run(context.Background(), []string{
		"-world", world,
		"-time", "1 min",
		"-workers", "2",
		"-output", out,
		"-metrics-file", metrics,
		"-report", db,
	}, &logs)
	require.Equal(t, 0, code, logs.String())

	assert.NoFileExists(t, filepath.Join(world, "region", "r.3.3.mca"))
	r, err := anvil.Open(filepath.Join(world, "region", "r.0.0.mca"))
	require.NoError(t, err)
	defer r.Close()
	assert.True(t, r.Header().Locations[0].Present())
	assert.False(t, r.Header().Locations[1].Present())

	keep, err := selection.LoadCSV(filepath.Join(out, "keep.csv"))
	require.NoError(t, err)
	assert.True(t, keep.IsChunkSelected(coord.Point{}))
	assert.False(t, keep.IsChunkSelected(coord.Point{X: 1}))

	runJSON, err := os.ReadFile(filepath.Join(out, "run.json"))
	require.NoError(t, err)
	assert.Contains(t, string(runJSON), `"status": "ok"`)

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "world_pruner_chunks_scanned_total 3")

	assert.FileExists(t, db)
	assert.Contains(t, logs.String(), "recording run")
}

func TestRunInvalidConfig(t *testing.T) {
	var logs bytes.Buffer
	code := run(context.Background(), []string{"-world", t.TempDir(), "-radius", "500"}, &logs)
	assert.Equal(t, 1, code)
	assert.Contains(t, logs.String(), "invalid configuration")
}

func TestRunUnknownFlag(t *testing.T) {
	assert.Equal(t, 2, run(context.Background(), []string{"-nope"}, &bytes.Buffer{}))
}

func TestParseFlagsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pruner.yaml")
	require.NoError(t, os.WriteFile(path, []byte("world: /from/file\nradius: 7\nworkers: 3\n"), 0o644))

	cfg, err := parseFlags([]string{"-config", path, "-radius", "2"})
	require.NoError(t, err)
	assert.Equal(t, "/from/file", cfg.World)
	assert.Equal(t, 2, cfg.Radius)
	assert.Equal(t, 3, cfg.Workers)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warn").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}
