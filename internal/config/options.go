package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter"

	"github.com/OCharnyshevich/world-pruner/pkg/world/selection"
)

// MaxRadius bounds the protective radius around retained chunks.
const MaxRadius = 128

var (
	ErrRadiusOutOfRange = errors.New("radius out of range")
	ErrNoRegionDir      = errors.New("no region directory")
)

// Options is the validated, immutable input of one prune run.
type Options struct {
	RegionDir   string
	PoiDir      string // empty when the world has none
	EntitiesDir string // empty when the world has none

	Threshold     uint64 // inhabited time in ticks
	Radius        int    // in chunks
	Whitelist     *selection.Selection
	WhitelistOnly bool
	Workers       int
}

// Options validates c and builds the run options. The whitelist is read or
// downloaded here, so a malformed list fails the run before anything is
// touched on disk.
func (c *Config) Options(ctx context.Context) (*Options, error) {
	threshold, err := ParseTicks(c.Time)
	if err != nil {
		return nil, err
	}
	if c.Radius < 0 || c.Radius > MaxRadius {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrRadiusOutOfRange, c.Radius, MaxRadius)
	}

	opts := &Options{
		Threshold:     threshold,
		Radius:        c.Radius,
		WhitelistOnly: c.WhitelistOnly,
		Workers:       max(c.Workers, 1),
	}
	if err := c.resolveDirs(opts); err != nil {
		return nil, err
	}

	if opts.Whitelist, err = LoadWhitelist(ctx, c.Whitelist); err != nil {
		return nil, err
	}
	return opts, nil
}

// resolveDirs fills the directories either from the world directory or from
// the explicit settings, which take precedence. Optional directories that do
// not exist under the world are left empty.
func (c *Config) resolveDirs(opts *Options) error {
	if c.World != "" {
		if !isDir(c.World) {
			return fmt.Errorf("world %s: not a directory", c.World)
		}
		opts.RegionDir = filepath.Join(c.World, "region")
		if p := filepath.Join(c.World, "poi"); isDir(p) {
			opts.PoiDir = p
		}
		if p := filepath.Join(c.World, "entities"); isDir(p) {
			opts.EntitiesDir = p
		}
	}

	for _, d := range []struct {
		name, value string
		dst         *string
	}{
		{"region", c.RegionDir, &opts.RegionDir},
		{"poi", c.PoiDir, &opts.PoiDir},
		{"entities", c.EntitiesDir, &opts.EntitiesDir},
	} {
		if d.value == "" {
			continue
		}
		if !isDir(d.value) {
			return fmt.Errorf("%s directory %s: not a directory", d.name, d.value)
		}
		*d.dst = d.value
	}

	if opts.RegionDir == "" || !isDir(opts.RegionDir) {
		return fmt.Errorf("%w: set a world or region directory", ErrNoRegionDir)
	}
	return nil
}

// LoadWhitelist reads a whitelist CSV. Sources that look like URLs or
// go-getter addresses ("https://...", "s3::...") are downloaded first. An
// empty source yields an empty selection.
func LoadWhitelist(ctx context.Context, src string) (*selection.Selection, error) {
	if src == "" {
		return selection.New(), nil
	}
	if !isRemote(src) {
		return selection.LoadCSV(src)
	}

	dir, err := os.MkdirTemp("", "whitelist-*")
	if err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	defer os.RemoveAll(dir)

	dst := filepath.Join(dir, "whitelist.csv")
	if err := getter.GetFile(dst, src, getter.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("download whitelist %s: %w", src, err)
	}
	return selection.LoadCSV(dst)
}

func isRemote(src string) bool {
	return strings.Contains(src, "://") || strings.Contains(src, "::")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
