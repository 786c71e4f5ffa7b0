// Package pruner computes which chunks of a world must be kept and compacts
// the region, poi and entities files down to them.
package pruner

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/OCharnyshevich/world-pruner/internal/config"
	"github.com/OCharnyshevich/world-pruner/internal/pruner/structures"
	"github.com/OCharnyshevich/world-pruner/pkg/world/anvil"
	"github.com/OCharnyshevich/world-pruner/pkg/world/chunk"
	"github.com/OCharnyshevich/world-pruner/pkg/world/coord"
	"github.com/OCharnyshevich/world-pruner/pkg/world/selection"
)

// Phase is a step of a prune run.
type Phase int

const (
	PhaseIndexing Phase = iota
	PhaseScanning
	PhaseResolving
	PhaseCompactingRegion
	PhaseCompactingPoi
	PhaseCompactingEntities
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIndexing:
		return "indexing"
	case PhaseScanning:
		return "scanning"
	case PhaseResolving:
		return "resolving"
	case PhaseCompactingRegion:
		return "compacting region"
	case PhaseCompactingPoi:
		return "compacting poi"
	case PhaseCompactingEntities:
		return "compacting entities"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Outcome is what happened to one file in a compaction pass.
type Outcome string

const (
	OutcomeCompacted Outcome = "compacted"
	OutcomeDeleted   Outcome = "deleted"
	OutcomeUntouched Outcome = "untouched"
	OutcomeFailed    Outcome = "failed"
)

// FileResult describes one file handled by a compaction pass.
type FileResult struct {
	Phase    Phase
	Path     string
	Region   coord.Point
	Outcome  Outcome
	Result   anvil.CompactResult
	Err      error
	Duration time.Duration
}

// Recorder persists per-file results, e.g. into a run report.
type Recorder interface {
	RecordFile(ctx context.Context, f FileResult) error
}

// Summary totals a prune run.
type Summary struct {
	Regions         int
	ChunksScanned   int
	ChunksRetained  int
	StructureChunks int
	ScanFailures    int

	Compacted    int
	Deleted      int
	Untouched    int
	Failed       int
	SlotsKept    int
	SlotsDropped int
	SlotsEmpty   int

	Phase Phase // last phase reached
}

// Pruner runs one prune over a world. It is not reusable.
type Pruner struct {
	opts     *config.Options
	log      *slog.Logger
	metrics  *Metrics
	recorder Recorder

	keep       *selection.Selection
	structures *structures.Index

	// mu serializes progress, error handler and recorder calls and guards
	// summary while compaction workers run.
	mu       sync.Mutex
	progress Progress
	errs     ErrorHandler
	summary  Summary
	aborted  atomic.Bool
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithMetrics records run metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pruner) { p.metrics = m }
}

// WithRecorder hands every compaction result to r.
func WithRecorder(r Recorder) Option {
	return func(p *Pruner) { p.recorder = r }
}

// New creates a Pruner for opts.
func New(opts *config.Options, log *slog.Logger, options ...Option) *Pruner {
	p := &Pruner{
		opts:       opts,
		log:        log,
		structures: structures.New(log),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Keep returns the keep selection. It is complete once Prune has left the
// resolving phase.
func (p *Pruner) Keep() *selection.Selection { return p.keep }

// Prune computes the keep selection and compacts every indexed file against
// it. A nil progress or error handler is replaced by a silent one and an
// aborting handler respectively. ErrAborted is returned when the handler
// stopped the run; ctx cancellation stops the run between files.
func (p *Pruner) Prune(ctx context.Context, progress Progress, errs ErrorHandler) (*Summary, error) {
	if progress == nil {
		progress = nopProgress{}
	}
	if errs == nil {
		errs = NewCLIErrorHandler(p.log, false)
	}
	p.progress = progress
	p.errs = errs

	err := p.run(ctx)
	p.enter(PhaseDone)
	progress.Done()

	sum := p.summary
	return &sum, err
}

func (p *Pruner) run(ctx context.Context) error {
	whitelist := p.opts.Whitelist
	if whitelist == nil {
		whitelist = selection.New()
	}
	p.keep = whitelist.Clone()

	p.enter(PhaseIndexing)
	p.progress.SetIndeterminate(true)
	p.progress.SetMessage("Indexing files")
	regions, err := indexDir(p.opts.RegionDir)
	if err != nil {
		return fmt.Errorf("index region files: %w", err)
	}
	pois, err := indexDir(p.opts.PoiDir)
	if err != nil && p.errs.HandleError(err, "failed to index poi files", "dir", p.opts.PoiDir) {
		return ErrAborted
	}
	entities, err := indexDir(p.opts.EntitiesDir)
	if err != nil && p.errs.HandleError(err, "failed to index entities files", "dir", p.opts.EntitiesDir) {
		return ErrAborted
	}
	p.summary.Regions = len(regions)
	p.log.Info("indexed files", "region", len(regions), "poi", len(pois), "entities", len(entities))

	if !p.opts.WhitelistOnly {
		if err := p.scan(ctx, regions); err != nil {
			return err
		}
		p.enter(PhaseResolving)
		p.progress.SetIndeterminate(true)
		p.progress.SetMessage("Resolving structures")
		keys := p.structures.Resolve()
		p.keep.AddAll(keys)
		p.summary.StructureChunks = len(keys)
		if p.metrics != nil {
			p.metrics.StructureChunks.Set(float64(len(keys)))
		}
	}

	for _, pass := range []struct {
		phase   Phase
		dir     string
		regions []coord.Point
	}{
		{PhaseCompactingRegion, p.opts.RegionDir, regions},
		{PhaseCompactingPoi, p.opts.PoiDir, pois},
		{PhaseCompactingEntities, p.opts.EntitiesDir, entities},
	} {
		if pass.dir == "" {
			continue
		}
		if err := p.compactDir(ctx, pass.phase, pass.dir, pass.regions); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pruner) enter(phase Phase) {
	p.summary.Phase = phase
	p.log.Debug("entering phase", "phase", phase.String())
}

// indexDir lists the region positions of the region files in dir in key
// order. An empty dir yields nothing.
func indexDir(dir string) ([]coord.Point, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var regions []coord.Point
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if pos, ok := anvil.ParseFileName(e.Name()); ok {
			regions = append(regions, pos)
		}
	}
	slices.SortFunc(regions, func(a, b coord.Point) int {
		return cmp.Compare(a.Key(), b.Key())
	})
	return regions, nil
}

// scan decodes every chunk of the region directory and fills the keep
// selection and the structure index. It runs on the calling goroutine.
func (p *Pruner) scan(ctx context.Context, regions []coord.Point) error {
	p.enter(PhaseScanning)
	p.progress.SetIndeterminate(false)
	p.progress.SetMinimum(0)
	p.progress.SetMaximum(len(regions))
	p.progress.SetValue(0)
	p.progress.SetMessage("Scanning region files")

	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(p.opts.RegionDir, anvil.FileName(region))
		start := time.Now()
		scanned, retained, err := p.scanRegion(path, region)
		if err != nil {
			p.summary.ScanFailures++
			p.countError(PhaseScanning)
			if p.errs.HandleError(err, "failed to load region file", "file", path) {
				return ErrAborted
			}
			// unreadable files are kept whole
			p.keep.AddRegion(region)
		}
		p.summary.ChunksScanned += scanned
		p.summary.ChunksRetained += retained
		if p.metrics != nil {
			p.metrics.RegionsScanned.Inc()
			p.metrics.ChunksScanned.Add(float64(scanned))
			p.metrics.ChunksRetained.Add(float64(retained))
		}
		p.log.Debug("scanned region", "file", path, "chunks", scanned, "retained", retained, "took", time.Since(start))
		p.progress.Increment(1)
	}
	return nil
}

func (p *Pruner) scanRegion(path string, region coord.Point) (scanned, retained int, err error) {
	r, err := anvil.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()

	for slot := 0; slot < anvil.Slots; slot++ {
		if !r.Header().Locations[slot].Present() {
			continue
		}
		pos := coord.FromRelativeIndex(region, slot)
		data, err := decodeSlot(r, slot)
		if err != nil {
			return scanned, retained, fmt.Errorf("chunk %s: %w", pos, err)
		}
		scanned++

		keep := data.Retained(p.opts.Threshold)
		p.structures.OnChunkScanned(pos, data, keep)
		if keep {
			retained++
			p.keep.AddChunk(pos)
			p.applyRadius(pos)
		}
	}
	return scanned, retained, nil
}

func decodeSlot(r *anvil.Region, slot int) (*chunk.Data, error) {
	rc, err := r.ChunkReader(slot)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return chunk.Decode(rc)
}

// applyRadius keeps every chunk within the configured Euclidean radius.
func (p *Pruner) applyRadius(center coord.Point) {
	r := int32(p.opts.Radius)
	if r <= 0 {
		return
	}
	rr := r * r
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			if dx*dx+dz*dz <= rr {
				p.keep.AddChunk(center.Add(dx, dz))
			}
		}
	}
}

// compactDir compacts the files of one directory, up to Workers at a time.
// Regions selected as a whole are left alone.
func (p *Pruner) compactDir(ctx context.Context, phase Phase, dir string, regions []coord.Point) error {
	p.mu.Lock()
	p.enter(phase)
	p.progress.SetMinimum(0)
	p.progress.SetMaximum(len(regions))
	p.progress.SetValue(0)
	p.progress.SetIndeterminate(false)
	p.progress.SetMessage("Compacting files in " + filepath.Base(dir))
	p.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(max(p.opts.Workers, 1))

	for _, region := range regions {
		if p.aborted.Load() || ctx.Err() != nil {
			break
		}
		path := filepath.Join(dir, anvil.FileName(region))
		if p.keep.IsRegionSelected(region) {
			p.finish(ctx, FileResult{Phase: phase, Path: path, Region: region, Outcome: OutcomeUntouched})
			continue
		}
		g.Go(func() error {
			if p.aborted.Load() {
				return nil
			}
			start := time.Now()
			res, err := anvil.Compact(path, p.keep.SelectedChunks(region))
			f := FileResult{Phase: phase, Path: path, Region: region, Result: res, Err: err, Duration: time.Since(start)}
			switch {
			case err != nil:
				f.Outcome = OutcomeFailed
			case res.Deleted:
				f.Outcome = OutcomeDeleted
			default:
				f.Outcome = OutcomeCompacted
			}
			p.finish(ctx, f)
			return nil
		})
	}
	_ = g.Wait()

	if p.aborted.Load() {
		return ErrAborted
	}
	return ctx.Err()
}

// finish accounts for one file. It is safe for concurrent use.
func (p *Pruner) finish(ctx context.Context, f FileResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dir := filepath.Base(filepath.Dir(f.Path))
	switch f.Outcome {
	case OutcomeFailed:
		p.summary.Failed++
		p.countError(f.Phase)
		if p.errs.HandleError(f.Err, "failed to compact file", "file", f.Path) {
			p.aborted.Store(true)
		}
	case OutcomeUntouched:
		p.summary.Untouched++
	case OutcomeDeleted:
		p.summary.Deleted++
		p.log.Info("deleted file", "file", f.Path, "dropped", f.Result.Dropped)
	case OutcomeCompacted:
		p.summary.Compacted++
		p.log.Debug("compacted file", "file", f.Path, "kept", f.Result.Kept, "dropped", f.Result.Dropped, "took", f.Duration)
	}
	p.summary.SlotsKept += f.Result.Kept
	p.summary.SlotsDropped += f.Result.Dropped
	p.summary.SlotsEmpty += f.Result.Empty

	if p.metrics != nil {
		p.metrics.Files.WithLabelValues(dir, string(f.Outcome)).Inc()
		p.metrics.Slots.WithLabelValues(dir, "kept").Add(float64(f.Result.Kept))
		p.metrics.Slots.WithLabelValues(dir, "dropped").Add(float64(f.Result.Dropped))
		p.metrics.Slots.WithLabelValues(dir, "empty").Add(float64(f.Result.Empty))
		if f.Outcome != OutcomeUntouched {
			p.metrics.FileDuration.WithLabelValues(dir).Observe(f.Duration.Seconds())
		}
	}
	if p.recorder != nil {
		if err := p.recorder.RecordFile(ctx, f); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Warn("failed to record file result", "file", f.Path, "error", err)
		}
	}
	p.progress.Increment(1)
}

func (p *Pruner) countError(phase Phase) {
	if p.metrics != nil {
		p.metrics.Errors.WithLabelValues(phase.String()).Inc()
	}
}
