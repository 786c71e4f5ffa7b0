package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/OCharnyshevich/world-pruner/internal/config"
	"github.com/OCharnyshevich/world-pruner/internal/pruner"
	"github.com/OCharnyshevich/world-pruner/internal/pruner/report"
	"github.com/OCharnyshevich/world-pruner/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	cancel()
	os.Exit(code)
}

// run parses args, prunes the world and returns the process exit code.
func run(ctx context.Context, args []string, stdout io.Writer) int {
	cfg, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	log := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	opts, err := cfg.Options(ctx)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		return 1
	}

	var prunerOpts []pruner.Option

	reg := prometheus.NewRegistry()
	if cfg.MetricsFile != "" {
		prunerOpts = append(prunerOpts, pruner.WithMetrics(pruner.NewMetrics(reg)))
	}

	var store *report.Store
	if cfg.Report != "" {
		store, err = report.Open(cfg.Report)
		if err != nil {
			log.Error("open report", "error", err)
			return 1
		}
		defer store.Close()
		if _, err := store.BeginRun(ctx, opts); err != nil {
			log.Error("begin report run", "error", err)
			return 1
		}
		prunerOpts = append(prunerOpts, pruner.WithRecorder(store))
		log.Info("recording run", "report", cfg.Report, "run", store.RunID())
	}

	log.Info("pruning world",
		"region", opts.RegionDir,
		"poi", opts.PoiDir,
		"entities", opts.EntitiesDir,
		"threshold_ticks", opts.Threshold,
		"radius", opts.Radius,
		"whitelist_only", opts.WhitelistOnly,
		"workers", opts.Workers,
	)

	started := time.Now()
	errs := pruner.NewCLIErrorHandler(log, cfg.ContinueOnError)
	p := pruner.New(opts, log, prunerOpts...)
	sum, runErr := p.Prune(ctx, pruner.NewLogProgress(log, 10), errs)
	finished := time.Now()

	if store != nil {
		if err := store.FinishRun(context.WithoutCancel(ctx), sum, runErr); err != nil {
			log.Warn("finish report run", "error", err)
		}
	}
	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
			log.Warn("write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}
	if cfg.Output != "" {
		saveOutput(log, cfg.Output, p, sum, runErr, store, started, finished)
	}

	log.Info("prune finished",
		"status", pruner.RunStatus(runErr),
		"phase", sum.Phase,
		"chunks_scanned", sum.ChunksScanned,
		"chunks_retained", sum.ChunksRetained,
		"compacted", sum.Compacted,
		"deleted", sum.Deleted,
		"untouched", sum.Untouched,
		"failed", sum.Failed,
		"failures", errs.Count(),
		"elapsed", finished.Sub(started).Round(time.Millisecond),
	)

	if runErr != nil {
		if !errors.Is(runErr, pruner.ErrAborted) {
			log.Error("prune error", "error", runErr)
		}
		return 1
	}
	if !errs.Successful() {
		return 1
	}
	return 0
}

func saveOutput(log *slog.Logger, dir string, p *pruner.Pruner, sum *pruner.Summary, runErr error, store *report.Store, started, finished time.Time) {
	st, err := storage.New(dir, log)
	if err != nil {
		log.Warn("open output", "error", err)
		return
	}
	rd := storage.RunDataFromSummary(sum, runErr, started, finished)
	if store != nil {
		rd.RunID = store.RunID()
	}
	if err := st.SaveRun(rd); err != nil {
		log.Warn("save run summary", "error", err)
	}
	if keep := p.Keep(); keep != nil {
		if err := st.SaveKeep(keep); err != nil {
			log.Warn("save keep selection", "error", err)
		}
	}
}

// parseFlags builds the Config from args. Values from -config apply only to
// settings not given on the command line.
func parseFlags(args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	fs := flag.NewFlagSet("pruner", flag.ContinueOnError)

	configPath := fs.String("config", "", "YAML config file")
	fs.StringVar(&cfg.World, "world", cfg.World, "world directory containing region, poi and entities")
	fs.StringVar(&cfg.RegionDir, "region", cfg.RegionDir, "region directory (overrides -world)")
	fs.StringVar(&cfg.PoiDir, "poi", cfg.PoiDir, "poi directory (overrides -world)")
	fs.StringVar(&cfg.EntitiesDir, "entities", cfg.EntitiesDir, "entities directory (overrides -world)")
	fs.StringVar(&cfg.Time, "time", cfg.Time, `inhabited time threshold, e.g. "1h 30min"`)
	fs.IntVar(&cfg.Radius, "radius", cfg.Radius, "chunks kept around each retained chunk")
	fs.StringVar(&cfg.Whitelist, "whitelist", cfg.Whitelist, "CSV selection of chunks to always keep (path or URL)")
	fs.BoolVar(&cfg.WhitelistOnly, "whitelist-only", cfg.WhitelistOnly, "keep only whitelisted chunks, skip scanning")
	fs.BoolVar(&cfg.ContinueOnError, "continue-on-error", cfg.ContinueOnError, "log per-file failures and continue")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "parallel compaction workers")
	fs.StringVar(&cfg.Report, "report", cfg.Report, "SQLite database recording the run")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "write Prometheus metrics to this textfile")
	fs.StringVar(&cfg.Output, "output", cfg.Output, "directory for run.json and keep.csv")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if *configPath != "" {
		explicit := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

		fromFile, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		config.Merge(cfg, fromFile, explicit)
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
