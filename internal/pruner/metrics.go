package pruner

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of a prune run.
type Metrics struct {
	RegionsScanned  prometheus.Counter
	ChunksScanned   prometheus.Counter
	ChunksRetained  prometheus.Counter
	StructureChunks prometheus.Gauge
	Files           *prometheus.CounterVec
	Slots           *prometheus.CounterVec
	Errors          *prometheus.CounterVec
	FileDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	regionsScanned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "world_pruner_regions_scanned_total",
		Help: "Region files scanned for activity and structures",
	})

	chunksScanned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "world_pruner_chunks_scanned_total",
		Help: "Chunks decoded during the scan",
	})

	chunksRetained := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "world_pruner_chunks_retained_total",
		Help: "Chunks whose inhabited time exceeded the threshold",
	})

	structureChunks := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "world_pruner_structure_chunks",
		Help: "Chunks kept because a retained structure covers them",
	})

	files := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "world_pruner_files_total",
		Help: "Files handled in the compaction passes by outcome",
	}, []string{"dir", "outcome"})

	slots := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "world_pruner_slots_total",
		Help: "Region slots seen while compacting by state",
	}, []string{"dir", "state"})

	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "world_pruner_errors_total",
		Help: "Per-file failures by phase",
	}, []string{"phase"})

	fileDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "world_pruner_compact_duration_seconds",
		Help:    "Time spent compacting one file",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"dir"})

	reg.MustRegister(regionsScanned, chunksScanned, chunksRetained, structureChunks, files, slots, errs, fileDuration)

	return &Metrics{
		RegionsScanned:  regionsScanned,
		ChunksScanned:   chunksScanned,
		ChunksRetained:  chunksRetained,
		StructureChunks: structureChunks,
		Files:           files,
		Slots:           slots,
		Errors:          errs,
		FileDuration:    fileDuration,
	}
}
