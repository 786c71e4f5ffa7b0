package storage

import (
	"time"

	"github.com/OCharnyshevich/world-pruner/internal/pruner"
)

// RunData is the serializable summary of a prune run.
type RunData struct {
	RunID      string    `json:"run_id,omitempty"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Phase      string    `json:"phase"`

	Scan    ScanData    `json:"scan"`
	Compact CompactData `json:"compact"`
}

// ScanData holds the scan totals.
type ScanData struct {
	Regions         int `json:"regions"`
	ChunksScanned   int `json:"chunks_scanned"`
	ChunksRetained  int `json:"chunks_retained"`
	StructureChunks int `json:"structure_chunks"`
	Failures        int `json:"failures"`
}

// CompactData holds the compaction totals.
type CompactData struct {
	Compacted    int `json:"compacted"`
	Deleted      int `json:"deleted"`
	Untouched    int `json:"untouched"`
	Failed       int `json:"failed"`
	SlotsKept    int `json:"slots_kept"`
	SlotsDropped int `json:"slots_dropped"`
	SlotsEmpty   int `json:"slots_empty"`
}

// RunDataFromSummary converts the result of a run into RunData.
func RunDataFromSummary(sum *pruner.Summary, runErr error, started, finished time.Time) *RunData {
	return &RunData{
		Status:     pruner.RunStatus(runErr),
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Phase:      sum.Phase.String(),
		Scan: ScanData{
			Regions:         sum.Regions,
			ChunksScanned:   sum.ChunksScanned,
			ChunksRetained:  sum.ChunksRetained,
			StructureChunks: sum.StructureChunks,
			Failures:        sum.ScanFailures,
		},
		Compact: CompactData{
			Compacted:    sum.Compacted,
			Deleted:      sum.Deleted,
			Untouched:    sum.Untouched,
			Failed:       sum.Failed,
			SlotsKept:    sum.SlotsKept,
			SlotsDropped: sum.SlotsDropped,
			SlotsEmpty:   sum.SlotsEmpty,
		},
	}
}
