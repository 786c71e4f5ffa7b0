// Package report keeps a SQLite record of prune runs and of every file they
// compacted, deleted or failed on.
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/OCharnyshevich/world-pruner/internal/config"
	"github.com/OCharnyshevich/world-pruner/internal/pruner"
)

// Store writes run reports. It implements pruner.Recorder once a run was
// started with BeginRun.
type Store struct {
	db    *sql.DB
	runID string
}

// File is a row of the files table.
type File struct {
	Phase   string
	Path    string
	RegionX int32
	RegionZ int32
	Outcome string
	Kept    int
	Dropped int
	Empty   int
	Error   string
}

// Open opens or creates the report database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("empty report path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("report pragma %q: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL,
			region_dir TEXT NOT NULL,
			threshold INTEGER NOT NULL,
			radius INTEGER NOT NULL,
			whitelist_only INTEGER NOT NULL,
			compacted INTEGER NOT NULL DEFAULT 0,
			deleted INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			slots_kept INTEGER NOT NULL DEFAULT 0,
			slots_dropped INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS files (
			run_id TEXT NOT NULL REFERENCES runs(id),
			phase TEXT NOT NULL,
			path TEXT NOT NULL,
			region_x INTEGER NOT NULL,
			region_z INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			kept INTEGER NOT NULL,
			dropped INTEGER NOT NULL,
			empty INTEGER NOT NULL,
			error TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS files_run ON files(run_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("report schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunID returns the id of the current run, empty before BeginRun.
func (s *Store) RunID() string { return s.runID }

// BeginRun records the start of a run and makes it current.
func (s *Store) BeginRun(ctx context.Context, opts *config.Options) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status, region_dir, threshold, radius, whitelist_only)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano), "running",
		opts.RegionDir, int64(opts.Threshold), opts.Radius, opts.WhitelistOnly)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	s.runID = id
	return id, nil
}

// RecordFile stores one compaction result of the current run.
func (s *Store) RecordFile(ctx context.Context, f pruner.FileResult) error {
	if s.runID == "" {
		return errors.New("no run started")
	}
	var msg string
	if f.Err != nil {
		msg = f.Err.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (run_id, phase, path, region_x, region_z, outcome, kept, dropped, empty, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, f.Phase.String(), f.Path, f.Region.X, f.Region.Z, string(f.Outcome),
		f.Result.Kept, f.Result.Dropped, f.Result.Empty, msg, f.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// FinishRun stores the totals of the current run. runErr decides the status.
func (s *Store) FinishRun(ctx context.Context, sum *pruner.Summary, runErr error) error {
	status := pruner.RunStatus(runErr)
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, compacted = ?, deleted = ?, failed = ?,
		 slots_kept = ?, slots_dropped = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), status,
		sum.Compacted, sum.Deleted, sum.Failed, sum.SlotsKept, sum.SlotsDropped, s.runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// Status returns the status of run id.
func (s *Store) Status(ctx context.Context, id string) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("query run %s: %w", id, err)
	}
	return status, nil
}

// Files returns the file rows of run id in insertion order.
func (s *Store) Files(ctx context.Context, id string) ([]File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phase, path, region_x, region_z, outcome, kept, dropped, empty, error
		 FROM files WHERE run_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.Phase, &f.Path, &f.RegionX, &f.RegionZ, &f.Outcome, &f.Kept, &f.Dropped, &f.Empty, &f.Error); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
