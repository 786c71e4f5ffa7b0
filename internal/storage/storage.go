package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/OCharnyshevich/world-pruner/pkg/world/selection"
)

// Storage handles the files a run leaves behind: its summary and the keep
// selection it computed.
type Storage struct {
	dir string
	log *slog.Logger
}

// New creates a new Storage rooted at dir, creating it as needed.
func New(dir string, log *slog.Logger) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	return &Storage{dir: dir, log: log}, nil
}

// LoadRun reads run.json. It returns nil if no run was saved yet.
func (s *Storage) LoadRun() (*RunData, error) {
	path := filepath.Join(s.dir, "run.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read run: %w", err)
	}

	var rd RunData
	if err := json.Unmarshal(data, &rd); err != nil {
		return nil, fmt.Errorf("parse run: %w", err)
	}
	return &rd, nil
}

// SaveRun writes rd to run.json atomically.
func (s *Storage) SaveRun(rd *RunData) error {
	data, err := json.MarshalIndent(rd, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(s.dir, "run.json")
	if err := s.atomicWrite(path, data); err != nil {
		return err
	}
	s.log.Info("saved run summary", "path", path)
	return nil
}

// SaveKeep writes sel to keep.csv atomically, in the whitelist format, so
// it can be fed back as a whitelist.
func (s *Storage) SaveKeep(sel *selection.Selection) error {
	var buf bytes.Buffer
	if err := sel.WriteCSV(&buf); err != nil {
		return fmt.Errorf("encode keep selection: %w", err)
	}
	path := filepath.Join(s.dir, "keep.csv")
	if err := s.atomicWrite(path, buf.Bytes()); err != nil {
		return err
	}
	s.log.Info("saved keep selection", "path", path, "regions", sel.Len())
	return nil
}

// KeepPath returns the path SaveKeep writes to.
func (s *Storage) KeepPath() string {
	return filepath.Join(s.dir, "keep.csv")
}

// atomicWrite writes data using a temp file + rename.
func (s *Storage) atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
