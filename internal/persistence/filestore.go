// Package persistence implements the accuracy store boundary. The on-disk
// schema is versioned and independent of the in-memory representation so it
// can evolve without touching pipeline logic.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marketvet/marketvet/internal/accuracy"
)

const fileSchemaVersion = 1

type fileSchema struct {
	Version  int                `json:"version"`
	Records  []accuracy.Record  `json:"records"`
	Outcomes []accuracy.Outcome `json:"outcomes"`
}

// FileStore keeps both tables in one JSON file, rewritten atomically
// (temp file + rename) on every save. Single-writer discipline.
type FileStore struct {
	path string
}

// NewFileStore creates a store at path; the file may not exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the full state. A missing file is an empty state, not an error.
func (s *FileStore) Load() ([]accuracy.Record, []accuracy.Outcome, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var doc fileSchema
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if doc.Version != fileSchemaVersion {
		return nil, nil, fmt.Errorf("unsupported accuracy file version %d", doc.Version)
	}
	return doc.Records, doc.Outcomes, nil
}

// Save rewrites the full state atomically.
func (s *FileStore) Save(records []accuracy.Record, outcomes []accuracy.Outcome) error {
	doc := fileSchema{Version: fileSchemaVersion, Records: records, Outcomes: outcomes}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode accuracy state: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
