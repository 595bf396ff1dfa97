package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Lllllllleong/documentnarrator/internal/models"
)

// FileStore keeps every record in a single JSON array file. Appends are
// serialized by a mutex and written through a temp file and rename, so a
// reader never sees a half-written file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on the
// first append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns all records. A missing file is an empty store; an unreadable or
// corrupt file is logged and treated as empty so traffic keeps flowing.
func (s *FileStore) Load(ctx context.Context) ([]models.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.read()
	if err != nil {
		slog.Warn("Record file unreadable; treating store as empty.", "path", s.path, "error", err)
		return nil, nil
	}
	return records, nil
}

// Find returns the record for sourceKey, or nil if none exists.
func (s *FileStore) Find(ctx context.Context, sourceKey string) (*models.ProcessingRecord, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return findRecord(records, sourceKey), nil
}

// Append adds rec unless its source key is already present.
func (s *FileStore) Append(ctx context.Context, rec models.ProcessingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		// Keep the unreadable file for inspection instead of overwriting it.
		quarantined := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		if renameErr := os.Rename(s.path, quarantined); renameErr != nil {
			return fmt.Errorf("record file unreadable (%v) and could not be moved aside: %w", err, renameErr)
		}
		slog.Warn("Moved unreadable record file aside.", "path", s.path, "movedTo", quarantined, "error", err)
		records = nil
	}

	if findRecord(records, rec.SourceKey) != nil {
		return ErrRecordExists
	}
	records = append(records, rec)
	return s.write(records)
}

func (s *FileStore) read() ([]models.ProcessingRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading record file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []models.ProcessingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshalling record file: %w", err)
	}
	return records, nil
}

func (s *FileStore) write(records []models.ProcessingRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling records: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating record directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing record temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("persisting record file: %w", err)
	}
	return nil
}

func findRecord(records []models.ProcessingRecord, sourceKey string) *models.ProcessingRecord {
	for i := range records {
		if records[i].SourceKey == sourceKey {
			rec := records[i]
			return &rec
		}
	}
	return nil
}
