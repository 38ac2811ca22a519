package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record is the persisted form of an Entry. TTLs are stored in whole
// seconds, rounded up so a live entry never persists as expired.
type Record struct {
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	CreatedAt  time.Time       `json:"created_at"`
	TTLSeconds int64           `json:"ttl_seconds"`
	LastAccess time.Time       `json:"last_access"`
}

// Store persists cache records between runs.
type Store interface {
	// Save replaces the stored records.
	Save(ctx context.Context, records []Record) error
	// Load returns all stored records. A missing store yields no records.
	Load(ctx context.Context) ([]Record, error)
	Close() error
}

// FileStore keeps records in a single JSON document.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileDocument struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

const fileVersion = 1

// Save writes the records atomically through a temporary file.
func (s *FileStore) Save(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if records == nil {
		records = []Record{}
	}

	data, err := json.MarshalIndent(fileDocument{Version: fileVersion, Records: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sleuth-cache-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}

	return os.Rename(tmp.Name(), s.path)
}

// Load reads the records. A missing file is an empty cache.
func (s *FileStore) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode cache file: %w", err)
	}
	if doc.Version != fileVersion {
		return nil, fmt.Errorf("unsupported cache file version %d", doc.Version)
	}

	return doc.Records, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
