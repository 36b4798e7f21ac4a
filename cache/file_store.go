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

// FileStore keeps one JSON document per adapter in dir.
type FileStore struct {
	name string
	path string
}

type fileDocument struct {
	Version int              `json:"version"`
	Adapter string           `json:"adapter"`
	SavedAt time.Time        `json:"saved_at"`
	Entries map[string]Entry `json:"entries"`
}

// NewFileStore returns the store for adapter name, backed by
// <dir>/<name>_cache.json.
func NewFileStore(dir, name string) *FileStore {
	return &FileStore{name: name, path: filepath.Join(dir, name+"_cache.json")}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(_ context.Context) (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.path, err)
	}
	if doc.Version != SchemaVersion {
		return nil, fmt.Errorf("%s has version %d: %w", s.path, doc.Version, ErrSchemaVersion)
	}
	if doc.Entries == nil {
		doc.Entries = map[string]Entry{}
	}
	return doc.Entries, nil
}

// Save replaces the file atomically.
func (s *FileStore) Save(_ context.Context, entries map[string]Entry) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	data, err := json.Marshal(fileDocument{
		Version: SchemaVersion,
		Adapter: s.name,
		SavedAt: time.Now(),
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}

	tmp, err := os.CreateTemp(dir, s.name+"_cache-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
