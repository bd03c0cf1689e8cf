package ident

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vitrine-app/archive-ingest/internal/domain"
)

// FileIndex persists the path-to-id mapping in a single JSON file, rewritten
// wholesale on every mutation. A mutex serializes the read-modify-write
// cycle so concurrent mutations within the process cannot lose an update.
// The rewrite goes through a temp file plus rename, so a crash mid-write
// never truncates the mapping.
type FileIndex struct {
	path   string
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]string
}

// NewFileIndex opens (creating if needed) a file-backed index at path.
func NewFileIndex(path string, logger zerolog.Logger) (*FileIndex, error) {
	idx := &FileIndex{
		path:    path,
		logger:  logger.With().Str("component", "ident-index").Logger(),
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read identifier index: %w", err)
		}
		return idx, nil
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &idx.entries); err != nil {
			return nil, fmt.Errorf("parse identifier index: %w", err)
		}
	}
	return idx, nil
}

// Lookup returns the id for a logical path.
func (f *FileIndex) Lookup(ctx context.Context, logicalPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.entries[logicalPath]
	if !ok {
		return "", domain.ErrMappingNotFound
	}
	return id, nil
}

// Assign returns the id for a logical path, minting one on first use.
// The fresh id is persisted before it is returned.
func (f *FileIndex) Assign(ctx context.Context, logicalPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.entries[logicalPath]; ok {
		return id, nil
	}

	id, err := mintID()
	if err != nil {
		return "", err
	}
	f.entries[logicalPath] = id
	if err := f.persistLocked(); err != nil {
		delete(f.entries, logicalPath)
		return "", err
	}

	f.logger.Debug().Str("path", logicalPath).Str("id", id).Msg("minted archive id")
	return id, nil
}

// Migrate moves an entry from oldPath to newPath.
func (f *FileIndex) Migrate(ctx context.Context, oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.entries[oldPath]
	if !ok {
		return domain.ErrMappingNotFound
	}
	delete(f.entries, oldPath)
	f.entries[newPath] = id
	if err := f.persistLocked(); err != nil {
		f.entries[oldPath] = id
		delete(f.entries, newPath)
		return err
	}
	return nil
}

// Delete removes the entry for a logical path.
func (f *FileIndex) Delete(ctx context.Context, logicalPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.entries[logicalPath]
	if !ok {
		return nil
	}
	delete(f.entries, logicalPath)
	if err := f.persistLocked(); err != nil {
		f.entries[logicalPath] = id
		return err
	}
	return nil
}

// Close is a no-op for the file index.
func (f *FileIndex) Close() error {
	return nil
}

// persistLocked rewrites the whole mapping file. Caller holds f.mu.
func (f *FileIndex) persistLocked() error {
	data, err := json.MarshalIndent(f.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode identifier index: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ident-*")
	if err != nil {
		return fmt.Errorf("write identifier index: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write identifier index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write identifier index: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace identifier index: %w", err)
	}
	return nil
}

// Ensure FileIndex implements Index.
var _ Index = (*FileIndex)(nil)
