// Package chunk implements the resumable chunked upload mode: session
// persistence, chunk submission, reassembly, and the stale-session sweeper.
package chunk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vitrine-app/archive-ingest/internal/domain"
)

// metaFilename is the per-session metadata record inside a session directory.
// It is the single source of truth for the session's filename and chunk count.
const metaFilename = "session.json"

// SessionStore persists chunked upload sessions.
// A session owns its directory exclusively; no two sessions share one.
type SessionStore interface {
	// Create persists the session record if the session id is new.
	// An existing record is never overwritten, so filename and totalChunks
	// are fixed by whichever chunk arrives first. Returns true when the
	// session was created by this call.
	Create(ctx context.Context, session *domain.UploadSession) (bool, error)

	// Get loads a session record, or domain.ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*domain.UploadSession, error)

	// WriteChunk streams body into the numbered chunk file, enforcing the
	// per-chunk byte ceiling. On ceiling breach the partial chunk file is
	// removed and domain.ErrChunkTooLarge returned.
	WriteChunk(ctx context.Context, sessionID string, index int, body io.Reader, limit int64) (int64, error)

	// FirstMissing returns the lowest chunk index in [0, totalChunks)
	// without a stored file, or -1 when every chunk is present.
	FirstMissing(ctx context.Context, session *domain.UploadSession) (int, error)

	// OpenChunk opens a stored chunk file for reading.
	OpenChunk(ctx context.Context, sessionID string, index int) (io.ReadCloser, error)

	// Delete removes the session directory recursively.
	Delete(ctx context.Context, sessionID string) error

	// ListExpired returns ids of sessions whose directories were last
	// modified before cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]string, error)
}

// FSStore is the filesystem SessionStore: one directory per session id,
// holding session.json plus chunk files named by index.
type FSStore struct {
	root string
}

// NewFSStore opens (creating if needed) the session root directory.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create session root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// sessionDir returns the directory owned by a session id.
func (s *FSStore) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// chunkPath returns the path of a numbered chunk file.
func (s *FSStore) chunkPath(sessionID string, index int) string {
	return filepath.Join(s.sessionDir(sessionID), strconv.Itoa(index))
}

// Create persists the session record if the session id is new.
func (s *FSStore) Create(ctx context.Context, session *domain.UploadSession) (bool, error) {
	dir := s.sessionDir(session.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return false, fmt.Errorf("encode session record: %w", err)
	}

	// O_EXCL keeps the first writer's record authoritative.
	f, err := os.OpenFile(filepath.Join(dir, metaFilename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("write session record: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("write session record: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("write session record: %w", err)
	}
	return true, nil
}

// Get loads a session record.
func (s *FSStore) Get(ctx context.Context, sessionID string) (*domain.UploadSession, error) {
	data, err := os.ReadFile(filepath.Join(s.sessionDir(sessionID), metaFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("read session record: %w", err)
	}

	var session domain.UploadSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parse session record: %w", err)
	}
	return &session, nil
}

// WriteChunk streams body into the numbered chunk file.
func (s *FSStore) WriteChunk(ctx context.Context, sessionID string, index int, body io.Reader, limit int64) (int64, error) {
	path := s.chunkPath(sessionID, index)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create chunk file: %w", err)
	}

	// Copy one byte past the ceiling so a breach is observable.
	reader := io.Reader(body)
	if limit > 0 {
		reader = io.LimitReader(body, limit+1)
	}

	n, err := io.Copy(f, reader)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write chunk file: %w", err)
	}
	if limit > 0 && n > limit {
		_ = os.Remove(path)
		return 0, domain.ErrChunkTooLarge
	}
	return n, nil
}

// FirstMissing returns the lowest missing chunk index, or -1.
func (s *FSStore) FirstMissing(ctx context.Context, session *domain.UploadSession) (int, error) {
	for i := 0; i < session.TotalChunks; i++ {
		if _, err := os.Stat(s.chunkPath(session.ID, i)); err != nil {
			if os.IsNotExist(err) {
				return i, nil
			}
			return 0, fmt.Errorf("stat chunk %d: %w", i, err)
		}
	}
	return -1, nil
}

// OpenChunk opens a stored chunk file for reading.
func (s *FSStore) OpenChunk(ctx context.Context, sessionID string, index int) (io.ReadCloser, error) {
	f, err := os.Open(s.chunkPath(sessionID, index))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.MissingChunkError{SessionID: sessionID, Index: index}
		}
		return nil, fmt.Errorf("open chunk %d: %w", index, err)
	}
	return f, nil
}

// Delete removes the session directory recursively.
func (s *FSStore) Delete(ctx context.Context, sessionID string) error {
	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("delete session dir: %w", err)
	}
	return nil
}

// ListExpired returns ids of sessions last modified before cutoff.
func (s *FSStore) ListExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list session root: %w", err)
	}

	var expired []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat session dir: %w", err)
		}
		if info.ModTime().Before(cutoff) {
			expired = append(expired, entry.Name())
		}
	}
	return expired, nil
}

// Ensure FSStore implements SessionStore.
var _ SessionStore = (*FSStore)(nil)
