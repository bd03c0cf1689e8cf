package chunk

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitrine-app/archive-ingest/internal/archive"
	"github.com/vitrine-app/archive-ingest/internal/domain"
	"github.com/vitrine-app/archive-ingest/internal/extract"
	"github.com/vitrine-app/archive-ingest/internal/lock"
	"github.com/vitrine-app/archive-ingest/internal/metrics"
)

// ServiceConfig contains chunked upload settings.
type ServiceConfig struct {
	// TempDir holds assembly files until placement.
	TempDir string

	// MaxChunkSize is the per-chunk byte ceiling. Deliberately larger than
	// the whole-file ceiling: chunked mode exists for very large files.
	MaxChunkSize int64
}

// Service accepts a file as an ordered sequence of independently uploaded
// byte ranges and reconstructs it exactly once all ranges have arrived.
type Service struct {
	store      SessionStore
	collection *archive.Collection
	describer  *archive.Describer
	extractor  extract.Extractor
	locker     lock.Locker
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	config     ServiceConfig
}

// NewService creates a chunked upload Service.
func NewService(
	store SessionStore,
	collection *archive.Collection,
	describer *archive.Describer,
	extractor extract.Extractor,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config ServiceConfig,
) *Service {
	return &Service{
		store:      store,
		collection: collection,
		describer:  describer,
		extractor:  extractor,
		locker:     locker,
		metrics:    m,
		logger:     logger.With().Str("service", "chunk").Logger(),
		config:     config,
	}
}

// SubmitChunkInput identifies one chunk of a session.
type SubmitChunkInput struct {
	SessionID   string
	ChunkIndex  int
	TotalChunks int
	Filename    string
	Body        io.Reader
}

// SubmitChunkOutput confirms a stored chunk.
type SubmitChunkOutput struct {
	ChunkIndex int
	Size       int64
}

// SubmitChunk validates the chunk coordinates, creates the session on first
// contact, and streams the chunk body to its numbered file.
func (s *Service) SubmitChunk(ctx context.Context, input SubmitChunkInput) (*SubmitChunkOutput, error) {
	if err := domain.ValidateSessionID(input.SessionID); err != nil {
		return nil, err
	}
	if err := domain.ValidateChunkCoordinates(input.ChunkIndex, input.TotalChunks); err != nil {
		return nil, err
	}
	if input.Filename == "" {
		return nil, domain.ErrInvalidFilename
	}
	filename := archive.SanitizeFilename(input.Filename)

	// First chunk seen for this id fixes filename and totalChunks; later
	// submissions cannot rewrite the record.
	created, err := s.store.Create(ctx, domain.NewUploadSession(input.SessionID, filename, input.TotalChunks))
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info().
			Str("session_id", input.SessionID).
			Str("filename", filename).
			Int("total_chunks", input.TotalChunks).
			Msg("upload session created")
	}

	size, err := s.store.WriteChunk(ctx, input.SessionID, input.ChunkIndex, input.Body, s.config.MaxChunkSize)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordChunk()
	s.logger.Debug().
		Str("session_id", input.SessionID).
		Int("chunk_index", input.ChunkIndex).
		Int64("size", size).
		Msg("chunk stored")

	return &SubmitChunkOutput{ChunkIndex: input.ChunkIndex, Size: size}, nil
}

// Complete verifies every declared chunk is present, concatenates them in
// strict index order into a temporary file, deletes the session, and moves
// the assembled file into the archive collection.
//
// Failed completions leave the collection untouched; a missing-chunk failure
// leaves the session intact so the client can resubmit the gap.
func (s *Service) Complete(ctx context.Context, sessionID string) (*domain.Archive, error) {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return nil, domain.ErrSessionNotFound
	}

	// Per-session lock: the assemble/delete/place sequence runs at most
	// once per session. A loser that acquires after the winner finds the
	// session already deleted.
	completeLock := lock.NewLock(s.locker, lock.Keys.SessionComplete(sessionID))
	acquired, err := completeLock.AcquireWithRetry(ctx, time.Minute, 3, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire completion lock: %w", err)
	}
	if !acquired {
		return nil, domain.ErrArchiveExists
	}
	defer func() {
		if err := completeLock.Release(ctx); err != nil {
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to release completion lock")
		}
	}()

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Per-filename lock narrows the check-then-rename window against a
	// concurrent placement targeting the same name.
	placementLock := lock.NewLock(s.locker, lock.Keys.Placement(session.Filename))
	acquired, err = placementLock.AcquireWithRetry(ctx, time.Minute, 3, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire placement lock: %w", err)
	}
	if !acquired {
		return nil, domain.ErrArchiveExists
	}
	defer func() {
		if err := placementLock.Release(ctx); err != nil {
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to release placement lock")
		}
	}()

	missing, err := s.store.FirstMissing(ctx, session)
	if err != nil {
		return nil, err
	}
	if missing >= 0 {
		return nil, &domain.MissingChunkError{SessionID: sessionID, Index: missing}
	}

	if s.collection.Exists(session.Filename) {
		return nil, domain.ErrArchiveExists
	}

	tempPath, size, err := s.assemble(ctx, session)
	if err != nil {
		s.metrics.RecordUpload("chunked", "error", 0)
		return nil, err
	}

	if err := s.store.Delete(ctx, sessionID); err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete completed session")
	}

	if err := s.collection.Place(tempPath, session.Filename); err != nil {
		_ = os.Remove(tempPath)
		s.metrics.RecordUpload("chunked", "rejected", 0)
		return nil, err
	}

	if err := s.extractor.Extract(ctx, s.collection.Path(session.Filename)); err != nil {
		// Non-critical: the archive is valid without its sidecar metadata.
		s.logger.Warn().Err(err).Str("filename", session.Filename).Msg("metadata extraction failed")
	}

	desc, err := s.describer.Describe(ctx, session.Filename)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordUpload("chunked", "ok", size)
	s.logger.Info().
		Str("session_id", sessionID).
		Str("filename", session.Filename).
		Int64("size", size).
		Int("chunks", session.TotalChunks).
		Msg("chunked upload completed")

	return desc, nil
}

// assemble concatenates the session's chunk files in index order into a
// fresh temp file, streaming one chunk at a time.
func (s *Service) assemble(ctx context.Context, session *domain.UploadSession) (string, int64, error) {
	out, err := os.CreateTemp(s.config.TempDir, "assemble-*.part")
	if err != nil {
		return "", 0, fmt.Errorf("create assembly file: %w", err)
	}
	tempPath := out.Name()

	cleanup := func() {
		_ = out.Close()
		_ = os.Remove(tempPath)
	}

	var total int64
	for i := 0; i < session.TotalChunks; i++ {
		if err := ctx.Err(); err != nil {
			cleanup()
			return "", 0, err
		}

		in, err := s.store.OpenChunk(ctx, session.ID, i)
		if err != nil {
			cleanup()
			return "", 0, err
		}
		n, err := io.Copy(out, in)
		_ = in.Close()
		if err != nil {
			cleanup()
			return "", 0, fmt.Errorf("copy chunk %d: %w", i, err)
		}
		total += n
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("close assembly file: %w", err)
	}
	return tempPath, total, nil
}
