// Package upload implements the single-request whole-file upload mode.
package upload

import (
	"context"
	"errors"
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
	"github.com/vitrine-app/archive-ingest/internal/multipart"
)

// ServiceConfig contains whole-file upload settings.
type ServiceConfig struct {
	// TempDir holds upload sinks until placement.
	TempDir string

	// MaxUploadSize is the total request-byte ceiling. Exceeding it aborts
	// the connection and removes the partial output.
	MaxUploadSize int64
}

// Service ingests a single multipart/form-data request: it streams the first
// file field to a temporary sink and promotes it into the collection.
type Service struct {
	collection *archive.Collection
	describer  *archive.Describer
	extractor  extract.Extractor
	locker     lock.Locker
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	config     ServiceConfig
}

// NewService creates a whole-file upload Service.
func NewService(
	collection *archive.Collection,
	describer *archive.Describer,
	extractor extract.Extractor,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config ServiceConfig,
) *Service {
	return &Service{
		collection: collection,
		describer:  describer,
		extractor:  extractor,
		locker:     locker,
		metrics:    m,
		logger:     logger.With().Str("service", "upload").Logger(),
		config:     config,
	}
}

// Upload parses the request body as multipart/form-data using the boundary
// declared in contentType, streams the file field to a temporary sink, and
// places the result in the archive collection.
//
// The body is consumed incrementally; at no point is more than one read
// increment plus a small boundary holdback held in memory.
func (s *Service) Upload(ctx context.Context, contentType string, body io.Reader) (*domain.Archive, error) {
	boundary, err := multipart.ParseBoundary(contentType)
	if err != nil {
		return nil, err
	}

	parser, err := multipart.NewParser(boundary, s.config.MaxUploadSize, s.openSink)
	if err != nil {
		return nil, err
	}

	result, err := parser.ReadFrom(body)
	if err != nil {
		status := "error"
		if errors.Is(err, domain.ErrUploadTooLarge) {
			status = "rejected"
		}
		s.metrics.RecordUpload("whole", status, 0)
		return nil, err
	}

	desc, err := s.place(ctx, result)
	if err != nil {
		_ = os.Remove(result.Path)
		status := "error"
		if errors.Is(err, domain.ErrArchiveExists) {
			status = "rejected"
		}
		s.metrics.RecordUpload("whole", status, 0)
		return nil, err
	}

	s.metrics.RecordUpload("whole", "ok", result.Size)
	s.logger.Info().
		Str("filename", result.Filename).
		Int64("size", result.Size).
		Msg("whole-file upload completed")
	return desc, nil
}

// openSink rejects names already taken, then opens a temp sink for the
// sanitized filename. Rejecting here avoids streaming a body that can only
// end in a conflict; placement re-checks under the lock.
func (s *Service) openSink(rawFilename string) (*os.File, string, error) {
	filename := archive.SanitizeFilename(rawFilename)
	if s.collection.Exists(filename) {
		return nil, "", domain.ErrArchiveExists
	}

	f, err := os.CreateTemp(s.config.TempDir, "upload-*.part")
	if err != nil {
		return nil, "", fmt.Errorf("create upload sink: %w", err)
	}
	return f, filename, nil
}

// place promotes the parsed upload into the collection and builds its
// descriptor, serialized per target filename.
func (s *Service) place(ctx context.Context, result *multipart.Result) (*domain.Archive, error) {
	placementLock := lock.NewLock(s.locker, lock.Keys.Placement(result.Filename))
	acquired, err := placementLock.AcquireWithRetry(ctx, time.Minute, 3, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire placement lock: %w", err)
	}
	if !acquired {
		return nil, domain.ErrArchiveExists
	}
	defer func() {
		if err := placementLock.Release(ctx); err != nil {
			s.logger.Error().Err(err).Str("filename", result.Filename).Msg("failed to release placement lock")
		}
	}()

	if err := s.collection.Place(result.Path, result.Filename); err != nil {
		return nil, err
	}

	if err := s.extractor.Extract(ctx, s.collection.Path(result.Filename)); err != nil {
		// Non-critical: the archive is valid without its sidecar metadata.
		s.logger.Warn().Err(err).Str("filename", result.Filename).Msg("metadata extraction failed")
	}

	return s.describer.Describe(ctx, result.Filename)
}
