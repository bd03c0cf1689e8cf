// Package domain contains the core business entities for the archive
// ingestion service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxChunksPerSession bounds the declared chunk count of a session.
// Caps the size of a session directory regardless of client behavior.
const MaxChunksPerSession = 200

// UploadSession represents an in-progress chunked upload.
// The on-disk metadata record written when the first chunk arrives is the
// single source of truth for Filename and TotalChunks; later chunks never
// carry that information.
type UploadSession struct {
	// ID is the client-supplied version-4 UUID identifying the session.
	ID string `json:"id"`

	// Filename is the sanitized target filename for the assembled archive.
	Filename string `json:"filename"`

	// TotalChunks is the declared number of chunks, in [1, MaxChunksPerSession].
	TotalChunks int `json:"total_chunks"`

	// CreatedAt is when the first chunk for this session arrived.
	CreatedAt time.Time `json:"created_at"`
}

// NewUploadSession creates a session record for a first-seen session id.
func NewUploadSession(id, filename string, totalChunks int) *UploadSession {
	return &UploadSession{
		ID:          id,
		Filename:    filename,
		TotalChunks: totalChunks,
		CreatedAt:   time.Now().UTC(),
	}
}

// ValidateSessionID checks that id is a well-formed version-4 UUID.
func ValidateSessionID(id string) error {
	u, err := uuid.Parse(id)
	if err != nil {
		return ErrInvalidSessionID
	}
	if u.Version() != 4 {
		return ErrInvalidSessionID
	}
	return nil
}

// ValidateChunkCoordinates checks chunk index and total count bounds.
func ValidateChunkCoordinates(chunkIndex, totalChunks int) error {
	if totalChunks < 1 || totalChunks > MaxChunksPerSession {
		return ErrInvalidTotalChunks
	}
	if chunkIndex < 0 || chunkIndex >= totalChunks {
		return ErrInvalidChunkIndex
	}
	return nil
}
