// Package domain contains the core business entities for the archive
// ingestion service.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (filesystem, network, etc.).

var (
	// ===========================================
	// Multipart Parse Errors
	// ===========================================

	// ErrMissingBoundary indicates the Content-Type carried no boundary parameter.
	ErrMissingBoundary = errors.New("multipart boundary not declared")

	// ErrMalformedBody indicates the multipart body structure is invalid.
	ErrMalformedBody = errors.New("malformed multipart body")

	// ErrHeadersTooLarge indicates a part's header block exceeded the cap.
	ErrHeadersTooLarge = errors.New("part headers exceed size cap")

	// ErrNoFileField indicates the request contained no file-bearing field.
	ErrNoFileField = errors.New("no file field in request")

	// ErrIncompleteBody indicates the stream ended before a part body started.
	ErrIncompleteBody = errors.New("incomplete multipart body")

	// ErrUploadTooLarge indicates the upload exceeded the configured ceiling.
	// Mapped to 413, distinct from every other parse failure.
	ErrUploadTooLarge = errors.New("upload exceeds size limit")

	// ===========================================
	// Chunked Session Errors
	// ===========================================

	// ErrSessionNotFound indicates the session is unknown or already swept.
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrInvalidSessionID indicates the session id is not a v4 UUID.
	ErrInvalidSessionID = errors.New("session id must be a version-4 UUID")

	// ErrInvalidChunkIndex indicates chunkIndex is outside [0, totalChunks).
	ErrInvalidChunkIndex = errors.New("chunk index out of range")

	// ErrInvalidTotalChunks indicates totalChunks is outside [1, 200].
	ErrInvalidTotalChunks = errors.New("total chunk count out of range")

	// ErrInvalidFilename indicates the filename does not sanitize to a usable name.
	ErrInvalidFilename = errors.New("invalid target filename")

	// ErrChunkTooLarge indicates a single chunk exceeded the per-chunk ceiling.
	ErrChunkTooLarge = errors.New("chunk exceeds size limit")

	// ===========================================
	// Placement Errors
	// ===========================================

	// ErrArchiveExists indicates the target filename is already taken.
	ErrArchiveExists = errors.New("archive already exists")

	// ErrArchiveNotFound indicates the requested archive does not exist.
	ErrArchiveNotFound = errors.New("archive not found")

	// ===========================================
	// Identifier Index Errors
	// ===========================================

	// ErrMappingNotFound indicates no id is recorded for the logical path.
	ErrMappingNotFound = errors.New("identifier mapping not found")
)

// MissingChunkError reports the first gap found during session completion.
// The session is left intact so the client may resubmit the missing chunk.
type MissingChunkError struct {
	SessionID string
	Index     int
}

// Error implements the error interface.
func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("session %s is missing chunk %d", e.SessionID, e.Index)
}

// IsMissingChunk reports whether err carries a MissingChunkError and returns it.
func IsMissingChunk(err error) (*MissingChunkError, bool) {
	var mc *MissingChunkError
	if errors.As(err, &mc) {
		return mc, true
	}
	return nil, false
}
