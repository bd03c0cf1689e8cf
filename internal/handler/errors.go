// Package handler provides the HTTP surface of the archive ingestion API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vitrine-app/archive-ingest/internal/domain"
)

// errorResponse is the JSON error body returned to admin clients.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body for err with the mapped status.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), errorResponse{Error: err.Error()})
}

// statusForError maps domain errors onto HTTP status codes.
// The size-limit cases get their own code; everything the client caused is a
// 400-family response, everything else a 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrUploadTooLarge),
		errors.Is(err, domain.ErrChunkTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, domain.ErrArchiveExists):
		return http.StatusConflict

	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrArchiveNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrMissingBoundary),
		errors.Is(err, domain.ErrMalformedBody),
		errors.Is(err, domain.ErrHeadersTooLarge),
		errors.Is(err, domain.ErrNoFileField),
		errors.Is(err, domain.ErrIncompleteBody),
		errors.Is(err, domain.ErrInvalidSessionID),
		errors.Is(err, domain.ErrInvalidChunkIndex),
		errors.Is(err, domain.ErrInvalidTotalChunks),
		errors.Is(err, domain.ErrInvalidFilename):
		return http.StatusBadRequest

	default:
		if _, ok := domain.IsMissingChunk(err); ok {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}
