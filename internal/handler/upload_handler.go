package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vitrine-app/archive-ingest/internal/chunk"
	"github.com/vitrine-app/archive-ingest/internal/domain"
	"github.com/vitrine-app/archive-ingest/internal/upload"
)

// UploadHandler serves the ingestion endpoints: whole-file upload, chunk
// submission, and chunk-session completion.
type UploadHandler struct {
	uploadService *upload.Service
	chunkService  *chunk.Service
	logger        zerolog.Logger
}

// NewUploadHandler creates an UploadHandler. chunkService may be nil when
// chunked mode is disabled; the router then never routes to it.
func NewUploadHandler(uploadService *upload.Service, chunkService *chunk.Service, logger zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		uploadService: uploadService,
		chunkService:  chunkService,
		logger:        logger.With().Str("handler", "upload").Logger(),
	}
}

// HandleWholeUpload handles POST /api/archives.
// The request body is multipart/form-data; the first file field is streamed
// to storage. 201 with the archive descriptor on success.
func (h *UploadHandler) HandleWholeUpload(w http.ResponseWriter, r *http.Request) {
	desc, err := h.uploadService.Upload(r.Context(), r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		if errors.Is(err, domain.ErrUploadTooLarge) {
			// Terminate rather than drain: the client would otherwise keep
			// streaming a body we already rejected.
			w.Header().Set("Connection", "close")
		}
		h.logger.Debug().Err(err).Msg("whole-file upload rejected")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, desc)
}

// HandleChunkUpload handles POST /api/archives/chunk.
// Query parameters carry the session coordinates; the body is the raw chunk.
func (h *UploadHandler) HandleChunkUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	chunkIndex, err := strconv.Atoi(q.Get("chunkIndex"))
	if err != nil {
		writeError(w, domain.ErrInvalidChunkIndex)
		return
	}
	totalChunks, err := strconv.Atoi(q.Get("totalChunks"))
	if err != nil {
		writeError(w, domain.ErrInvalidTotalChunks)
		return
	}

	out, err := h.chunkService.SubmitChunk(r.Context(), chunk.SubmitChunkInput{
		SessionID:   q.Get("sessionId"),
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
		Filename:    q.Get("filename"),
		Body:        r.Body,
	})
	if err != nil {
		if errors.Is(err, domain.ErrChunkTooLarge) {
			w.Header().Set("Connection", "close")
		}
		h.logger.Debug().Err(err).Str("session_id", q.Get("sessionId")).Msg("chunk submission rejected")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received":   true,
		"chunkIndex": out.ChunkIndex,
	})
}

// HandleChunkComplete handles POST /api/archives/chunk/{sessionID}/complete.
func (h *UploadHandler) HandleChunkComplete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	desc, err := h.chunkService.Complete(r.Context(), sessionID)
	if err != nil {
		h.logger.Debug().Err(err).Str("session_id", sessionID).Msg("session completion rejected")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, desc)
}
