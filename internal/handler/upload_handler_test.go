package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vitrine-app/archive-ingest/internal/archive"
	"github.com/vitrine-app/archive-ingest/internal/chunk"
	"github.com/vitrine-app/archive-ingest/internal/extract"
	"github.com/vitrine-app/archive-ingest/internal/ident"
	"github.com/vitrine-app/archive-ingest/internal/lock"
	"github.com/vitrine-app/archive-ingest/internal/upload"
)

// =============================================================================
// Helper Functions
// =============================================================================

const testBoundary = "----handlertestboundary"

type testEnv struct {
	router     http.Handler
	collection *archive.Collection
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	collection, err := archive.NewCollection(t.TempDir(), logger)
	require.NoError(t, err)

	index, err := ident.NewFileIndex(t.TempDir()+"/ids.json", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	describer := archive.NewDescriber(collection, index, "/archives", "/thumbs")
	locker := lock.NewNoOpLocker()

	uploadService := upload.NewService(collection, describer, extract.Noop{}, locker, nil, logger, upload.ServiceConfig{
		TempDir:       t.TempDir(),
		MaxUploadSize: 1 << 20,
	})

	store, err := chunk.NewFSStore(t.TempDir())
	require.NoError(t, err)
	chunkService := chunk.NewService(store, collection, describer, extract.Noop{}, locker, nil, logger, chunk.ServiceConfig{
		TempDir:      t.TempDir(),
		MaxChunkSize: 1 << 20,
	})

	router := NewRouter(RouterConfig{
		UploadHandler:  NewUploadHandler(uploadService, chunkService, logger),
		ChunkedEnabled: true,
		Logger:         logger,
	})
	return &testEnv{router: router, collection: collection}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// wholeUploadRequest builds a multipart POST for the whole-file endpoint.
func wholeUploadRequest(filename, content string) *http.Request {
	body := "--" + testBoundary + "\r\n" +
		"Content-Disposition: form-data; name=\"file\"; filename=\"" + filename + "\"\r\n" +
		"\r\n" +
		content + "\r\n" +
		"--" + testBoundary + "--\r\n"
	req := httptest.NewRequest(http.MethodPost, "/api/archives", strings.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+testBoundary)
	return req
}

// chunkRequest builds a raw-body POST for the chunk endpoint.
func chunkRequest(sessionID string, index, total int, filename, content string) *http.Request {
	target := fmt.Sprintf("/api/archives/chunk?sessionId=%s&chunkIndex=%d&totalChunks=%d&filename=%s",
		url.QueryEscape(sessionID), index, total, url.QueryEscape(filename))
	return httptest.NewRequest(http.MethodPost, target, strings.NewReader(content))
}

func completeRequest(sessionID string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/archives/chunk/"+sessionID+"/complete", nil)
}

// =============================================================================
// Whole-File Upload Tests
// =============================================================================

func TestHandler_WholeUpload_Created(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(wholeUploadRequest("game.zip", "payload"))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var desc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &desc))
	require.Equal(t, "game.zip", desc["name"])
	require.Equal(t, "game", desc["title"])
	require.Equal(t, float64(7), desc["size"])
	require.Equal(t, "/archives/game.zip", desc["url"])
	require.NotEmpty(t, desc["hashId"])
	require.NotEmpty(t, desc["archiveId"])
	require.Equal(t, "/thumbs/"+desc["hashId"].(string)+".png", desc["thumbnailUrl"])
}

func TestHandler_WholeUpload_Duplicate(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusCreated, env.do(wholeUploadRequest("game.zip", "first")).Code)

	rec := env.do(wholeUploadRequest("game.zip", "second"))
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["error"])
}

func TestHandler_WholeUpload_TooLarge(t *testing.T) {
	env := newTestEnv(t)

	// 2 MiB payload against the env's 1 MiB ceiling.
	rec := env.do(wholeUploadRequest("big.zip", strings.Repeat("z", 2<<20)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, "close", rec.Header().Get("Connection"))
	require.False(t, env.collection.Exists("big.zip"))
}

func TestHandler_WholeUpload_BadContentType(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/archives", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	require.Equal(t, http.StatusBadRequest, env.do(req).Code)
}

func TestHandler_WholeUpload_NoFileField(t *testing.T) {
	env := newTestEnv(t)

	body := "--" + testBoundary + "\r\n" +
		"Content-Disposition: form-data; name=\"title\"\r\n" +
		"\r\n" +
		"just text\r\n" +
		"--" + testBoundary + "--\r\n"
	req := httptest.NewRequest(http.MethodPost, "/api/archives", strings.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+testBoundary)
	require.Equal(t, http.StatusBadRequest, env.do(req).Code)
}

// =============================================================================
// Chunked Upload Tests
// =============================================================================

func TestHandler_ChunkedUpload_FullFlow(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.NewString()

	rec := env.do(chunkRequest(id, 0, 2, "game.zip", "hello "))
	require.Equal(t, http.StatusOK, rec.Code)

	var ack map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	require.Equal(t, true, ack["received"])
	require.Equal(t, float64(0), ack["chunkIndex"])

	require.Equal(t, http.StatusOK, env.do(chunkRequest(id, 1, 2, "game.zip", "world")).Code)

	rec = env.do(completeRequest(id))
	require.Equal(t, http.StatusCreated, rec.Code)

	var desc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &desc))
	require.Equal(t, "game.zip", desc["name"])
	require.Equal(t, float64(11), desc["size"])

	data, err := os.ReadFile(env.collection.Path("game.zip"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestHandler_ChunkedUpload_InvalidSessionID(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(chunkRequest("not-a-uuid", 0, 1, "game.zip", "x"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ChunkedUpload_BadCoordinates(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.NewString()

	// Non-numeric index.
	req := httptest.NewRequest(http.MethodPost,
		"/api/archives/chunk?sessionId="+id+"&chunkIndex=abc&totalChunks=2&filename=a.zip",
		strings.NewReader("x"))
	require.Equal(t, http.StatusBadRequest, env.do(req).Code)

	// Index out of range.
	require.Equal(t, http.StatusBadRequest, env.do(chunkRequest(id, 5, 2, "a.zip", "x")).Code)

	// Chunk count over the cap.
	require.Equal(t, http.StatusBadRequest, env.do(chunkRequest(id, 0, 201, "a.zip", "x")).Code)
}

func TestHandler_ChunkComplete_MissingChunk(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.NewString()

	require.Equal(t, http.StatusOK, env.do(chunkRequest(id, 0, 3, "game.zip", "aa")).Code)
	require.Equal(t, http.StatusOK, env.do(chunkRequest(id, 2, 3, "game.zip", "cc")).Code)

	rec := env.do(completeRequest(id))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body["error"], "chunk 1")
}

func TestHandler_ChunkComplete_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(completeRequest(uuid.NewString()))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ChunkComplete_Conflict(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusCreated, env.do(wholeUploadRequest("game.zip", "taken")).Code)

	id := uuid.NewString()
	require.Equal(t, http.StatusOK, env.do(chunkRequest(id, 0, 1, "game.zip", "later")).Code)
	require.Equal(t, http.StatusConflict, env.do(completeRequest(id)).Code)
}

// =============================================================================
// Router Tests
// =============================================================================

func TestHandler_Health(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestHandler_ChunkedDisabled(t *testing.T) {
	logger := zerolog.Nop()
	collection, err := archive.NewCollection(t.TempDir(), logger)
	require.NoError(t, err)
	index, err := ident.NewFileIndex(t.TempDir()+"/ids.json", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	describer := archive.NewDescriber(collection, index, "/archives", "/thumbs")

	uploadService := upload.NewService(collection, describer, extract.Noop{}, lock.NewNoOpLocker(), nil, logger, upload.ServiceConfig{
		TempDir:       t.TempDir(),
		MaxUploadSize: 1 << 20,
	})

	router := NewRouter(RouterConfig{
		UploadHandler:  NewUploadHandler(uploadService, nil, logger),
		ChunkedEnabled: false,
		Logger:         logger,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, chunkRequest(uuid.NewString(), 0, 1, "a.zip", "x"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
