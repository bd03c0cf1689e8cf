package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	UploadHandler  *UploadHandler
	ChunkedEnabled bool
	MetricsEnabled bool
	MetricsPath    string
	Registry       *prometheus.Registry
	Logger         zerolog.Logger
}

// NewRouter builds the chi router for the ingestion API.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	if cfg.MetricsEnabled && cfg.Registry != nil {
		r.Method(http.MethodGet, cfg.MetricsPath,
			promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/archives", func(r chi.Router) {
		r.Post("/", cfg.UploadHandler.HandleWholeUpload)
		if cfg.ChunkedEnabled {
			r.Post("/chunk", cfg.UploadHandler.HandleChunkUpload)
			r.Post("/chunk/{sessionID}/complete", cfg.UploadHandler.HandleChunkComplete)
		}
	})

	return r
}

// handleHealth handles health check requests.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// requestLogger logs one line per request with method, path, status, and
// elapsed time.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int64("bytes", int64(ww.BytesWritten())).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}
