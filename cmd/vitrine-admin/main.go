// Package main is the entry point for the archive ingestion server, the
// upload path of the Vitrine admin API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vitrine-app/archive-ingest/internal/archive"
	"github.com/vitrine-app/archive-ingest/internal/chunk"
	"github.com/vitrine-app/archive-ingest/internal/config"
	"github.com/vitrine-app/archive-ingest/internal/extract"
	"github.com/vitrine-app/archive-ingest/internal/handler"
	"github.com/vitrine-app/archive-ingest/internal/ident"
	"github.com/vitrine-app/archive-ingest/internal/lock"
	"github.com/vitrine-app/archive-ingest/internal/metrics"
	"github.com/vitrine-app/archive-ingest/internal/upload"
)

// Version information (set at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	logger := newLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", Version).
		Str("git_commit", GitCommit).
		Msg("starting archive ingestion server")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
}

// run wires the components and serves until a shutdown signal arrives.
func run(cfg *config.Config, logger zerolog.Logger) error {
	if err := os.MkdirAll(cfg.Upload.TempDir, 0o755); err != nil {
		return err
	}

	collection, err := archive.NewCollection(cfg.Archive.CollectionDir, logger)
	if err != nil {
		return err
	}

	index, err := newIndex(cfg.Index, logger)
	if err != nil {
		return err
	}
	defer index.Close()

	describer := archive.NewDescriber(collection, index, cfg.Archive.BaseURL, cfg.Archive.ThumbBaseURL)

	locker := newLocker(cfg.Redis, logger)

	registry := prometheus.NewRegistry()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(registry)
	}

	extractor := newExtractor(cfg.Extract, logger)

	uploadService := upload.NewService(collection, describer, extractor, locker, m, logger, upload.ServiceConfig{
		TempDir:       cfg.Upload.TempDir,
		MaxUploadSize: cfg.Upload.MaxUploadSize,
	})

	var chunkService *chunk.Service
	var sweeper *chunk.Sweeper
	if cfg.Chunked.Enabled {
		store, err := chunk.NewFSStore(cfg.Chunked.SessionDir)
		if err != nil {
			return err
		}
		chunkService = chunk.NewService(store, collection, describer, extractor, locker, m, logger, chunk.ServiceConfig{
			TempDir:      cfg.Upload.TempDir,
			MaxChunkSize: cfg.Chunked.MaxChunkSize,
		})
		sweeper = chunk.NewSweeper(store, locker, m, logger, chunk.SweeperConfig{
			Interval:  cfg.Chunked.SweepInterval,
			Retention: cfg.Chunked.Retention,
		})
		sweeper.Start()
		defer sweeper.Stop()
	}

	uploadHandler := handler.NewUploadHandler(uploadService, chunkService, logger)
	router := handler.NewRouter(handler.RouterConfig{
		UploadHandler:  uploadHandler,
		ChunkedEnabled: cfg.Chunked.Enabled,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		Registry:       registry,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// newIndex builds the identifier index for the configured driver.
func newIndex(cfg config.IndexConfig, logger zerolog.Logger) (ident.Index, error) {
	switch cfg.Driver {
	case "sqlite":
		return ident.NewSQLiteIndex(cfg.Path, logger)
	default:
		return ident.NewFileIndex(cfg.Path, logger)
	}
}

// newLocker builds the placement locker: Redis when several processes share
// the collection, in-memory otherwise.
func newLocker(cfg config.RedisConfig, logger zerolog.Logger) lock.Locker {
	if !cfg.Enabled {
		return lock.NewMemoryLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, falling back to in-memory locks")
		return lock.NewMemoryLocker()
	}

	logger.Info().Str("addr", cfg.Addr()).Msg("using redis locker")
	return lock.NewRedisLocker(client)
}

// newExtractor builds the metadata extractor, or a no-op when unset.
func newExtractor(cfg config.ExtractConfig, logger zerolog.Logger) extract.Extractor {
	if cfg.Command == "" {
		return extract.Noop{}
	}
	return extract.NewTool(cfg.Command, cfg.Args, cfg.Timeout, logger)
}
