// Command ingestion runs the write-side service on loopback :21953: turn
// ingest, the async extraction worker, and the read paths over memories,
// hierarchy, and narratives.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ashvinar/memory-layer/internal/config"
	"github.com/ashvinar/memory-layer/internal/httpserver"
	"github.com/ashvinar/memory-layer/internal/metrics"
	"github.com/ashvinar/memory-layer/internal/store"
	"github.com/ashvinar/memory-layer/pkg/agentic"
	"github.com/ashvinar/memory-layer/pkg/extraction"
	"github.com/ashvinar/memory-layer/pkg/llmprovider"
	"github.com/ashvinar/memory-layer/pkg/worker"
)

// Fleeting memories older than this are archived by the periodic sweep.
const (
	archiveAfter    = 30 * 24 * time.Hour
	archiveInterval = 24 * time.Hour
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if err := run(sugar); err != nil {
		sugar.Errorw("ingestion service failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *zap.SugaredLogger) error {
	cfg := config.Load()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}
	s, err := store.NewSQLiteStoreWithDSN(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	extractor := extraction.New(extraction.Config{
		Provider: llmprovider.FromConfig(cfg),
		Logger:   logger,
	})
	logger.Infow("extraction configured", "strategy", extractor.Strategy())

	pipeline := worker.New(worker.Config{
		Store:     s,
		Extractor: extractor,
		Agentic:   agentic.New(s),
		Logger:    logger,
	})
	defer pipeline.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go archiveLoop(ctx, s, logger)

	collector := metrics.NewCollector("ingestion")
	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", httpserver.IngestionPort),
		Handler: httpserver.NewIngestionRouter(s, pipeline, logger, collector),
	}
	return httpserver.Serve(ctx, srv, logger)
}

// archiveLoop periodically moves stale fleeting memories to archived.
func archiveLoop(ctx context.Context, s store.Storer, logger *zap.SugaredLogger) {
	ticker := time.NewTicker(archiveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := s.ArchiveStaleMemories(archiveAfter)
			if err != nil {
				logger.Warnw("archive sweep failed", "error", err)
				continue
			}
			if count > 0 {
				logger.Infow("archived stale memories", "count", count)
			}
		}
	}
}
