// Command indexing runs the read-side service on loopback :21954: hybrid
// full-text search, topic listings, the embedding surface, and the agentic
// sidecar views.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/ashvinar/memory-layer/internal/config"
	"github.com/ashvinar/memory-layer/internal/httpserver"
	"github.com/ashvinar/memory-layer/internal/metrics"
	"github.com/ashvinar/memory-layer/internal/store"
	"github.com/ashvinar/memory-layer/pkg/search"
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
		sugar.Errorw("indexing service failed", "error", err)
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector("indexing")
	srv := &http.Server{
		Addr: fmt.Sprintf("127.0.0.1:%d", httpserver.IndexingPort),
		Handler: httpserver.NewIndexingRouter(
			s,
			search.New(s),
			search.NewEmbedCache(nil, s),
			logger,
			collector,
		),
	}
	return httpserver.Serve(ctx, srv, logger)
}
