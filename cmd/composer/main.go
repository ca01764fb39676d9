// Command composer runs the capsule service on loopback :21955: context
// synthesis from the high-priority memory view and one level of per-thread
// undo.
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
	"github.com/ashvinar/memory-layer/pkg/composer"
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
		sugar.Errorw("composer service failed", "error", err)
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

	comp := composer.New(s, logger)
	comp.SetFetcher(composer.NewIndexClient(cfg.IndexingURL))

	collector := metrics.NewCollector("composer")
	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", httpserver.ComposerPort),
		Handler: httpserver.NewComposerRouter(comp, logger, collector),
	}
	return httpserver.Serve(ctx, srv, logger)
}
