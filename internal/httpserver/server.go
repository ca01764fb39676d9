// Package httpserver implements the three loopback JSON services:
// ingestion (:21953), indexing (:21954), and the composer (:21955). Routing
// is chi, logging is zap, metrics are Prometheus; every handler maps the
// apperr taxonomy onto HTTP status codes.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/metrics"
)

// Version is reported by every /health endpoint.
const Version = "0.3.0"

// Loopback service ports.
const (
	IngestionPort = 21953
	IndexingPort  = 21954
	ComposerPort  = 21955
)

// Serve runs srv until ctx is cancelled, then shuts down gracefully with a
// five second drain window.
func Serve(ctx context.Context, srv *http.Server, logger *zap.SugaredLogger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// respondJSON writes v with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps the apperr taxonomy onto status codes; internal detail
// stays in the logs, never in the body.
func respondError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	kind := apperr.KindOf(err)

	var status int
	var message string
	switch kind {
	case apperr.KindBadRequest:
		status, message = http.StatusBadRequest, err.Error()
	case apperr.KindNotFound:
		status, message = http.StatusNotFound, err.Error()
	case apperr.KindConflict:
		status, message = http.StatusConflict, err.Error()
	case apperr.KindUpstream:
		status, message = http.StatusBadGateway, "upstream failure"
	default:
		status, message = http.StatusInternalServerError, "internal error"
	}

	if status >= 500 {
		logger.Errorw("request failed", "kind", kind.String(), "error", err)
	}
	respondJSON(w, status, map[string]string{"error": message, "kind": kind.String()})
}

// healthHandler returns the uniform health payload every service exposes.
func healthHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{
			"service": service,
			"status":  "healthy",
			"version": Version,
		})
	}
}

// corsMiddleware is permissive: every client is local, the services bind
// loopback only.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs one line per request and feeds the collector.
func loggingMiddleware(logger *zap.SugaredLogger, collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}
			logger.Infow("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", duration,
			)
			if collector != nil {
				collector.ObserveRequest(r.Method, route, ww.Status(), duration)
			}
		})
	}
}

// newRouter wires the middleware stack shared by all three services.
func newRouter(service string, logger *zap.SugaredLogger, collector *metrics.Collector) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(corsMiddleware)
	r.Use(loggingMiddleware(logger, collector))

	r.Get("/health", healthHandler(service))
	if collector != nil {
		r.Method(http.MethodGet, "/metrics", collector.Handler())
	}
	return r
}

// decodeJSON strictly parses a request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apperr.NewBadRequest("malformed JSON body: %v", err)
	}
	return nil
}

// queryInt parses an integer query parameter, returning fallback when the
// parameter is absent and a BadRequest error when it is malformed.
func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.NewBadRequest("invalid %s: %q", key, raw)
	}
	return v, nil
}

// queryFloat parses a float query parameter the same way.
func queryFloat(r *http.Request, key string, fallback float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.NewBadRequest("invalid %s: %q", key, raw)
	}
	return v, nil
}
