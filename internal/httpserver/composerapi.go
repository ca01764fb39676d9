package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/metrics"
	"github.com/ashvinar/memory-layer/pkg/composer"
)

// ComposerServer serves capsule synthesis and undo.
type ComposerServer struct {
	composer  *composer.Composer
	logger    *zap.SugaredLogger
	collector *metrics.Collector
}

// capsuleResponse is a capsule plus the qualitative delta against the
// thread's previous capsule, when one existed.
type capsuleResponse struct {
	*composer.ContextCapsule
	Delta composer.Delta `json:"delta,omitempty"`
}

// NewComposerRouter wires the composer service's routes.
func NewComposerRouter(c *composer.Composer, logger *zap.SugaredLogger, collector *metrics.Collector) chi.Router {
	srv := &ComposerServer{composer: c, logger: logger, collector: collector}

	r := newRouter("composer", logger, collector)
	r.Post("/v1/context", srv.composeContext)
	r.Post("/v1/undo", srv.undo)
	return r
}

func (s *ComposerServer) composeContext(w http.ResponseWriter, r *http.Request) {
	var req composer.ContextRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, s.logger, err)
		return
	}
	if req.BudgetTokens <= 0 {
		respondError(w, s.logger, apperr.NewBadRequest("budget_tokens must be positive"))
		return
	}

	var previous *composer.ContextCapsule
	if req.ThreadKey != "" {
		previous, _ = s.composer.Cached(req.ThreadKey)
	}

	capsule := s.composer.Compose(req)
	if s.collector != nil {
		s.collector.CapsulesComposed.Inc()
	}

	resp := capsuleResponse{ContextCapsule: capsule}
	if previous != nil {
		resp.Delta = composer.ComputeDelta(previous.PreambleText, capsule.PreambleText)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *ComposerServer) undo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ThreadKey string `json:"thread_key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, s.logger, err)
		return
	}
	if req.ThreadKey == "" {
		respondError(w, s.logger, apperr.NewBadRequest("thread_key is required"))
		return
	}

	capsule, err := s.composer.Undo(req.ThreadKey)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, capsule)
}
