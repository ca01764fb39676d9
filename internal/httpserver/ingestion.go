package httpserver

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/ids"
	"github.com/ashvinar/memory-layer/internal/metrics"
	"github.com/ashvinar/memory-layer/internal/store"
	"github.com/ashvinar/memory-layer/pkg/worker"
)

// wireTurn is the external ingest contract for one conversational event.
type wireTurn struct {
	ID       string     `json:"id,omitempty"`
	ThreadID string     `json:"thread_id"`
	TSUser   *time.Time `json:"ts_user,omitempty"`
	UserText string     `json:"user_text"`
	TSAI     *time.Time `json:"ts_ai,omitempty"`
	AIText   string     `json:"ai_text,omitempty"`
	Source   struct {
		App  string `json:"app"`
		URL  string `json:"url,omitempty"`
		Path string `json:"path,omitempty"`
	} `json:"source"`
}

// IngestionServer serves the write side: turn ingest plus the read paths
// over memories, hierarchy, narratives, and export.
type IngestionServer struct {
	store     store.Storer
	pipeline  *worker.Pipeline
	logger    *zap.SugaredLogger
	collector *metrics.Collector
}

// NewIngestionRouter wires the ingestion service's routes.
func NewIngestionRouter(s store.Storer, pipeline *worker.Pipeline, logger *zap.SugaredLogger, collector *metrics.Collector) chi.Router {
	srv := &IngestionServer{store: s, pipeline: pipeline, logger: logger, collector: collector}

	r := newRouter("ingestion", logger, collector)
	r.Post("/ingest/turn", srv.ingestTurn)
	r.Get("/stats", srv.stats)

	r.Route("/memories", func(r chi.Router) {
		r.Get("/recent", srv.recentMemories)
		r.Get("/topics", srv.memoryTopics)
		r.Get("/high-priority", srv.highPriorityMemories)
		r.Get("/kind/{kind}", srv.memoriesByKind)
		r.Get("/{id}", srv.getMemory)
		r.Get("/{id}/importance", srv.memoryImportance)
		r.Get("/{id}/narrative", srv.memoryNarrative)
		r.Get("/{id}/evolution", srv.memoryEvolution)
		r.Get("/{id}/implementations", srv.memoryImplementations)
		r.Get("/{id}/resolution", srv.memoryResolution)
	})

	r.Route("/topics", func(r chi.Router) {
		r.Get("/{topicID}/memories", srv.topicMemories)
		r.Get("/{topicID}/decisions", srv.topicDecisions)
		r.Get("/{topicID}/contradictions", srv.topicContradictions)
	})

	r.Get("/hierarchy/{topicID}", srv.hierarchyPath)
	r.Get("/index-notes/{scopeType}/{scopeID}", srv.indexNote)

	r.Get("/export", srv.exportStore)
	r.Post("/import", srv.importStore)

	return r
}

// ingestTurn validates, enqueues, and acknowledges immediately; extraction
// happens on the worker, never on this path.
func (s *IngestionServer) ingestTurn(w http.ResponseWriter, r *http.Request) {
	var wt wireTurn
	if err := decodeJSON(r, &wt); err != nil {
		respondError(w, s.logger, err)
		return
	}
	if wt.UserText == "" {
		respondError(w, s.logger, apperr.NewBadRequest("user_text is required"))
		return
	}
	if wt.ThreadID == "" {
		respondError(w, s.logger, apperr.NewBadRequest("thread_id is required"))
		return
	}
	if wt.Source.App == "" {
		respondError(w, s.logger, apperr.NewBadRequest("source.app is required"))
		return
	}

	now := time.Now().UTC()
	turn := &store.Turn{
		ID:       wt.ID,
		ThreadID: wt.ThreadID,
		TSUser:   now,
		UserText: wt.UserText,
		TSAI:     wt.TSAI,
		AIText:   wt.AIText,
		Source:   store.Source{App: wt.Source.App, URL: wt.Source.URL, Path: wt.Source.Path},
	}
	if wt.TSUser != nil {
		turn.TSUser = wt.TSUser.UTC()
	}
	if turn.ID == "" {
		turn.ID = ids.New(ids.PrefixTurn)
	}

	if err := s.pipeline.Enqueue(turn); err != nil {
		respondError(w, s.logger, err)
		return
	}
	if s.collector != nil {
		s.collector.TurnsIngested.Inc()
	}
	respondJSON(w, http.StatusOK, map[string]string{"turn_id": turn.ID, "status": "queued"})
}

func (s *IngestionServer) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetStats()
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *IngestionServer) recentMemories(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	memories, err := s.store.ListRecentMemories(limit)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

func (s *IngestionServer) memoryTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.store.ListTopicCounts()
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (s *IngestionServer) highPriorityMemories(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	memories, err := s.store.GetHighPriorityMemories(limit)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

func (s *IngestionServer) memoriesByKind(w http.ResponseWriter, r *http.Request) {
	kind := store.MemoryKind(chi.URLParam(r, "kind"))
	switch kind {
	case store.KindDecision, store.KindFact, store.KindSnippet, store.KindTask:
	default:
		respondError(w, s.logger, apperr.NewBadRequest("unknown memory kind %q", kind))
		return
	}
	memories, err := s.store.ListMemoriesByKind(kind)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

func (s *IngestionServer) getMemory(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMemory(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *IngestionServer) memoryImportance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	importance, err := s.store.CalculateMemoryImportance(id)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memory_id": id, "importance": importance})
}

func (s *IngestionServer) memoryNarrative(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.GetMemoryNarrative(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

func (s *IngestionServer) memoryEvolution(w http.ResponseWriter, r *http.Request) {
	trail, err := s.store.GetEvolutionTrail(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"trail": trail})
}

func (s *IngestionServer) memoryImplementations(w http.ResponseWriter, r *http.Request) {
	memories, err := s.store.GetImplementationTracking(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

func (s *IngestionServer) memoryResolution(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetQuestionResolution(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *IngestionServer) topicMemories(w http.ResponseWriter, r *http.Request) {
	memories, err := s.store.ListMemoriesByTopic(chi.URLParam(r, "topicID"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

func (s *IngestionServer) topicDecisions(w http.ResponseWriter, r *http.Request) {
	memories, err := s.store.GetDecisionChain(chi.URLParam(r, "topicID"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"decisions": memories})
}

func (s *IngestionServer) topicContradictions(w http.ResponseWriter, r *http.Request) {
	relations, err := s.store.FindContradictions(chi.URLParam(r, "topicID"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"contradictions": relations})
}

func (s *IngestionServer) hierarchyPath(w http.ResponseWriter, r *http.Request) {
	ws, project, area, topic, err := s.store.HierarchyPath(chi.URLParam(r, "topicID"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"workspace": ws,
		"project":   project,
		"area":      area,
		"topic":     topic,
	})
}

func (s *IngestionServer) indexNote(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.GetIndexNoteForScope(chi.URLParam(r, "scopeType"), chi.URLParam(r, "scopeID"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

func (s *IngestionServer) exportStore(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.Export()
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *IngestionServer) importStore(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		respondError(w, s.logger, apperr.NewBadRequest("read body: %v", err))
		return
	}
	if err := s.store.Import(data); err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}
