package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/metrics"
	"github.com/ashvinar/memory-layer/internal/store"
	"github.com/ashvinar/memory-layer/pkg/search"
)

// IndexingServer serves the read-heavy side: hybrid search, topic listings,
// the embedding surface, and the agentic sidecar views.
type IndexingServer struct {
	store     store.Storer
	search    *search.Service
	embeds    *search.EmbedCache
	logger    *zap.SugaredLogger
	collector *metrics.Collector
}

// NewIndexingRouter wires the indexing service's routes.
func NewIndexingRouter(s store.Storer, searchSvc *search.Service, embeds *search.EmbedCache, logger *zap.SugaredLogger, collector *metrics.Collector) chi.Router {
	srv := &IndexingServer{store: s, search: searchSvc, embeds: embeds, logger: logger, collector: collector}

	r := newRouter("indexing", logger, collector)
	r.Get("/search", srv.searchMemories)
	r.Get("/topics", srv.listTopics)
	r.Get("/topics/{topic}/recent", srv.topicRecent)
	r.Post("/embed", srv.embed)
	r.Get("/embed/similar", srv.embedSimilar)

	r.Route("/agentic", func(r chi.Router) {
		r.Get("/recent", srv.agenticRecent)
		r.Get("/search", srv.agenticSearch)
		r.Get("/graph", srv.agenticGraph)
		r.Get("/{id}", srv.agenticGet)
	})

	return r
}

func (s *IndexingServer) searchMemories(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, s.logger, apperr.NewBadRequest("q is required"))
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	weight, err := queryFloat(r, "recency_weight", 0)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	hits, err := s.search.Search(query, limit, weight)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"query": query, "results": hits})
}

func (s *IndexingServer) listTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.store.ListTopicCounts()
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (s *IndexingServer) topicRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	memories, err := s.search.SearchTopic(chi.URLParam(r, "topic"), limit)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

func (s *IndexingServer) embed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, s.logger, err)
		return
	}
	if req.Text == "" {
		respondError(w, s.logger, apperr.NewBadRequest("text is required"))
		return
	}

	vector, err := s.embeds.Embed(req.Text)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"vector": vector, "dimensions": len(vector)})
}

func (s *IndexingServer) embedSimilar(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, s.logger, apperr.NewBadRequest("q is required"))
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	neighbors, err := s.embeds.Nearest(query, limit)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"neighbors": neighbors})
}

func (s *IndexingServer) agenticRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	rows, err := s.store.ListRecentAgenticMemories(limit)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": rows})
}

func (s *IndexingServer) agenticSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, s.logger, apperr.NewBadRequest("q is required"))
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	rows, err := s.store.SearchAgenticMemories(query, limit)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": rows})
}

func (s *IndexingServer) agenticGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	row, err := s.store.GetAgenticMemory(id)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	// A read through this endpoint counts as a retrieval.
	if err := s.store.TouchAgenticMemory(id); err != nil {
		s.logger.Warnw("touch agentic memory failed", "memory", id, "error", err)
	}
	respondJSON(w, http.StatusOK, row)
}

// agenticGraph projects the agentic rows into a nodes+edges view bounded
// by limit nodes.
func (s *IndexingServer) agenticGraph(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	rows, err := s.store.ListRecentAgenticMemories(limit)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	type node struct {
		MemoryID string   `json:"memory_id"`
		Context  string   `json:"context"`
		Category string   `json:"category"`
		Keywords []string `json:"keywords"`
	}
	type edge struct {
		Source   string  `json:"source"`
		Target   string  `json:"target"`
		Strength float64 `json:"strength"`
	}

	nodes := make([]node, 0, len(rows))
	var edges []edge
	included := make(map[string]bool, len(rows))
	for _, a := range rows {
		included[a.MemoryID] = true
	}
	for _, a := range rows {
		nodes = append(nodes, node{
			MemoryID: a.MemoryID,
			Context:  a.Context,
			Category: string(a.Category),
			Keywords: a.Keywords,
		})
		for _, l := range a.Links {
			if included[l.Target] {
				edges = append(edges, edge{Source: a.MemoryID, Target: l.Target, Strength: l.Strength})
			}
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "edges": edges})
}
