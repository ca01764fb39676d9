// Package search layers a recency-aware hybrid ranker over the storage
// engine's FTS5 match, and hosts the pluggable embedding capability with
// its read-through cache.
package search

import (
	"math"
	"sort"
	"time"

	"github.com/ashvinar/memory-layer/internal/store"
)

const (
	// DefaultRecencyWeight is w in the hybrid score
	// (1-w)*rank + w*exp(-ageDays/30).
	DefaultRecencyWeight = 0.3
	// recencyHalfScaleDays is the decay constant of the recency term.
	recencyHalfScaleDays = 30.0
	// maxLimit bounds any single search request.
	maxLimit = 100
)

// Service ranks FTS hits with a recency-decay blend.
type Service struct {
	store store.Storer
}

// New builds a search service over s.
func New(s store.Storer) *Service {
	return &Service{store: s}
}

// Search pulls up to 2*limit FTS candidates and re-ranks them with the
// hybrid score: final = (1-w)*rank + w*exp(-ageDays/30), sorted descending,
// truncated to limit. recencyWeight <= 0 selects the default.
func (s *Service) Search(query string, limit int, recencyWeight float64) ([]store.SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if recencyWeight <= 0 || recencyWeight > 1 {
		recencyWeight = DefaultRecencyWeight
	}

	hits, err := s.store.SearchMemories(query, 2*limit)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range hits {
		ageDays := now.Sub(hits[i].Memory.CreatedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		recency := math.Exp(-ageDays / recencyHalfScaleDays)
		hits[i].Score = (1-recencyWeight)*hits[i].Score + recencyWeight*recency
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SearchTopic returns the most recent memories for a literal topic string,
// no ranking beyond recency.
func (s *Service) SearchTopic(topic string, limit int) ([]*store.Memory, error) {
	return s.store.ListMemoriesByTopicString(topic, limit)
}
