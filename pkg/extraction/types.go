// Package extraction converts conversational turns into typed memories:
// decisions, facts, tasks, and code snippets. The heuristic path is pure
// pattern matching with per-candidate confidence scoring; the optional LLM
// path sends a structured prompt to a pluggable provider and parses strict
// JSON with regex repair as a fallback. The hybrid strategy runs heuristics
// first and invokes the LLM only for complex text.
package extraction

import (
	"context"
	"time"

	"github.com/ashvinar/memory-layer/internal/ids"
	"github.com/ashvinar/memory-layer/internal/store"
)

// Strategy selects how a turn becomes memories.
type Strategy string

const (
	// StrategyHeuristic runs only the pattern-driven extractor.
	StrategyHeuristic Strategy = "heuristic"
	// StrategyLLM asks the configured provider, falling back to heuristics
	// on any failure.
	StrategyLLM Strategy = "llm"
	// StrategyHybrid always runs heuristics and adds LLM candidates when the
	// text is complex enough to warrant the call.
	StrategyHybrid Strategy = "hybrid"
)

// Provider is the narrow LLM capability the extractor depends on. Concrete
// adapters live in pkg/llmprovider and are injected at startup; the
// extractor works without one.
type Provider interface {
	Complete(ctx context.Context, userPrompt, systemPrompt string) (string, error)
}

// minConfidence is the emission threshold for heuristic candidates.
const minConfidence = 0.7

// Task TTLs. High-priority tasks expire faster so stale urgency does not
// linger in capsules.
const (
	ttlTaskSeconds   = int64(7 * 24 * 60 * 60)
	ttlUrgentSeconds = int64(2 * 24 * 60 * 60)
)

// candidate is a scored extraction candidate before it becomes a Memory.
// Confidence is kept until deduplication so the hybrid strategy can pick
// the stronger of two overlapping candidates.
type candidate struct {
	kind       store.MemoryKind
	topic      string
	text       string
	snippet    *store.Snippet
	entities   []string
	confidence float64
	ttlSeconds *int64
}

func (c candidate) toMemory(turn *store.Turn) *store.Memory {
	return &store.Memory{
		ID:         ids.New(ids.PrefixMemory),
		Kind:       c.kind,
		Topic:      c.topic,
		Text:       c.text,
		Snippet:    c.snippet,
		Entities:   c.entities,
		Provenance: []string{turn.ID},
		CreatedAt:  time.Now().UTC(),
		TTLSeconds: c.ttlSeconds,
		Importance: 5,
		Status:     store.StatusFleeting,
		Version:    1,
	}
}

func toMemories(cands []candidate, turn *store.Turn) []*store.Memory {
	out := make([]*store.Memory, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.toMemory(turn))
	}
	return out
}
