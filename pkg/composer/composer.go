// Package composer synthesizes bounded context capsules from the memory
// store: budget-aware style selection, template rendering, per-thread
// capsule caching with one level of undo, and qualitative delta
// classification between successive capsules.
package composer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/ids"
	"github.com/ashvinar/memory-layer/internal/store"
)

// Style is the capsule rendering tier, selected by token budget.
type Style string

const (
	StyleShort    Style = "Short"
	StyleStandard Style = "Standard"
	StyleDetailed Style = "Detailed"
)

// Budget thresholds and the token→memory conversion constants.
const (
	shortBudgetMax    = 100
	standardBudgetMax = 300
	tokensPerMemory   = 40
	minMemoryLimit    = 5
	maxMemoryLimit    = 50
	capsuleTTLSec     = 600
)

// ContextRequest is the composer's input, as received over the wire.
type ContextRequest struct {
	TopicHint     string   `json:"topic_hint,omitempty"`
	Intent        string   `json:"intent,omitempty"`
	BudgetTokens  int      `json:"budget_tokens"`
	Scopes        []string `json:"scopes,omitempty"`
	ThreadKey     string   `json:"thread_key,omitempty"`
	LastCapsuleID string   `json:"last_capsule_id,omitempty"`
}

// Message is one chat message carried inside a capsule.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProvenanceRef names one source the capsule was synthesized from.
type ProvenanceRef struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
}

// ContextCapsule is a token-budgeted preamble ready for injection into a
// downstream LLM conversation.
type ContextCapsule struct {
	CapsuleID    string          `json:"capsule_id"`
	PreambleText string          `json:"preamble_text"`
	Messages     []Message       `json:"messages"`
	Provenance   []ProvenanceRef `json:"provenance"`
	DeltaOf      string          `json:"delta_of,omitempty"`
	TTLSec       int             `json:"ttl_sec"`
	TokenCount   int             `json:"token_count,omitempty"`
	Style        Style           `json:"style,omitempty"`
}

// threadCapsules keeps the last two capsules rendered for a thread key, so
// undo has one generation to fall back to.
type threadCapsules struct {
	current  *ContextCapsule
	previous *ContextCapsule
}

// MemoryFetcher pulls topic-scoped memories from the indexing service.
// Optional: the composer works without one, and any fetch failure degrades
// to the high-priority view alone.
type MemoryFetcher interface {
	FetchTopicMemories(ctx context.Context, topic string, limit int) ([]*store.Memory, error)
}

// Composer renders capsules from the high-priority memory view. It never
// fails a request: fetch errors degrade to an empty memory list.
type Composer struct {
	store   store.Storer
	fetcher MemoryFetcher
	logger  *zap.SugaredLogger

	mu    sync.RWMutex
	cache map[string]*threadCapsules
}

// New builds a Composer over s.
func New(s store.Storer, logger *zap.SugaredLogger) *Composer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Composer{
		store:  s,
		logger: logger,
		cache:  make(map[string]*threadCapsules),
	}
}

// SetFetcher wires the indexing-service client used to supplement capsules
// with topic-scoped memories. Must be called before the composer serves
// requests.
func (c *Composer) SetFetcher(f MemoryFetcher) {
	c.fetcher = f
}

// StyleForBudget selects the rendering tier: <100 Short, <300 Standard,
// else Detailed.
func StyleForBudget(budgetTokens int) Style {
	switch {
	case budgetTokens < shortBudgetMax:
		return StyleShort
	case budgetTokens < standardBudgetMax:
		return StyleStandard
	default:
		return StyleDetailed
	}
}

// memoryLimitForBudget converts a token budget into a memory fetch limit:
// clamp(budget/40, 5, 50).
func memoryLimitForBudget(budgetTokens int) int {
	limit := budgetTokens / tokensPerMemory
	if limit < minMemoryLimit {
		return minMemoryLimit
	}
	if limit > maxMemoryLimit {
		return maxMemoryLimit
	}
	return limit
}

// Compose renders a capsule for the request and, when a thread key is set,
// caches it under that key (last-writer-wins).
func (c *Composer) Compose(req ContextRequest) *ContextCapsule {
	topic := req.TopicHint
	if topic == "" {
		topic = "General"
	}
	style := StyleForBudget(req.BudgetTokens)

	limit := memoryLimitForBudget(req.BudgetTokens)
	memories, err := c.store.GetHighPriorityMemories(limit)
	if err != nil {
		c.logger.Warnw("high-priority fetch failed, composing empty capsule",
			"topic", topic, "error", err)
		memories = nil
	}
	if req.TopicHint != "" {
		memories = c.supplementFromTopic(req.TopicHint, memories, limit)
	}

	preamble := renderPreamble(style, topic, memories)

	capsule := &ContextCapsule{
		CapsuleID:    ids.New(ids.PrefixCapsule),
		PreambleText: preamble,
		Messages:     []Message{{Role: "system", Content: preamble}},
		Provenance:   []ProvenanceRef{{Type: "memory", Ref: fmt.Sprintf("%d memories", len(memories))}},
		DeltaOf:      req.LastCapsuleID,
		TTLSec:       capsuleTTLSec,
		TokenCount:   estimateTokens(preamble),
		Style:        style,
	}

	if req.ThreadKey != "" {
		c.mu.Lock()
		entry := c.cache[req.ThreadKey]
		if entry == nil {
			entry = &threadCapsules{}
			c.cache[req.ThreadKey] = entry
		}
		entry.previous = entry.current
		entry.current = capsule
		c.mu.Unlock()
	}

	return capsule
}

// Cached returns the capsule most recently composed for threadKey.
func (c *Composer) Cached(threadKey string) (*ContextCapsule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry := c.cache[threadKey]
	if entry == nil || entry.current == nil {
		return nil, false
	}
	return entry.current, true
}

// Undo pops the current capsule for threadKey and reinstates the prior
// generation. Fails NotFound when there is nothing to fall back to.
func (c *Composer) Undo(threadKey string) (*ContextCapsule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.cache[threadKey]
	if entry == nil || entry.previous == nil {
		return nil, apperr.NewNotFound("no prior capsule for thread %s", threadKey)
	}
	entry.current = entry.previous
	entry.previous = nil
	return entry.current, nil
}

// supplementFromTopic fills the capsule's remaining memory capacity with
// topic-scoped rows fetched from the indexing service. The call carries its
// own timeout and is never made while any store gate is held; a failed or
// absent fetcher leaves the high-priority set untouched.
func (c *Composer) supplementFromTopic(topic string, memories []*store.Memory, limit int) []*store.Memory {
	if c.fetcher == nil || len(memories) >= limit {
		return memories
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	extra, err := c.fetcher.FetchTopicMemories(ctx, topic, limit-len(memories))
	if err != nil {
		c.logger.Warnw("topic memory fetch failed, using high-priority view only",
			"topic", topic, "error", err)
		return memories
	}

	seen := make(map[string]bool, len(memories))
	for _, m := range memories {
		seen[m.ID] = true
	}
	for _, m := range extra {
		if len(memories) >= limit {
			break
		}
		if m == nil || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		memories = append(memories, m)
	}
	return memories
}

// estimateTokens is the conservative len/4 heuristic.
func estimateTokens(text string) int {
	return len(text) / 4
}
