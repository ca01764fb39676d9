package extraction

import (
	"context"
	"fmt"

	"github.com/ashvinar/memory-layer/internal/store"
)

// llmCandidates asks the provider for memories and maps the parsed JSON into
// candidates. Errors propagate to the Service, which falls back to the
// heuristic output; nothing here touches storage.
func llmCandidates(ctx context.Context, provider Provider, turn *store.Turn) ([]candidate, error) {
	if provider == nil {
		return nil, fmt.Errorf("extraction: no provider configured")
	}

	raw, err := provider.Complete(ctx, BuildUserPrompt(turn.UserText), SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("extraction: provider call failed: %w", err)
	}

	parsed, err := ParseMemories(raw)
	if err != nil {
		return nil, err
	}

	fallbackTopic := inferTopic(turn.Source, turn.UserText)
	cands := make([]candidate, 0, len(parsed))
	for _, m := range parsed {
		topic := m.Topic
		if topic == "" {
			topic = fallbackTopic
		}

		var ttl *int64
		if m.Kind == string(store.KindTask) {
			t := ttlTaskSeconds
			ttl = &t
		}

		cands = append(cands, candidate{
			kind:       store.MemoryKind(m.Kind),
			topic:      topic,
			text:       m.Text,
			entities:   m.Entities,
			confidence: m.Confidence,
			ttlSeconds: ttl,
		})
	}
	return cands, nil
}
