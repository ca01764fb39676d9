// Package agentic derives and maintains the sidecar metadata layer: per-
// memory context/keywords/tags, a Jaccard-similarity keyword link graph
// kept symmetric across rows, and a capped evolution history.
package agentic

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ashvinar/memory-layer/internal/apperr"
	"github.com/ashvinar/memory-layer/internal/store"
)

const (
	maxTags             = 12
	maxKeywordTags      = 4
	maxLinks            = 8
	maxEvolutionHistory = 25
	similarityThreshold = 0.65
	contextLinkStrength = 0.6
	contextMaxChars     = 96
)

// Service derives and upserts agentic rows.
type Service struct {
	store store.Storer
}

// New builds an agentic Service backed by s.
func New(s store.Storer) *Service {
	return &Service{store: s}
}

// Upsert implements upsert_agentic_memory: derive context/keywords/tags/
// links for m, merge with any existing row's links and evolution history,
// persist, and propagate the bidirectional link invariant to every linked
// row. Fails only on underlying store errors.
func (svc *Service) Upsert(m *store.Memory) (*store.AgenticMemory, error) {
	content := m.Text
	if m.Snippet != nil && strings.TrimSpace(m.Snippet.Text) != "" {
		content = m.Snippet.Text
	}
	context := deriveContext(m.Topic, content)
	keywords := extractKeywords(content)
	tags := deriveTags(m, context, keywords)

	now := time.Now().UTC()
	createdAt := now
	var prevLinks []store.AgenticLink
	var evolution []store.EvolutionEntry

	existing, err := svc.store.GetAgenticMemory(m.ID)
	switch {
	case err == nil:
		prevLinks = existing.Links
		evolution = existing.EvolutionHistory
		createdAt = existing.CreatedAt
	case errors.Is(err, apperr.NotFound):
		// first time seeing this memory; nothing to carry forward
	default:
		return nil, err
	}

	links, err := svc.computeLinks(m.ID, keywords, context, prevLinks)
	if err != nil {
		return nil, err
	}

	snapshot := append([]string{context}, keywords...)
	evolution = append(evolution, store.EvolutionEntry{
		Timestamp: now,
		Summary:   "Refreshed agentic attributes",
		Snapshot:  snapshot,
	})
	if len(evolution) > maxEvolutionHistory {
		evolution = evolution[len(evolution)-maxEvolutionHistory:]
	}

	a := &store.AgenticMemory{
		MemoryID:         m.ID,
		Content:          content,
		Context:          context,
		Keywords:         keywords,
		Tags:             tags,
		Category:         m.Kind,
		Links:            links,
		LastAccessed:     now,
		CreatedAt:        createdAt,
		EvolutionHistory: evolution,
	}
	if err := svc.store.UpsertAgenticMemory(a); err != nil {
		return nil, err
	}

	if err := svc.maintainBidirectional(m.ID, links); err != nil {
		return nil, err
	}

	return a, nil
}

// computeLinks proposes links against every other agentic row (Jaccard
// similarity above threshold, or equal non-empty-keyword contexts), merges
// them with prevLinks keeping the max strength per target, sorts
// descending, and caps at maxLinks.
func (svc *Service) computeLinks(memoryID string, keywords []string, context string, prevLinks []store.AgenticLink) ([]store.AgenticLink, error) {
	all, err := svc.store.ListAgenticMemories()
	if err != nil {
		return nil, err
	}

	byTarget := make(map[string]store.AgenticLink, len(prevLinks))
	for _, l := range prevLinks {
		byTarget[l.Target] = l
	}

	for _, other := range all {
		if other.MemoryID == memoryID {
			continue
		}
		var link store.AgenticLink
		if sim := jaccard(keywords, other.Keywords); sim > similarityThreshold {
			link = store.AgenticLink{Target: other.MemoryID, Strength: sim, Rationale: fmt.Sprintf("keyword similarity %.1f%%", sim*100)}
		} else if context != "" && context == other.Context && len(keywords) > 0 && len(other.Keywords) > 0 {
			link = store.AgenticLink{Target: other.MemoryID, Strength: contextLinkStrength, Rationale: "shared context " + context}
		} else {
			continue
		}
		if existing, ok := byTarget[link.Target]; !ok || link.Strength > existing.Strength {
			byTarget[link.Target] = link
		}
	}

	return sortAndCapLinks(byTarget), nil
}

// maintainBidirectional ensures that for every outgoing link memoryID ->
// target at strength s, target's own row carries target -> memoryID at a
// strength >= s.
func (svc *Service) maintainBidirectional(memoryID string, links []store.AgenticLink) error {
	for _, link := range links {
		target, err := svc.store.GetAgenticMemory(link.Target)
		if err != nil {
			if errors.Is(err, apperr.NotFound) {
				continue
			}
			return err
		}

		back := store.AgenticLink{Target: memoryID, Strength: link.Strength, Rationale: "mirrors " + link.Rationale}
		merged, changed := mergeLink(target.Links, back)
		if !changed {
			continue
		}
		target.Links = merged
		if err := svc.store.UpsertAgenticMemory(target); err != nil {
			return err
		}
	}
	return nil
}

func mergeLink(existing []store.AgenticLink, newLink store.AgenticLink) ([]store.AgenticLink, bool) {
	out := make([]store.AgenticLink, len(existing))
	copy(out, existing)

	for i, l := range out {
		if l.Target == newLink.Target {
			if newLink.Strength > l.Strength {
				out[i] = newLink
				return sortAndCapSlice(out), true
			}
			return out, false
		}
	}
	out = append(out, newLink)
	return sortAndCapSlice(out), true
}

func sortAndCapLinks(byTarget map[string]store.AgenticLink) []store.AgenticLink {
	links := make([]store.AgenticLink, 0, len(byTarget))
	for _, l := range byTarget {
		links = append(links, l)
	}
	return sortAndCapSlice(links)
}

func sortAndCapSlice(links []store.AgenticLink) []store.AgenticLink {
	sort.Slice(links, func(i, j int) bool {
		if links[i].Strength != links[j].Strength {
			return links[i].Strength > links[j].Strength
		}
		return links[i].Target < links[j].Target
	})
	if len(links) > maxLinks {
		links = links[:maxLinks]
	}
	return links
}

// deriveContext picks the trimmed topic if non-empty, else the first
// sentence of content capped at contextMaxChars, else "general".
func deriveContext(topic, content string) string {
	if t := strings.TrimSpace(topic); t != "" {
		return t
	}
	if sentence := firstSentence(content); sentence != "" {
		runes := []rune(sentence)
		if len(runes) > contextMaxChars {
			runes = runes[:contextMaxChars]
		}
		return string(runes)
	}
	return "general"
}

func firstSentence(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	if idx := strings.IndexAny(trimmed, ".!?"); idx != -1 {
		return strings.TrimSpace(trimmed[:idx])
	}
	return trimmed
}

// deriveTags builds the prefixed tag set: one kind:/topic:/context: tag
// each, lang: when a snippet language exists, and up to four kw: tags;
// whitespace-normalized, deduped, sorted, truncated.
func deriveTags(m *store.Memory, context string, keywords []string) []string {
	raw := []string{"kind:" + string(m.Kind)}
	if topic := strings.TrimSpace(m.Topic); topic != "" {
		raw = append(raw, "topic:"+strings.ToLower(topic))
	}
	if context != "" {
		raw = append(raw, "context:"+strings.ToLower(context))
	}
	if m.Snippet != nil && m.Snippet.Language != "" {
		raw = append(raw, "lang:"+strings.ToLower(m.Snippet.Language))
	}
	for i, kw := range keywords {
		if i >= maxKeywordTags {
			break
		}
		raw = append(raw, "kw:"+kw)
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		normalized := strings.Join(strings.Fields(tag), " ")
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	sort.Strings(out)
	if len(out) > maxTags {
		out = out[:maxTags]
	}
	return out
}
