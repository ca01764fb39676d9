package composer

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashvinar/memory-layer/internal/store"
)

// Per-style rendering caps.
const (
	shortGistChars      = 50
	shortSnippetChars   = 80
	shortMaxGists       = 2
	standardMaxGists    = 2
	standardSnippetRows = 3
	detailedMaxDecision = 3
	detailedMaxFacts    = 5
	detailedMaxTasks    = 3
	detailedMaxSnippets = 2
)

const instructionFooter = "Use this context to stay consistent with prior decisions. Prefer recent facts over stale ones."

func renderPreamble(style Style, topic string, memories []*store.Memory) string {
	switch style {
	case StyleShort:
		return renderShort(topic, memories)
	case StyleStandard:
		return renderStandard(topic, memories)
	default:
		return renderDetailed(topic, memories)
	}
}

// renderShort emits one context line, up to two gists, and at most one
// truncated snippet line.
func renderShort(topic string, memories []*store.Memory) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Context: %s", topic)

	for i, m := range memories {
		if i >= shortMaxGists {
			break
		}
		sb.WriteString("\n")
		sb.WriteString(gist(m.Text, shortGistChars))
	}

	if snip := firstSnippet(memories); snip != nil {
		line := strings.SplitN(strings.TrimSpace(snip.Text), "\n", 2)[0]
		sb.WriteString("\n")
		sb.WriteString(truncate(line, shortSnippetChars))
	}
	return sb.String()
}

// renderStandard emits a bulleted block with relative-time gists, a short
// snippet excerpt with its location, and the instruction footer.
func renderStandard(topic string, memories []*store.Memory) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- Topic: %s\n", topic)

	for i, m := range memories {
		if i >= standardMaxGists {
			break
		}
		fmt.Fprintf(&sb, "- %s (%s)\n", gist(m.Text, shortGistChars), relativeTime(m.CreatedAt))
	}

	if snip := firstSnippet(memories); snip != nil {
		loc := snip.Location
		if loc == "" {
			loc = snip.Title
		}
		if loc != "" {
			fmt.Fprintf(&sb, "- Snippet (%s):\n", loc)
		} else {
			sb.WriteString("- Snippet:\n")
		}
		for i, line := range strings.Split(strings.TrimSpace(snip.Text), "\n") {
			if i >= standardSnippetRows {
				break
			}
			fmt.Fprintf(&sb, "    %s\n", line)
		}
	}

	sb.WriteString("- ")
	sb.WriteString(instructionFooter)
	return sb.String()
}

// renderDetailed emits a markdown document grouped by kind, followed by an
// instructions section.
func renderDetailed(topic string, memories []*store.Memory) string {
	byKind := make(map[store.MemoryKind][]*store.Memory)
	for _, m := range memories {
		byKind[m.Kind] = append(byKind[m.Kind], m)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Context: %s\n", topic)

	writeSection := func(title string, kind store.MemoryKind, max int) {
		group := byKind[kind]
		if len(group) == 0 {
			return
		}
		fmt.Fprintf(&sb, "\n## %s\n", title)
		for i, m := range group {
			if i >= max {
				break
			}
			if kind == store.KindSnippet && m.Snippet != nil {
				fmt.Fprintf(&sb, "- %s\n", gist(m.Text, shortGistChars))
				lang := m.Snippet.Language
				fmt.Fprintf(&sb, "```%s\n%s\n```\n", lang, strings.TrimSpace(m.Snippet.Text))
				continue
			}
			fmt.Fprintf(&sb, "- %s (%s)\n", strings.TrimSpace(m.Text), relativeTime(m.CreatedAt))
		}
	}

	writeSection("Decisions", store.KindDecision, detailedMaxDecision)
	writeSection("Facts", store.KindFact, detailedMaxFacts)
	writeSection("Tasks", store.KindTask, detailedMaxTasks)
	writeSection("Code", store.KindSnippet, detailedMaxSnippets)

	sb.WriteString("\n## Instructions\n")
	sb.WriteString(instructionFooter)
	sb.WriteString("\n")
	return sb.String()
}

// gist returns the first sentence of text, truncated with an ellipsis.
func gist(text string, max int) string {
	trimmed := strings.TrimSpace(text)
	if idx := strings.IndexAny(trimmed, ".!?"); idx != -1 {
		trimmed = trimmed[:idx+1]
	}
	return truncate(trimmed, max)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

func firstSnippet(memories []*store.Memory) *store.Snippet {
	for _, m := range memories {
		if m.Snippet != nil && strings.TrimSpace(m.Snippet.Text) != "" {
			return m.Snippet
		}
	}
	return nil
}

// relativeTime renders an Xm/h/d/w ago suffix.
func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/(24*7)))
	}
}
