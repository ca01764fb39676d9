package extraction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ExtractedMemory is the wire shape the LLM is asked to return per memory.
type ExtractedMemory struct {
	Kind       string   `json:"kind"`
	Text       string   `json:"text"`
	Topic      string   `json:"topic,omitempty"`
	Entities   []string `json:"entities"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

type extractionPayload struct {
	Memories []ExtractedMemory `json:"memories"`
}

var validMemoryKinds = map[string]bool{
	"decision": true,
	"fact":     true,
	"snippet":  true,
	"task":     true,
}

// ParseMemories parses the raw LLM response into memory candidates.
// Handles markdown code fences and attempts repair on malformed JSON.
func ParseMemories(raw string) ([]ExtractedMemory, error) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))
	if cleaned == "" {
		return nil, nil
	}

	// Try parsing as the requested {memories: [...]} object.
	var result extractionPayload
	if err := json.Unmarshal([]byte(cleaned), &result); err == nil {
		return filterMemories(result.Memories), nil
	}

	// Some models return a bare array.
	var arr []ExtractedMemory
	if err := json.Unmarshal([]byte(cleaned), &arr); err == nil {
		return filterMemories(arr), nil
	}

	// Last resort: regex repair.
	repaired := repairMemories(cleaned)
	if len(repaired) == 0 {
		return nil, fmt.Errorf("extraction: failed to parse LLM response")
	}
	return repaired, nil
}

// stripCodeFence removes markdown code block wrappers (```json ... ```).
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	// Remove first line (```json or ```)
	if len(lines) > 0 {
		lines = lines[1:]
	}
	// Remove last line if it's a closing fence
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// filterMemories validates and cleans parsed memories.
func filterMemories(in []ExtractedMemory) []ExtractedMemory {
	out := make([]ExtractedMemory, 0, len(in))
	for _, m := range in {
		m.Text = strings.TrimSpace(m.Text)
		if m.Text == "" {
			continue
		}

		m.Kind = strings.ToLower(strings.TrimSpace(m.Kind))
		if !validMemoryKinds[m.Kind] {
			continue
		}

		if m.Confidence <= 0 {
			m.Confidence = 0.8
		}

		m.Topic = strings.TrimSpace(m.Topic)
		m.Reasoning = strings.TrimSpace(m.Reasoning)

		if len(m.Entities) > 0 {
			cleaned := make([]string, 0, len(m.Entities))
			for _, e := range m.Entities {
				e = strings.TrimSpace(e)
				if e != "" {
					cleaned = append(cleaned, e)
				}
			}
			m.Entities = cleaned
		}

		out = append(out, m)
	}
	return out
}

// memoryPattern matches complete memory JSON objects for repair.
var memoryPattern = regexp.MustCompile(
	`\{\s*"kind"\s*:\s*"[^"]+"\s*,\s*"text"\s*:\s*"[^"]+"\s*(?:,\s*"[^"]+"\s*:\s*(?:"[^"]*"|[\d.]+|\[[^\]]*\]|true|false|null))*\s*\}`,
)

// repairMemories attempts to recover memory objects from malformed JSON.
func repairMemories(raw string) []ExtractedMemory {
	matches := memoryPattern.FindAllString(raw, -1)
	memories := make([]ExtractedMemory, 0, len(matches))

	for _, m := range matches {
		var item ExtractedMemory
		if err := json.Unmarshal([]byte(m), &item); err != nil {
			continue
		}
		memories = append(memories, item)
	}

	return filterMemories(memories)
}
