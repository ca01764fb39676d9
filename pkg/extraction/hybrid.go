package extraction

// Complexity gates for the hybrid strategy: the LLM is invoked only when
// the text is long or argumentative enough that heuristics alone are likely
// to miss structure.
const (
	complexSentenceCount = 5
	complexMarkerCount   = 2
)

// isComplex reports whether text warrants an LLM call under the hybrid
// strategy: more than five sentences, or at least two reasoning markers, or
// at least two action-verb markers.
func isComplex(text string) bool {
	if len(splitSentences(text)) > complexSentenceCount {
		return true
	}
	lower := fastLower(text)
	if countReasoningMarkers(lower) >= complexMarkerCount {
		return true
	}
	return countActionMarkers(lower) >= complexMarkerCount
}

// dedupe collapses candidates sharing (kind, topic), keeping the higher
// confidence; ties break toward the candidate with more entities. Order of
// first appearance is preserved.
func dedupe(cands []candidate) []candidate {
	type key struct {
		kind, topic string
	}

	index := make(map[key]int, len(cands))
	out := make([]candidate, 0, len(cands))
	for _, c := range cands {
		k := key{kind: string(c.kind), topic: c.topic}
		i, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, c)
			continue
		}
		if c.confidence > out[i].confidence ||
			(c.confidence == out[i].confidence && len(c.entities) > len(out[i].entities)) {
			out[i] = c
		}
	}
	return out
}
