package agentic

import (
	"regexp"
	"sort"
	"strings"

	"github.com/orsinium-labs/stopwords"
)

const maxKeywords = 8

var tokenPattern = regexp.MustCompile(`[a-z0-9][a-z0-9_\-/]{3,}`)

var stopwordChecker = stopwords.MustGet("en")

// extractKeywords tokenizes lowercased content with tokenPattern, drops
// stopwords, and ranks by frequency desc, then token length desc, then
// lexicographic asc, keeping the top maxKeywords.
func extractKeywords(content string) []string {
	lower := strings.ToLower(content)
	tokens := tokenPattern.FindAllString(lower, -1)

	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		if stopwordChecker.Contains(tok) {
			continue
		}
		counts[tok]++
	}

	uniq := make([]string, 0, len(counts))
	for tok := range counts {
		uniq = append(uniq, tok)
	}
	sort.Slice(uniq, func(i, j int) bool {
		a, b := uniq[i], uniq[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})

	if len(uniq) > maxKeywords {
		uniq = uniq[:maxKeywords]
	}
	return uniq
}
