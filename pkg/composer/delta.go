package composer

import (
	"strings"
)

// Delta classifies the change between two successive capsules.
type Delta string

const (
	DeltaNoChange Delta = "NoChange"
	DeltaSmall    Delta = "Small"
	DeltaChanged  Delta = "Changed"
)

// smallDeltaThreshold is the word-set Jaccard similarity above which a
// change still counts as Small.
const smallDeltaThreshold = 0.9

// ComputeDelta compares two preambles: equal text is NoChange, a word-set
// Jaccard similarity above 0.9 is Small, anything else is Changed.
func ComputeDelta(previous, current string) Delta {
	if previous == current {
		return DeltaNoChange
	}
	if wordJaccard(previous, current) > smallDeltaThreshold {
		return DeltaSmall
	}
	return DeltaChanged
}

func wordJaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}
