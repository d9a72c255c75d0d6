// Package textutil provides text normalization and near-duplicate
// detection helpers shared by the extractor and the finalizer.
package textutil

import "strings"

// DuplicateThreshold is the Jaccard similarity above which two note
// contents are considered near-duplicates. Exactly at the threshold is
// NOT a duplicate; strictly greater is.
const DuplicateThreshold = 0.85

// NormalizeKey lowercases and trims a value for use as a map key in the
// subject estimator's weighted maps.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// JaccardSimilarity computes |A∩B| / |A∪B| over the case-folded,
// whitespace-tokenized word sets of a and b. Two empty texts are
// identical (similarity 1); one empty text is fully dissimilar.
func JaccardSimilarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// IsNearDuplicate reports whether the two texts exceed DuplicateThreshold.
func IsNearDuplicate(a, b string) bool {
	return JaccardSimilarity(a, b) > DuplicateThreshold
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
