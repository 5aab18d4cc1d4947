package matcher

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// DescriptionSimilarity compares two comparison keys (see ComparisonKey) and
// returns the larger of token Jaccard overlap and the Levenshtein ratio.
// Empty descriptions carry no evidence and score zero.
func DescriptionSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}

	token := tokenSimilarity(a, b)
	edit := levenshteinSimilarity(a, b)
	if edit > token {
		return edit
	}
	return token
}

// levenshteinSimilarity is one minus the edit distance over the longer length
func levenshteinSimilarity(s1, s2 string) float64 {
	distance := levenshtein.ComputeDistance(s1, s2)
	maxLen := utf8.RuneCountInString(s1)
	if l := utf8.RuneCountInString(s2); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

// tokenSimilarity is the Jaccard index of the two token sets
func tokenSimilarity(s1, s2 string) float64 {
	set1 := tokenSet(s1)
	set2 := tokenSet(s2)
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range set1 {
		if set2[token] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range strings.Fields(s) {
		set[token] = true
	}
	return set
}
