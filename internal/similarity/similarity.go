// Package similarity scores how alike two normalized utterances are, on a
// [0,1] scale. It drives node identity in the conversation graph: two agent
// utterances whose score meets the configured threshold are treated as the
// same conversational state.
//
// The score is the maximum of three strategies:
//
//  1. Full-string Jaro-Winkler (catches small character-level noise).
//  2. Space-stripped Jaro-Winkler (catches tokenisation differences).
//  3. Token-set ratio: Jaro-Winkler over the sorted unique-token joins,
//     which is robust to word reordering and duplicated words.
//
// The combined score is symmetric and reflexive, and growing common material
// shared by both inputs only pulls the score towards 1.
package similarity

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// Score returns a similarity in [0,1] for two already-normalized strings.
// Identical inputs score 1. If either input is empty, the score is 0.
func Score(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	aTokens := strings.Fields(a)
	bTokens := strings.Fields(b)

	// Strategy 1: full strings.
	score := matchr.JaroWinkler(a, b, false)

	// Strategy 2: concatenated (no spaces).
	if len(aTokens) > 1 || len(bTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false); s > score {
			score = s
		}
	}

	// Strategy 3: token-set ratio.
	if s := matchr.JaroWinkler(tokenSetKey(aTokens), tokenSetKey(bTokens), false); s > score {
		score = s
	}

	if score > 1 {
		score = 1
	}
	return score
}

// tokenSetKey returns the sorted unique tokens joined by spaces. Two
// utterances containing the same words in any order produce identical keys.
func tokenSetKey(tokens []string) string {
	seen := make(map[string]struct{}, len(tokens))
	uniq := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		uniq = append(uniq, t)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, " ")
}
