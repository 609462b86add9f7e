package graph

import "github.com/MrWong99/dialmap/internal/similarity"

// lengthRatioFloor prefilters candidates before scoring: when one normalized
// string is less than half the length of the other, no scoring strategy can
// reach the identity threshold, so the pair is skipped outright.
const lengthRatioFloor = 0.5

// findMatchLocked returns the existing node whose normalized utterance
// scores highest against normalized, provided the score meets the identity
// threshold. Ties break towards the earlier-created node, which makes
// matching deterministic regardless of scheduling. Returns nil when no node
// qualifies.
//
// Callers must hold g.mu: the find must share a critical section with the
// subsequent insert or two workers observing the same utterance could both
// miss and both insert.
func (g *Graph) findMatchLocked(normalized string) *Node {
	var (
		best      *Node
		bestScore float64
	)

	for _, n := range g.nodes {
		if !lengthsComparable(len(normalized), len(n.Normalized)) {
			continue
		}
		score := similarity.Score(normalized, n.Normalized)
		if score < g.threshold {
			continue
		}
		// Strictly-greater keeps the earliest node on ties; nodes iterate
		// in creation order.
		if score > bestScore {
			best = n
			bestScore = score
		}
	}
	return best
}

// lengthsComparable reports whether two normalized lengths are close enough
// for a similarity match to be possible. Empty strings never match anything
// (similarity.Score returns 0 for them), so they are filtered here too.
func lengthsComparable(a, b int) bool {
	if a == 0 || b == 0 {
		return false
	}
	shorter, longer := a, b
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	return float64(shorter) >= lengthRatioFloor*float64(longer)
}
