package explore

import (
	"github.com/MrWong99/dialmap/internal/graph"
	"github.com/MrWong99/dialmap/internal/prompt"
)

// scriptTo reconstructs the shortest path to target as the (agent utterance,
// user response) steps a caller must replay to reach that state. Every
// depth-0 node is an entry point: with strict root checking off, greeting
// variants sit next to the root at depth 0 and their subtrees are scripted
// from the variant, not the root. Returns ok=false when target is reachable
// from no entry point, which can happen when the node was discovered through
// a path whose earlier edges were pruned by dedup in a concurrent call.
func scriptTo(snap graph.Snapshot, target graph.NodeID) ([]prompt.PathStep, bool) {
	if snap.Root == "" {
		return nil, false
	}

	utterances := make(map[graph.NodeID]string, len(snap.Nodes))
	for _, n := range snap.Nodes {
		utterances[n.ID] = n.Utterance
	}

	type hop struct {
		from     graph.NodeID
		response string
	}

	// BFS from all entry points; first visit wins, so paths are shortest by
	// hop count. The root is always level 0, so it seeds the search even in
	// a single-greeting graph.
	parent := make(map[graph.NodeID]hop, len(snap.Nodes))
	var queue []graph.NodeID
	visited := make(map[graph.NodeID]bool)
	for _, n := range snap.Nodes {
		if n.DepthMin == 0 {
			queue = append(queue, n.ID)
			visited[n.ID] = true
		}
	}

	for len(queue) > 0 && !visited[target] {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range snap.Edges {
			if e.From != cur || visited[e.To] {
				continue
			}
			visited[e.To] = true
			parent[e.To] = hop{from: cur, response: e.UserResponse}
			queue = append(queue, e.To)
		}
	}
	if !visited[target] {
		return nil, false
	}

	var steps []prompt.PathStep
	for cur := target; ; {
		h, ok := parent[cur]
		if !ok {
			// Reached an entry point.
			break
		}
		steps = append(steps, prompt.PathStep{
			Agent:    utterances[h.from],
			Response: h.response,
		})
		cur = h.from
	}
	// Reverse into entry-first order.
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps, true
}
