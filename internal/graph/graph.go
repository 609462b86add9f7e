// Package graph implements the shared conversation graph built during
// exploration. Nodes are equivalence classes of agent utterances under the
// similarity relation; edges are user responses that transition between
// them.
//
// All mutating operations serialise through a single mutex, and lookups that
// precede an insert run under that same lock, so concurrent workers that
// observe the same agent utterance always converge on one node. Readers get
// consistent point-in-time copies via [Graph.Snapshot] and never hold the
// write lock across I/O.
package graph

import (
	"fmt"
	"sync"

	"github.com/MrWong99/dialmap/internal/textnorm"
)

// DefaultSimilarityThreshold is the minimum similarity score at which two
// utterances are considered the same conversational state.
const DefaultSimilarityThreshold = 0.85

// NodeID is a stable opaque node identifier assigned at creation. IDs encode
// creation order, so lexicographic comparison of equal-length IDs matches
// insertion order.
type NodeID string

// Node is one conversational state of the remote agent.
type Node struct {
	// ID is the stable identifier assigned at creation.
	ID NodeID

	// Utterance is the canonical agent text, first observed form kept.
	Utterance string

	// Normalized is textnorm.Normalize(Utterance), precomputed for matching.
	Normalized string

	// Terminal marks a conversation endpoint (goodbye, voicemail, transfer).
	Terminal bool

	// DepthMin is the shortest known path length from the root.
	DepthMin int

	// VisitCount is the number of times this state has been observed.
	VisitCount int
}

// Edge is a labelled transition caused by a specific user response.
// Identity is (From, textnorm.Normalize(UserResponse)).
type Edge struct {
	From NodeID
	To   NodeID

	// UserResponse is the scripted user utterance that produced this
	// transition, first observed form kept.
	UserResponse string

	// ObservationCount is the number of times the transition was traversed.
	ObservationCount int
}

// edgeKey identifies an outgoing edge within its source node.
type edgeKey struct {
	from NodeID
	resp string // normalized user response
}

// Option configures a [Graph].
type Option func(*Graph)

// WithSimilarityThreshold overrides the node-identity threshold.
// Default: [DefaultSimilarityThreshold].
func WithSimilarityThreshold(threshold float64) Option {
	return func(g *Graph) { g.threshold = threshold }
}

// Graph is the thread-safe conversation graph. The zero value is not usable;
// construct with [New].
type Graph struct {
	threshold float64

	mu    sync.Mutex
	nodes []*Node        // insertion order; index is the creation sequence
	byID  map[NodeID]int // id → index into nodes
	edges map[edgeKey]*Edge
	root  NodeID // first node created; empty until then
	seq   int
}

// New returns an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		threshold: DefaultSimilarityThreshold,
		byID:      make(map[NodeID]int),
		edges:     make(map[edgeKey]*Edge),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// GetOrCreateNode finds the node matching utterance or inserts a new one.
// The find and the insert happen under one lock acquisition, so two workers
// racing on the same utterance cannot create duplicates. depth is the path
// length at which the utterance was observed; an existing node's DepthMin is
// lowered when a shorter path is found. The matched or created node's
// VisitCount is incremented.
//
// The first node ever created becomes the graph root.
func (g *Graph) GetOrCreateNode(utterance string, depth int) (NodeID, bool) {
	normalized := textnorm.Normalize(utterance)

	g.mu.Lock()
	defer g.mu.Unlock()

	if n := g.findMatchLocked(normalized); n != nil {
		n.VisitCount++
		if depth < n.DepthMin {
			n.DepthMin = depth
		}
		return n.ID, false
	}

	g.seq++
	n := &Node{
		ID:         NodeID(fmt.Sprintf("n%04d", g.seq)),
		Utterance:  utterance,
		Normalized: normalized,
		DepthMin:   depth,
		VisitCount: 1,
	}
	g.byID[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	if g.root == "" {
		g.root = n.ID
	}
	return n.ID, true
}

// Root returns the root node id, or "" when the graph is still empty.
func (g *Graph) Root() NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.root
}

// AddEdge records the transition from → to labelled with userResponse.
// When an edge with the same (from, normalized response) already exists its
// observation count is incremented and false is returned. Both endpoints
// must exist; referencing an unknown node is a programming error and panics.
func (g *Graph) AddEdge(from NodeID, userResponse string, to NodeID) bool {
	key := edgeKey{from: from, resp: textnorm.Normalize(userResponse)}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.byID[from]; !ok {
		panic(fmt.Sprintf("graph: AddEdge from unknown node %q", from))
	}
	if _, ok := g.byID[to]; !ok {
		panic(fmt.Sprintf("graph: AddEdge to unknown node %q", to))
	}

	if e, ok := g.edges[key]; ok {
		e.ObservationCount++
		return false
	}
	g.edges[key] = &Edge{
		From:             from,
		To:               to,
		UserResponse:     userResponse,
		ObservationCount: 1,
	}
	return true
}

// MarkTerminal flags id as a conversation endpoint. Unknown ids are ignored.
func (g *Graph) MarkTerminal(id NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if idx, ok := g.byID[id]; ok {
		g.nodes[idx].Terminal = true
	}
}

// IsTerminal reports whether id is marked as a conversation endpoint.
func (g *Graph) IsTerminal(id NodeID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if idx, ok := g.byID[id]; ok {
		return g.nodes[idx].Terminal
	}
	return false
}

// Depth returns the shortest known path length from root to id.
func (g *Graph) Depth(id NodeID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if idx, ok := g.byID[id]; ok {
		return g.nodes[idx].DepthMin
	}
	return 0
}

// OutgoingResponses returns the normalized user responses of all edges
// leaving id. The explorer uses this to avoid re-enqueuing candidate
// responses that already have an observed transition.
func (g *Graph) OutgoingResponses(id NodeID) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []string
	for key := range g.edges {
		if key.from == id {
			out = append(out, key.resp)
		}
	}
	return out
}

// Snapshot is an immutable point-in-time copy of the graph. Nodes appear in
// creation order; edge order is unspecified.
type Snapshot struct {
	Root  NodeID
	Nodes []Node
	Edges []Edge
}

// Snapshot returns a consistent read-only copy of the graph. The copy is
// taken under the graph lock but contains no shared pointers, so callers may
// hold it indefinitely (HTTP responses, prompt construction) without
// blocking writers.
func (g *Graph) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Snapshot{
		Root:  g.root,
		Nodes: make([]Node, len(g.nodes)),
		Edges: make([]Edge, 0, len(g.edges)),
	}
	for i, n := range g.nodes {
		s.Nodes[i] = *n
	}
	for _, e := range g.edges {
		s.Edges = append(s.Edges, *e)
	}
	return s
}

// FrontierCandidates returns up to limit non-terminal nodes whose outgoing
// edge count is below breadthCap, in creation order. These are the states
// still worth expanding.
func (g *Graph) FrontierCandidates(limit, breadthCap int) []NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()

	outDegree := make(map[NodeID]int, len(g.nodes))
	for key := range g.edges {
		outDegree[key.from]++
	}

	var out []NodeID
	for _, n := range g.nodes {
		if len(out) >= limit {
			break
		}
		if n.Terminal {
			continue
		}
		if outDegree[n.ID] >= breadthCap {
			continue
		}
		out = append(out, n.ID)
	}
	return out
}

// NodeCount returns the current number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// EdgeCount returns the current number of distinct edges.
func (g *Graph) EdgeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.edges)
}
