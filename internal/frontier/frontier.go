// Package frontier provides the priority queue of pending exploration steps.
// Each entry pairs a graph node with a candidate user response that has not
// yet been tried from that node.
//
// Priority favours shallower nodes, then entries with fewer delivery
// attempts, with FIFO ordering inside a tie so replays under a fixed seed
// dequeue in a stable order. The queue is safe for concurrent producers and
// consumers.
package frontier

import (
	"container/heap"
	"sync"

	"github.com/MrWong99/dialmap/internal/graph"
)

// Entry is one pending exploration step: speak Response at node NodeID.
type Entry struct {
	// NodeID is the graph node to resume from. Empty for the synthetic
	// seed entry that establishes the root with a cold call.
	NodeID graph.NodeID

	// Response is the candidate user utterance to speak at the node.
	// Empty for the seed entry.
	Response string

	// Depth is the node's distance from root; shallower explores first.
	Depth int

	// Attempts counts prior failed deliveries of this entry.
	Attempts int
}

// item wraps an Entry with the monotonic insertion sequence used for FIFO
// tie-breaking.
type item struct {
	entry Entry
	seq   uint64
}

// entryHeap implements container/heap.Interface as a min-heap ordered by
// (Depth, Attempts, seq) ascending.
type entryHeap []item

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].entry.Depth != h[j].entry.Depth {
		return h[i].entry.Depth < h[j].entry.Depth
	}
	if h[i].entry.Attempts != h[j].entry.Attempts {
		return h[i].entry.Attempts < h[j].entry.Attempts
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by container/heap; callers must not
// invoke this directly.
func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(item))
}

// Pop removes and returns the last element. Called by container/heap;
// callers must not invoke this directly.
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Queue is a thread-safe priority queue of [Entry] values.
type Queue struct {
	mu   sync.Mutex
	heap entryHeap
	seq  uint64
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push enqueues e.
func (q *Queue) Push(e Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.heap, item{entry: e, seq: q.seq})
}

// Pop dequeues the highest-priority entry. Returns ok=false when the queue
// is empty; it never blocks.
func (q *Queue) Pop() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return Entry{}, false
	}
	it := heap.Pop(&q.heap).(item)
	return it.entry, true
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
