// Package progress tracks exploration statistics: call outcomes, graph
// growth, depth, and the rolling discovery window that drives plateau
// detection. Counts are mirrored into OTel instruments so the /metrics
// endpoint and the /stats endpoint always agree.
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/dialmap/internal/observe"
)

// Stats is a point-in-time copy of the exploration counters.
type Stats struct {
	CallsAttempted int
	CallsSucceeded int
	CallsFailed    int

	// FailuresByKind breaks CallsFailed down by task failure kind.
	FailuresByKind map[string]int

	Nodes              int
	Edges              int
	TerminalNodes      int
	MaxDepth           int
	DiarizationSuspect int

	StartTime time.Time
	EndTime   time.Time // zero while the run is live
}

// Duration is the elapsed run time, using the current time while the run is
// still live.
func (s Stats) Duration() time.Duration {
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartTime)
}

// Option configures a [Tracker].
type Option func(*Tracker)

// WithMetrics sets the OTel instrument set that the tracker mirrors into.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithPlateauWindow sets how many of the most recent completed calls the
// plateau check looks at. Default 20.
func WithPlateauWindow(n int) Option {
	return func(t *Tracker) { t.window = n }
}

// Tracker accumulates exploration statistics. Safe for concurrent use.
type Tracker struct {
	metrics *observe.Metrics
	window  int

	mu       sync.Mutex
	stats    Stats
	// discoveries holds, per completed call, how many new nodes plus edges
	// that call contributed. Bounded to the plateau window.
	discoveries []int
}

// NewTracker creates a tracker with the run clock started.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		window: 20,
		stats: Stats{
			FailuresByKind: make(map[string]int),
			StartTime:      time.Now(),
		},
	}
	for _, o := range opts {
		o(t)
	}
	if t.metrics == nil {
		t.metrics = observe.DefaultMetrics()
	}
	return t
}

// CallSucceeded records a completed call and the new entities it discovered.
func (t *Tracker) CallSucceeded(ctx context.Context, duration time.Duration, newNodes, newEdges int) {
	t.mu.Lock()
	t.stats.CallsAttempted++
	t.stats.CallsSucceeded++
	t.pushDiscoveryLocked(newNodes + newEdges)
	t.mu.Unlock()

	t.metrics.RecordCall(ctx, "succeeded", duration.Seconds())
}

// CallFailed records a failed call with its failure kind. Failed calls count
// as zero-discovery entries in the plateau window.
func (t *Tracker) CallFailed(ctx context.Context, duration time.Duration, kind string) {
	t.mu.Lock()
	t.stats.CallsAttempted++
	t.stats.CallsFailed++
	t.stats.FailuresByKind[kind]++
	t.pushDiscoveryLocked(0)
	t.mu.Unlock()

	t.metrics.RecordCall(ctx, "failed", duration.Seconds())
	t.metrics.RecordFailure(ctx, kind)
}

// NodeDiscovered records a new conversation state at the given depth.
func (t *Tracker) NodeDiscovered(ctx context.Context, depth int, terminal bool) {
	t.mu.Lock()
	t.stats.Nodes++
	if terminal {
		t.stats.TerminalNodes++
	}
	if depth > t.stats.MaxDepth {
		t.stats.MaxDepth = depth
	}
	t.mu.Unlock()

	t.metrics.Nodes.Add(ctx, 1)
}

// NodeMarkedTerminal records that an existing state turned out to be an
// endpoint.
func (t *Tracker) NodeMarkedTerminal() {
	t.mu.Lock()
	t.stats.TerminalNodes++
	t.mu.Unlock()
}

// EdgeDiscovered records a new transition.
func (t *Tracker) EdgeDiscovered(ctx context.Context) {
	t.mu.Lock()
	t.stats.Edges++
	t.mu.Unlock()

	t.metrics.Edges.Add(ctx, 1)
}

// LLMParseFailure records one unparseable planning-model reply. Parse
// failures do not fail the call, so only the per-kind counter moves.
func (t *Tracker) LLMParseFailure(ctx context.Context) {
	t.mu.Lock()
	t.stats.FailuresByKind["llm_parse_failed"]++
	t.mu.Unlock()

	t.metrics.RecordFailure(ctx, "llm_parse_failed")
}

// DiarizationSuspect records a transcript whose speaker labels disagreed
// with the scripted user responses.
func (t *Tracker) DiarizationSuspect(ctx context.Context) {
	t.mu.Lock()
	t.stats.DiarizationSuspect++
	t.mu.Unlock()

	t.metrics.DiarizationSuspect.Add(ctx, 1)
}

// Finish stops the run clock. Idempotent.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stats.EndTime.IsZero() {
		t.stats.EndTime = time.Now()
	}
}

// Plateaued reports whether the last full window of completed calls
// discovered nothing new. Always false until the window has filled.
func (t *Tracker) Plateaued() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.discoveries) < t.window {
		return false
	}
	for _, d := range t.discoveries {
		if d > 0 {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.stats
	out.FailuresByKind = make(map[string]int, len(t.stats.FailuresByKind))
	for k, v := range t.stats.FailuresByKind {
		out.FailuresByKind[k] = v
	}
	return out
}

// Summary renders the human-readable progress block.
func (t *Tracker) Summary() string {
	s := t.Snapshot()
	return fmt.Sprintf(`Exploration progress:
- Calls: %d attempted, %d succeeded, %d failed
- Nodes discovered: %d (%d terminal)
- Transitions discovered: %d
- Max depth: %d
- Duration: %.1fs`,
		s.CallsAttempted, s.CallsSucceeded, s.CallsFailed,
		s.Nodes, s.TerminalNodes,
		s.Edges,
		s.MaxDepth,
		s.Duration().Seconds())
}

// pushDiscoveryLocked appends a per-call discovery count, trimming the
// window. Callers must hold t.mu.
func (t *Tracker) pushDiscoveryLocked(n int) {
	t.discoveries = append(t.discoveries, n)
	if len(t.discoveries) > t.window {
		t.discoveries = t.discoveries[len(t.discoveries)-t.window:]
	}
}
