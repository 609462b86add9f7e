package progress

import (
	"context"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/dialmap/internal/observe"
)

// newTestTracker wires a tracker to an isolated meter provider so tests do
// not pollute the global instruments.
func newTestTracker(t *testing.T, opts ...Option) *Tracker {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return NewTracker(append([]Option{WithMetrics(m)}, opts...)...)
}

func TestTracker_CallCounters(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	ctx := context.Background()

	tr.CallSucceeded(ctx, 30*time.Second, 1, 1)
	tr.CallSucceeded(ctx, 25*time.Second, 0, 1)
	tr.CallFailed(ctx, 5*time.Minute, "webhook_timeout")

	s := tr.Snapshot()
	if s.CallsAttempted != 3 || s.CallsSucceeded != 2 || s.CallsFailed != 1 {
		t.Errorf("calls: attempted %d succeeded %d failed %d", s.CallsAttempted, s.CallsSucceeded, s.CallsFailed)
	}
	if s.FailuresByKind["webhook_timeout"] != 1 {
		t.Errorf("failure kinds: %v", s.FailuresByKind)
	}
}

func TestTracker_GraphCounters(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	ctx := context.Background()

	tr.NodeDiscovered(ctx, 0, false)
	tr.NodeDiscovered(ctx, 1, false)
	tr.NodeDiscovered(ctx, 2, true)
	tr.NodeMarkedTerminal()
	tr.EdgeDiscovered(ctx)
	tr.EdgeDiscovered(ctx)

	s := tr.Snapshot()
	if s.Nodes != 3 {
		t.Errorf("nodes: want 3, got %d", s.Nodes)
	}
	if s.TerminalNodes != 2 {
		t.Errorf("terminal nodes: want 2, got %d", s.TerminalNodes)
	}
	if s.Edges != 2 {
		t.Errorf("edges: want 2, got %d", s.Edges)
	}
	if s.MaxDepth != 2 {
		t.Errorf("max depth: want 2, got %d", s.MaxDepth)
	}
}

func TestTracker_PlateauRequiresFullWindow(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t, WithPlateauWindow(3))
	ctx := context.Background()

	tr.CallSucceeded(ctx, time.Second, 0, 0)
	tr.CallSucceeded(ctx, time.Second, 0, 0)
	if tr.Plateaued() {
		t.Error("plateau must not trigger before the window fills")
	}

	tr.CallSucceeded(ctx, time.Second, 0, 0)
	if !tr.Plateaued() {
		t.Error("three zero-discovery calls should plateau a window of 3")
	}
}

func TestTracker_DiscoveryResetsPlateau(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t, WithPlateauWindow(3))
	ctx := context.Background()

	tr.CallSucceeded(ctx, time.Second, 0, 0)
	tr.CallSucceeded(ctx, time.Second, 0, 0)
	tr.CallSucceeded(ctx, time.Second, 1, 0) // new node found
	if tr.Plateaued() {
		t.Error("a discovery inside the window must prevent plateau")
	}

	tr.CallFailed(ctx, time.Second, "dial_failed")
	tr.CallFailed(ctx, time.Second, "dial_failed")
	if tr.Plateaued() {
		t.Error("discovery still inside the window")
	}

	tr.CallFailed(ctx, time.Second, "dial_failed")
	if !tr.Plateaued() {
		t.Error("discovery slid out of the window; plateau expected")
	}
}

func TestTracker_Summary(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	ctx := context.Background()

	tr.CallSucceeded(ctx, time.Second, 2, 1)
	tr.NodeDiscovered(ctx, 0, false)
	tr.NodeDiscovered(ctx, 1, true)
	tr.EdgeDiscovered(ctx)
	tr.Finish()

	got := tr.Summary()
	for _, want := range []string{
		"1 attempted",
		"Nodes discovered: 2 (1 terminal)",
		"Transitions discovered: 1",
		"Max depth: 1",
		"Duration:",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestTracker_FinishIdempotent(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(t)
	tr.Finish()
	end := tr.Snapshot().EndTime
	time.Sleep(5 * time.Millisecond)
	tr.Finish()
	if tr.Snapshot().EndTime != end {
		t.Error("second Finish must not move the end time")
	}
}
