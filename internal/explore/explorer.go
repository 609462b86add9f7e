package explore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/dialmap/internal/frontier"
	"github.com/MrWong99/dialmap/internal/graph"
	"github.com/MrWong99/dialmap/internal/observe"
	"github.com/MrWong99/dialmap/internal/progress"
)

// dispatchPollInterval is how often the dispatch loop re-checks an empty
// frontier while tasks are still in flight.
const dispatchPollInterval = 25 * time.Millisecond

// ExplorerConfig carries the run-level stop conditions and pool size.
type ExplorerConfig struct {
	// WorkerCount is the number of concurrently running tasks, which also
	// bounds outstanding voice calls.
	WorkerCount int

	// MaxCalls caps dispatched calls for the whole run.
	MaxCalls int

	// MaxWallTime caps the run duration.
	MaxWallTime time.Duration

	// TaskRetryMax is how often a retryably failed task is re-enqueued.
	TaskRetryMax int
}

// Explorer owns the run loop: it seeds the frontier, dispatches entries to
// the worker pool in priority order, re-enqueues retryable failures, and
// stops on quiescence, budget exhaustion, wall-time expiry, or plateau.
type Explorer struct {
	cfg     ExplorerConfig
	worker  *Worker
	queue   *frontier.Queue
	tracker *progress.Tracker
	metrics *observe.Metrics
	logger  *slog.Logger
}

// ExplorerOption configures an [Explorer].
type ExplorerOption func(*Explorer)

// WithExplorerMetrics sets the instrument set. Default: [observe.DefaultMetrics].
func WithExplorerMetrics(m *observe.Metrics) ExplorerOption {
	return func(e *Explorer) { e.metrics = m }
}

// WithExplorerLogger sets the logger. Default: [slog.Default].
func WithExplorerLogger(l *slog.Logger) ExplorerOption {
	return func(e *Explorer) { e.logger = l }
}

// NewExplorer wires the run loop over a worker, frontier, and tracker.
func NewExplorer(cfg ExplorerConfig, w *Worker, q *frontier.Queue, tr *progress.Tracker, opts ...ExplorerOption) *Explorer {
	e := &Explorer{
		cfg:     cfg,
		worker:  w,
		queue:   q,
		tracker: tr,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Run executes the exploration until a stop condition holds, then waits for
// in-flight tasks and stops the run clock. It returns nil on every clean
// stop; only the parent context's cancellation is propagated.
func (e *Explorer) Run(ctx context.Context) error {
	runCtx := ctx
	var cancel context.CancelFunc
	if e.cfg.MaxWallTime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.MaxWallTime)
		defer cancel()
	}

	// The synthetic seed entry makes the first worker place a cold call
	// that establishes the root state.
	e.push(runCtx, frontier.Entry{})

	var pool errgroup.Group
	pool.SetLimit(e.cfg.WorkerCount)

	inflight := make(chan struct{}, e.cfg.MaxCalls)
	dispatched := 0
	reseeded := make(map[graph.NodeID]bool)

dispatch:
	for {
		switch {
		case runCtx.Err() != nil:
			e.logger.Info("stopping: context done", "cause", context.Cause(runCtx))
			break dispatch
		case dispatched >= e.cfg.MaxCalls:
			e.logger.Info("stopping: call budget exhausted", "max_calls", e.cfg.MaxCalls)
			break dispatch
		case e.tracker.Plateaued():
			e.logger.Info("stopping: discovery plateau", "pending", e.queue.Len())
			break dispatch
		}

		entry, ok := e.queue.Pop()
		if !ok {
			if len(inflight) == 0 {
				if n := e.reseed(runCtx, reseeded, e.cfg.MaxCalls-dispatched); n > 0 {
					e.logger.Info("re-seeding under-expanded states", "count", n)
					continue
				}
				e.logger.Info("stopping: frontier exhausted", "dispatched", dispatched)
				break dispatch
			}
			select {
			case <-time.After(dispatchPollInterval):
			case <-runCtx.Done():
			}
			continue
		}

		e.metrics.FrontierSize.Add(runCtx, -1)
		dispatched++
		inflight <- struct{}{}
		pool.Go(func() error {
			defer func() { <-inflight }()
			e.runTask(runCtx, entry)
			return nil
		})
	}

	_ = pool.Wait()
	e.tracker.Finish()
	e.logger.Info("exploration finished",
		"dispatched", dispatched,
		"pending", e.queue.Len())
	return ctx.Err()
}

// runTask executes one task and does the explorer-side accounting: pushing
// discoveries, recording the call outcome, and re-enqueuing retryable
// failures within the retry budget.
func (e *Explorer) runTask(ctx context.Context, entry frontier.Entry) {
	start := time.Now()
	outcome, err := e.worker.Execute(ctx, entry)

	if err == nil {
		for _, d := range outcome.Discovered {
			e.push(ctx, d)
		}
		e.tracker.CallSucceeded(ctx, outcome.CallDuration, outcome.NewNodes, outcome.NewEdges)
		e.logger.Info("call succeeded",
			"node", entry.NodeID,
			"response", entry.Response,
			"new_nodes", outcome.NewNodes,
			"new_edges", outcome.NewEdges,
			"discovered", len(outcome.Discovered))
		return
	}

	if errors.Is(err, errSkipTask) {
		e.logger.Warn("dropping unstartable task", "node", entry.NodeID, "err", err)
		return
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Cancelled mid-flight; the partial call is not an attempt.
		return
	}

	kind := "internal"
	retryable := false
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		kind = string(taskErr.Kind)
		retryable = taskErr.Retryable
	}

	e.tracker.CallFailed(ctx, time.Since(start), kind)
	e.logger.Warn("call failed",
		"node", entry.NodeID,
		"response", entry.Response,
		"kind", kind,
		"attempt", entry.Attempts+1,
		"err", err)

	if retryable && entry.Attempts+1 <= e.cfg.TaskRetryMax {
		entry.Attempts++
		e.push(ctx, entry)
	}
}

// reseed refills an exhausted frontier with the graph's own candidates:
// non-terminal nodes whose outgoing edges are still below the breadth cap,
// typically states left unexpanded by a parse failure. Each node is reseeded
// at most once per run so an agent that keeps answering the same way cannot
// loop the explorer. Returns the number of entries pushed.
func (e *Explorer) reseed(ctx context.Context, seen map[graph.NodeID]bool, budget int) int {
	if budget <= 0 {
		return 0
	}

	g := e.worker.graph
	pushed := 0
	for _, id := range g.FrontierCandidates(budget, e.worker.cfg.BreadthCap) {
		if seen[id] {
			continue
		}
		seen[id] = true
		e.push(ctx, frontier.Entry{NodeID: id, Depth: g.Depth(id)})
		pushed++
	}
	return pushed
}

// push enqueues an entry and keeps the frontier gauge in step.
func (e *Explorer) push(ctx context.Context, entry frontier.Entry) {
	e.queue.Push(entry)
	e.metrics.FrontierSize.Add(ctx, 1)
}
