package explore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/dialmap/internal/frontier"
	"github.com/MrWong99/dialmap/internal/graph"
	"github.com/MrWong99/dialmap/internal/observe"
	"github.com/MrWong99/dialmap/internal/progress"
	"github.com/MrWong99/dialmap/internal/prompt"
	"github.com/MrWong99/dialmap/internal/resilience"
	"github.com/MrWong99/dialmap/internal/textnorm"
	"github.com/MrWong99/dialmap/internal/webhook"
	"github.com/MrWong99/dialmap/pkg/provider/llm"
	"github.com/MrWong99/dialmap/pkg/provider/transcribe"
	"github.com/MrWong99/dialmap/pkg/provider/voice"
)

// errSkipTask marks a task that could not even start because its target node
// is unreachable from the root in the current graph. The explorer drops such
// tasks without counting a call.
var errSkipTask = errors.New("explore: task target unreachable from root")

// expansionMaxTokens bounds planning-model replies. Candidate lists are
// short; a few hundred tokens is plenty.
const expansionMaxTokens = 1024

// WorkerConfig carries the per-run parameters a worker needs.
type WorkerConfig struct {
	// Scenario is the business-context description used in every prompt.
	Scenario string

	// PhoneNumber is the E.164 number of the agent under exploration.
	PhoneNumber string

	// WebhookURL is the full externally reachable completion-webhook URL
	// passed to the telephony platform with each call.
	WebhookURL string

	// Language is passed to the transcriber.
	Language string

	// CallTimeout bounds the wait for a completion webhook per call.
	CallTimeout time.Duration

	// MaxDepth stops expansion at nodes this far from the root.
	MaxDepth int

	// BreadthCap bounds candidate responses requested and enqueued per node.
	BreadthCap int

	// LLMRetryMax is how often a malformed model reply is re-asked with the
	// strict reprompt before the node is left unexpanded.
	LLMRetryMax int

	// StrictRoot aborts tasks whose first transcribed agent utterance does
	// not match the established root.
	StrictRoot bool

	// Temperature and Seed are forwarded to the planning model.
	Temperature float64
	Seed        int64
}

// Worker executes one exploration task end to end: scripted call, webhook
// wait, transcription, graph walk, and planning-model expansion. Workers are
// stateless between tasks; one Worker is shared by all pool goroutines.
type Worker struct {
	cfg         WorkerConfig
	voice       voice.Provider
	transcriber transcribe.Provider
	llm         llm.Provider
	graph       *graph.Graph
	correlator  *webhook.Correlator
	tracker     *progress.Tracker
	metrics     *observe.Metrics
	logger      *slog.Logger

	// fetchRetrier covers the race where the completion event precedes
	// recording availability on the platform side.
	fetchRetrier *resilience.Retrier
}

// WorkerOption configures a [Worker].
type WorkerOption func(*Worker)

// WithWorkerMetrics sets the instrument set. Default: [observe.DefaultMetrics].
func WithWorkerMetrics(m *observe.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithWorkerLogger sets the logger. Default: [slog.Default].
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

// NewWorker wires a worker over the shared run state and providers.
func NewWorker(cfg WorkerConfig, vp voice.Provider, tp transcribe.Provider, lp llm.Provider,
	g *graph.Graph, c *webhook.Correlator, tr *progress.Tracker, opts ...WorkerOption) *Worker {
	w := &Worker{
		cfg:         cfg,
		voice:       vp,
		transcriber: tp,
		llm:         lp,
		graph:       g,
		correlator:  c,
		tracker:     tr,
	}
	for _, o := range opts {
		o(w)
	}
	if w.metrics == nil {
		w.metrics = observe.DefaultMetrics()
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.fetchRetrier = resilience.New(cfg.Seed,
		resilience.WithMaxAttempts(2),
		resilience.WithBackoff(500*time.Millisecond),
	)
	return w
}

// Execute runs one exploration task. The returned error, when non-nil, is a
// [*TaskError] describing the failure, [errSkipTask] for an unstartable
// task, or the context error on cancellation.
func (w *Worker) Execute(ctx context.Context, entry frontier.Entry) (*Outcome, error) {
	script, err := w.buildScript(entry)
	if err != nil {
		return nil, err
	}

	callID, dialStart, err := w.placeCall(ctx, script, entry.Response)
	if err != nil {
		return nil, err
	}

	events := w.correlator.Register(callID)
	defer w.correlator.Forget(callID)

	w.metrics.InFlightCalls.Add(ctx, 1)
	defer w.metrics.InFlightCalls.Add(ctx, -1)

	ev, err := w.awaitCompletion(ctx, callID, events)
	if err != nil {
		return nil, err
	}

	callDuration := ev.Duration
	if callDuration == 0 {
		callDuration = time.Since(dialStart)
	}

	switch ev.Status {
	case "", "completed":
	default:
		// The platform rejected or lost the call (failed, no-answer, busy).
		// Redialing the same script is not retried; the failure is recorded
		// and the frontier entry dropped.
		return nil, permf(FailureDial, "call %s ended %s: %s", callID, ev.Status, ev.Error)
	}

	var audio []byte
	err = w.fetchRetrier.Retry(ctx, func(ctx context.Context) error {
		var ferr error
		audio, ferr = w.voice.FetchRecording(ctx, callID)
		return ferr
	})
	if err != nil {
		return nil, failf(FailureRecording, "call %s: %v", callID, err)
	}
	if len(audio) == 0 {
		return nil, failf(FailureRecording, "call %s: empty recording", callID)
	}

	turns, err := w.transcribeRecording(ctx, audio)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{CallDuration: callDuration}
	end, history, err := w.walkTranscript(ctx, turns, script, entry.Response, outcome)
	if err != nil {
		return nil, err
	}

	w.expandNode(ctx, end, history, outcome)
	return outcome, nil
}

// buildScript reconstructs the replay script for entry from the current
// graph. The synthetic seed entry maps to an empty script.
func (w *Worker) buildScript(entry frontier.Entry) ([]prompt.PathStep, error) {
	if entry.NodeID == "" {
		return nil, nil
	}
	script, ok := scriptTo(w.graph.Snapshot(), entry.NodeID)
	if !ok {
		return nil, fmt.Errorf("%w: node %s", errSkipTask, entry.NodeID)
	}
	return script, nil
}

// placeCall renders the caller persona prompt and dials.
func (w *Worker) placeCall(ctx context.Context, script []prompt.PathStep, next string) (string, time.Time, error) {
	callPrompt := prompt.CallPrompt(w.cfg.Scenario, script, next)
	dialStart := time.Now()

	callID, err := w.voice.PlaceCall(ctx, voice.CallRequest{
		PhoneNumber: w.cfg.PhoneNumber,
		Prompt:      callPrompt,
		WebhookURL:  w.cfg.WebhookURL,
	})
	if err != nil {
		return "", dialStart, failf(FailureDial, "place call: %v", err)
	}

	w.logger.Debug("call placed", "call_id", callID, "script_steps", len(script), "next", next)
	return callID, dialStart, nil
}

// awaitCompletion waits for the completion webhook, the call timeout, or
// cancellation. Some platforms post an interim completed event before the
// recording is processed; those keep the wait going until an event with the
// recording available (or a failure status) arrives.
func (w *Worker) awaitCompletion(ctx context.Context, callID string, events <-chan webhook.Event) (webhook.Event, error) {
	timer := time.NewTimer(w.cfg.CallTimeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-events:
			switch ev.Status {
			case "", "completed":
				if !ev.RecordingAvailable {
					w.logger.Debug("completion event without recording, still waiting", "call_id", callID)
					continue
				}
			}
			return ev, nil
		case <-timer.C:
			return webhook.Event{}, failf(FailureWebhookTimeout, "call %s: no completion event within %s", callID, w.cfg.CallTimeout)
		case <-ctx.Done():
			return webhook.Event{}, ctx.Err()
		}
	}
}

// transcribeRecording runs batch transcription and records its latency.
func (w *Worker) transcribeRecording(ctx context.Context, audio []byte) ([]transcribe.Turn, error) {
	start := time.Now()
	turns, err := w.transcriber.Transcribe(ctx, audio, transcribe.Config{
		Language: w.cfg.Language,
		Diarize:  true,
	})
	w.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		return nil, failf(FailureTranscription, "%v", err)
	}
	if len(turns) == 0 {
		return nil, failf(FailureTranscription, "empty transcript")
	}
	return turns, nil
}

// walkTranscript merges the transcript into the graph. The scripted caller
// lines are authoritative edge labels; the transcribed caller turns only
// validate diarization. Returns the node reached after the final scripted
// response and the traversed (agent, response) pairs for the expansion
// prompt.
func (w *Worker) walkTranscript(ctx context.Context, turns []transcribe.Turn,
	script []prompt.PathStep, finalResponse string, outcome *Outcome) (graph.NodeID, []prompt.PathStep, error) {

	agentTurns, callerTurns := splitRoles(turns)
	if len(agentTurns) == 0 {
		return "", nil, failf(FailureTranscription, "no agent turns in transcript")
	}

	userLines := make([]string, 0, len(script)+1)
	for _, step := range script {
		userLines = append(userLines, step.Response)
	}
	if finalResponse != "" {
		userLines = append(userLines, finalResponse)
	}

	if diarizationSuspect(userLines, agentTurns, callerTurns) {
		w.tracker.DiarizationSuspect(ctx)
		w.logger.Warn("speaker labels disagree with scripted responses", "scripted", len(userLines))
	}

	rootBefore := w.graph.Root()
	u, created := w.graph.GetOrCreateNode(agentTurns[0], 0)
	if created {
		outcome.NewNodes++
		w.tracker.NodeDiscovered(ctx, 0, false)
	}
	if w.cfg.StrictRoot && rootBefore != "" && u != rootBefore {
		return "", nil, permf(FailureRootMismatch, "first agent utterance %q did not match root %s", agentTurns[0], rootBefore)
	}

	var history []prompt.PathStep
	for i, line := range userLines {
		if i+1 >= len(agentTurns) {
			// Call ended before the agent answered this response.
			break
		}
		v, created := w.graph.GetOrCreateNode(agentTurns[i+1], i+1)
		if created {
			outcome.NewNodes++
			w.tracker.NodeDiscovered(ctx, i+1, false)
		}
		if w.graph.AddEdge(u, line, v) {
			outcome.NewEdges++
			w.tracker.EdgeDiscovered(ctx)
		}
		history = append(history, prompt.PathStep{Agent: agentTurns[i], Response: line})
		u = v
	}
	return u, history, nil
}

// expandNode asks the planning model for new responses at node id and stages
// the surviving candidates as frontier entries. An unparseable reply after
// all retries leaves the node unexpanded; it is not a task failure.
func (w *Worker) expandNode(ctx context.Context, id graph.NodeID, history []prompt.PathStep, outcome *Outcome) {
	node := w.nodeByID(id)
	if node == nil {
		return
	}
	explored := w.graph.OutgoingResponses(id)

	parsed, err := w.complete(ctx, node.Utterance, history, explored)
	if err != nil {
		w.logger.Warn("node left unexpanded", "node", id, "err", err)
		return
	}

	if parsed.Terminal {
		if !w.graph.IsTerminal(id) {
			w.graph.MarkTerminal(id)
			w.tracker.NodeMarkedTerminal()
		}
		return
	}

	depth := w.graph.Depth(id)
	if depth >= w.cfg.MaxDepth {
		w.logger.Debug("max depth reached, not expanding", "node", id, "depth", depth)
		return
	}

	exploredSet := make(map[string]bool, len(explored))
	for _, e := range explored {
		exploredSet[e] = true
	}

	budget := w.cfg.BreadthCap - len(explored)
	for _, cand := range parsed.Candidates {
		if budget <= 0 {
			break
		}
		norm := textnorm.Normalize(cand)
		if norm == "" || exploredSet[norm] {
			continue
		}
		exploredSet[norm] = true
		budget--
		outcome.Discovered = append(outcome.Discovered, frontier.Entry{
			NodeID:   id,
			Response: cand,
			Depth:    depth,
		})
	}
}

// complete runs the exploration completion with strict-reprompt retries.
// Every failed parse is counted; transport errors consume an attempt too.
func (w *Worker) complete(ctx context.Context, agentMessage string, history []prompt.PathStep, explored []string) (prompt.Parsed, error) {
	messages := []llm.Message{{
		Role:    "user",
		Content: prompt.ExplorationPrompt(w.cfg.Scenario, agentMessage, history, explored, w.cfg.BreadthCap),
	}}

	var lastErr error
	for attempt := 0; attempt <= w.cfg.LLMRetryMax; attempt++ {
		start := time.Now()
		resp, err := w.llm.Complete(ctx, llm.CompletionRequest{
			Messages:     messages,
			SystemPrompt: prompt.Role(),
			Temperature:  w.cfg.Temperature,
			MaxTokens:    expansionMaxTokens,
			Seed:         w.cfg.Seed,
		})
		w.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())

		if err != nil {
			if ctx.Err() != nil {
				return prompt.Parsed{}, ctx.Err()
			}
			lastErr = err
			continue
		}
		if resp == nil || resp.Content == "" {
			lastErr = errors.New("empty completion")
			continue
		}

		parsed, perr := prompt.Parse(resp.Content)
		if perr == nil {
			return parsed, nil
		}
		lastErr = perr
		w.tracker.LLMParseFailure(ctx)
		messages = append(messages,
			llm.Message{Role: "assistant", Content: resp.Content},
			llm.Message{Role: "user", Content: prompt.StrictReprompt()},
		)
	}
	return prompt.Parsed{}, fmt.Errorf("explore: expansion failed after %d attempts: %w", w.cfg.LLMRetryMax+1, lastErr)
}

// nodeByID finds a node in a fresh snapshot.
func (w *Worker) nodeByID(id graph.NodeID) *graph.Node {
	snap := w.graph.Snapshot()
	for i := range snap.Nodes {
		if snap.Nodes[i].ID == id {
			return &snap.Nodes[i]
		}
	}
	return nil
}
