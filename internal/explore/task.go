// Package explore drives the exploration run: workers place scripted calls,
// walk the transcripts into the shared graph, ask the planning model for new
// responses to try, and feed the frontier until a stop condition ends the
// run.
package explore

import (
	"fmt"
	"time"

	"github.com/MrWong99/dialmap/internal/frontier"
)

// FailureKind classifies why an exploration task failed. The values appear
// in stats, logs, and the failure metrics.
type FailureKind string

const (
	// FailureDial covers errors placing the call and calls the platform
	// reports as failed or unanswered.
	FailureDial FailureKind = "dial_failed"

	// FailureWebhookTimeout means the completion event never arrived within
	// the call timeout.
	FailureWebhookTimeout FailureKind = "webhook_timeout"

	// FailureRecording means the platform completed the call but the audio
	// could not be fetched.
	FailureRecording FailureKind = "recording_unavailable"

	// FailureTranscription covers transcriber errors and empty transcripts.
	FailureTranscription FailureKind = "transcription_failed"

	// FailureRootMismatch means the first transcribed agent utterance did
	// not match the established root while strict root checking is on.
	FailureRootMismatch FailureKind = "root_mismatch"

	// FailureLLMParse marks an unparseable planning-model reply. Parse
	// failures are counted but do not fail the task; the node is simply
	// left unexpanded.
	FailureLLMParse FailureKind = "llm_parse_failed"
)

// TaskError reports a failed exploration task with its classification.
type TaskError struct {
	Kind FailureKind
	Err  error

	// Retryable tasks are re-enqueued with an incremented attempt count
	// until the task retry budget is spent.
	Retryable bool
}

func (e *TaskError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// failf builds a retryable TaskError.
func failf(kind FailureKind, format string, args ...any) *TaskError {
	return &TaskError{Kind: kind, Err: fmt.Errorf(format, args...), Retryable: true}
}

// permf builds a non-retryable TaskError. Redialing cannot change these
// outcomes, so the explorer records the failure and drops the entry.
func permf(kind FailureKind, format string, args ...any) *TaskError {
	return &TaskError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Outcome summarises a finished task for the explorer's accounting.
type Outcome struct {
	// NewNodes and NewEdges count the entities this call added to the graph.
	NewNodes int
	NewEdges int

	// CallDuration is the call length as reported by the platform, or the
	// observed dial-to-completion time when the platform omits it.
	CallDuration time.Duration

	// Discovered holds the frontier entries the planning model proposed at
	// the reached state. The explorer enqueues them.
	Discovered []frontier.Entry
}
