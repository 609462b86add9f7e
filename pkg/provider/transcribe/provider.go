// Package transcribe defines the Provider interface for batch
// speech-to-text backends.
//
// A transcriber takes the full WAV recording of a completed call and returns
// it as an ordered list of speaker turns. Diarization quality varies by
// backend: Deepgram labels speakers natively, while whisper.cpp returns
// unlabelled segments that the caller assigns roles to by alternation.
//
// Implementations must be safe for concurrent use; recordings from several
// calls are transcribed in parallel.
package transcribe

import (
	"context"
	"time"
)

// Config carries per-request transcription hints.
type Config struct {
	// Language is the BCP-47 language tag of the recording (e.g., "en",
	// "en-US"). Empty lets the backend auto-detect, if supported.
	Language string

	// Diarize requests speaker labels on the returned turns. Backends
	// without native diarization ignore this and return empty Speaker
	// fields.
	Diarize bool
}

// Turn is one contiguous utterance by a single speaker.
type Turn struct {
	// Speaker is the backend's speaker label ("0", "1", ...). Empty when
	// the backend cannot diarize. Labels are arbitrary but stable within
	// one recording.
	Speaker string

	// Text is the transcribed utterance.
	Text string

	// Start and End position the turn within the recording.
	Start time.Duration
	End   time.Duration
}

// Provider is the abstraction over any batch transcription backend.
type Provider interface {
	// Transcribe converts a complete WAV recording into ordered speaker
	// turns. An empty or silent recording yields an empty slice and no
	// error.
	Transcribe(ctx context.Context, audio []byte, cfg Config) ([]Turn, error)
}
