// Package mock provides a test double for the transcribe.Provider interface.
//
// Use Provider in unit tests to feed scripted conversation turns into the
// pipeline without decoding real audio. Keyed lookups (TurnsByAudio) let a
// test associate different transcripts with different recordings.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/dialmap/pkg/provider/transcribe"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is the recording passed to Transcribe.
	Audio []byte
	// Cfg is the Config passed to Transcribe.
	Cfg transcribe.Config
}

// Provider is a mock implementation of transcribe.Provider.
// Zero values cause Transcribe to return nil, nil.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Turns is returned by every Transcribe call unless TurnsByAudio has a
	// match for the recording bytes.
	Turns []transcribe.Turn

	// TurnsByAudio maps string(audio) to the turns to return for that
	// exact recording. Checked before Turns.
	TurnsByAudio map[string][]transcribe.Turn

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// --- Call records (read after test) ---

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall
}

var _ transcribe.Provider = (*Provider)(nil)

// Transcribe records the call and returns the configured turns.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, cfg transcribe.Config) ([]transcribe.Turn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Audio: audio, Cfg: cfg})

	if p.Err != nil {
		return nil, p.Err
	}
	if turns, ok := p.TurnsByAudio[string(audio)]; ok {
		return turns, nil
	}
	return p.Turns, nil
}

// SetTurnsFor associates turns with an exact recording payload. Safe to call
// concurrently with provider methods.
func (p *Provider) SetTurnsFor(audio []byte, turns []transcribe.Turn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.TurnsByAudio == nil {
		p.TurnsByAudio = make(map[string][]transcribe.Turn)
	}
	p.TurnsByAudio[string(audio)] = turns
}
