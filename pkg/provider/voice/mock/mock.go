// Package mock provides a test double for the voice.Provider interface.
//
// Use Provider in unit tests to verify the explorer's call placement without
// dialling real phone numbers. Each PlaceCall returns a fresh UUID unless
// CallIDs is set; recordings come from the Recordings map keyed by call id.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/dialmap/pkg/provider/voice"
)

// PlaceCallCall records a single invocation of PlaceCall.
type PlaceCallCall struct {
	// Ctx is the context passed to PlaceCall.
	Ctx context.Context
	// Req is the CallRequest passed to PlaceCall.
	Req voice.CallRequest
	// ID is the call id that was returned.
	ID string
}

// FetchRecordingCall records a single invocation of FetchRecording.
type FetchRecordingCall struct {
	// Ctx is the context passed to FetchRecording.
	Ctx context.Context
	// CallID is the id passed to FetchRecording.
	CallID string
}

// Provider is a mock implementation of voice.Provider.
// Zero values are usable: PlaceCall hands out UUIDs and FetchRecording
// returns an error for unknown call ids.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// CallIDs, when non-empty, are returned by successive PlaceCall
	// invocations in order. Once exhausted, PlaceCall falls back to UUIDs.
	CallIDs []string

	// PlaceCallErr, if non-nil, is returned as the error from PlaceCall.
	PlaceCallErr error

	// OnPlaceCall, if non-nil, is invoked after the call is recorded. It
	// lets tests drive the webhook for the freshly assigned call id.
	OnPlaceCall func(id string, req voice.CallRequest)

	// Recordings maps call ids to the bytes FetchRecording returns.
	Recordings map[string][]byte

	// FetchRecordingErr, if non-nil, is returned as the error from
	// FetchRecording regardless of the Recordings map.
	FetchRecordingErr error

	// --- Call records (read after test) ---

	// PlaceCalls records every invocation of PlaceCall in order.
	PlaceCalls []PlaceCallCall

	// FetchRecordingCalls records every invocation of FetchRecording in order.
	FetchRecordingCalls []FetchRecordingCall
}

var _ voice.Provider = (*Provider)(nil)

// PlaceCall records the call and returns the next configured (or generated)
// call id.
func (p *Provider) PlaceCall(ctx context.Context, req voice.CallRequest) (string, error) {
	p.mu.Lock()
	if p.PlaceCallErr != nil {
		err := p.PlaceCallErr
		p.PlaceCalls = append(p.PlaceCalls, PlaceCallCall{Ctx: ctx, Req: req})
		p.mu.Unlock()
		return "", err
	}

	var id string
	if n := len(p.PlaceCalls); n < len(p.CallIDs) {
		id = p.CallIDs[n]
	} else {
		id = uuid.NewString()
	}
	p.PlaceCalls = append(p.PlaceCalls, PlaceCallCall{Ctx: ctx, Req: req, ID: id})
	hook := p.OnPlaceCall
	p.mu.Unlock()

	if hook != nil {
		hook(id, req)
	}
	return id, nil
}

// FetchRecording records the call and returns the configured recording bytes.
func (p *Provider) FetchRecording(ctx context.Context, callID string) ([]byte, error) {
	p.mu.Lock()
	p.FetchRecordingCalls = append(p.FetchRecordingCalls, FetchRecordingCall{Ctx: ctx, CallID: callID})
	err := p.FetchRecordingErr
	audio, ok := p.Recordings[callID]
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("mock: no recording for call %s", callID)
	}
	return audio, nil
}

// SetRecording associates audio with callID for later FetchRecording calls.
// Safe to call concurrently with provider methods.
func (p *Provider) SetRecording(callID string, audio []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Recordings == nil {
		p.Recordings = make(map[string][]byte)
	}
	p.Recordings[callID] = audio
}
