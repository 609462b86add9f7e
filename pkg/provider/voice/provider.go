// Package voice defines the Provider interface for outbound telephony
// backends.
//
// A voice provider wraps a calling platform (e.g., Hamming) that dials a
// phone number, plays the supplied conversation prompt through its own voice
// agent, and notifies a webhook when the call completes. Call completion is
// asynchronous: PlaceCall returns as soon as the platform accepts the call,
// and the recording becomes available only after the webhook fires with
// recording_available set.
//
// Implementations must be safe for concurrent use; the explorer places calls
// from multiple workers at once.
package voice

import "context"

// CallRequest describes one outbound call.
type CallRequest struct {
	// PhoneNumber is the E.164 number to dial.
	PhoneNumber string

	// Prompt is the full persona instruction for the calling agent: who it
	// pretends to be, the scripted responses to speak, and when to hang up.
	Prompt string

	// WebhookURL receives the completion notification for this call.
	WebhookURL string
}

// Provider is the abstraction over any outbound calling backend.
type Provider interface {
	// PlaceCall starts an outbound call and returns the platform's call id.
	// The id correlates the later webhook notification with this call.
	PlaceCall(ctx context.Context, req CallRequest) (string, error)

	// FetchRecording downloads the audio of a completed call as a WAV byte
	// slice. Valid only after the completion webhook reported the recording
	// as available.
	FetchRecording(ctx context.Context, callID string) ([]byte, error)
}
