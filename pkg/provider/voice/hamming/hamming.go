// Package hamming provides a voice provider backed by the Hamming calling
// platform (https://app.hamming.ai).
//
// A call is started with POST /rest/exercise/start-call; Hamming dials the
// target number, runs its voice agent against the supplied prompt, and POSTs
// a completion event to the webhook URL given in the request. The recording
// is then fetched with GET /media/exercise?id=<call_id>.
package hamming

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/MrWong99/dialmap/pkg/provider/voice"
)

// DefaultBaseURL is the production Hamming API endpoint.
const DefaultBaseURL = "https://app.hamming.ai/api"

// maxRecordingBytes caps a recording download. One five-minute call at
// telephone quality is well under this; anything larger indicates a server
// fault.
const maxRecordingBytes = 64 << 20

// config holds optional configuration for the client.
type config struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for Client.
type Option func(*config)

// WithBaseURL overrides the default API base URL. Useful for pointing at a
// staging environment or a local test server.
func WithBaseURL(u string) Option {
	return func(c *config) {
		c.baseURL = u
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// Client implements voice.Provider against the Hamming REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New constructs a Hamming client.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("hamming: apiKey must not be empty")
	}

	cfg := &config{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(cfg)
	}

	return &Client{
		baseURL:    cfg.baseURL,
		apiKey:     apiKey,
		httpClient: cfg.httpClient,
	}, nil
}

var _ voice.Provider = (*Client)(nil)

// startCallRequest is the wire format of POST /rest/exercise/start-call.
type startCallRequest struct {
	PhoneNumber string `json:"phone_number"`
	Prompt      string `json:"prompt"`
	WebhookURL  string `json:"webhook_url"`
}

// startCallResponse is the success body of POST /rest/exercise/start-call.
type startCallResponse struct {
	ID string `json:"id"`
}

// PlaceCall implements voice.Provider.
func (c *Client) PlaceCall(ctx context.Context, req voice.CallRequest) (string, error) {
	if req.PhoneNumber == "" {
		return "", fmt.Errorf("hamming: phone number must not be empty")
	}
	if req.WebhookURL == "" {
		return "", fmt.Errorf("hamming: webhook URL must not be empty")
	}

	body, err := json.Marshal(startCallRequest{
		PhoneNumber: req.PhoneNumber,
		Prompt:      req.Prompt,
		WebhookURL:  req.WebhookURL,
	})
	if err != nil {
		return "", fmt.Errorf("hamming: marshal start-call request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/rest/exercise/start-call", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("hamming: build start-call request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("hamming: start call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError("start call", resp)
	}

	var out startCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("hamming: decode start-call response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("hamming: start-call response missing call id")
	}
	return out.ID, nil
}

// FetchRecording implements voice.Provider.
func (c *Client) FetchRecording(ctx context.Context, callID string) ([]byte, error) {
	if callID == "" {
		return nil, fmt.Errorf("hamming: callID must not be empty")
	}

	u := c.baseURL + "/media/exercise?id=" + url.QueryEscape(callID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("hamming: build recording request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("hamming: fetch recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("fetch recording", resp)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingBytes))
	if err != nil {
		return nil, fmt.Errorf("hamming: read recording body: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("hamming: recording for call %s is empty", callID)
	}
	return audio, nil
}

// apiError summarises a non-200 response, including a bounded excerpt of the
// body so platform error messages survive into logs.
func apiError(op string, resp *http.Response) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if len(excerpt) == 0 {
		return fmt.Errorf("hamming: %s: unexpected status %d", op, resp.StatusCode)
	}
	return fmt.Errorf("hamming: %s: unexpected status %d: %s", op, resp.StatusCode, excerpt)
}
