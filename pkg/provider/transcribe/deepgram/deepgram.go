// Package deepgram provides a transcribe.Provider backed by the Deepgram
// prerecorded (batch) API. It posts the whole recording to /v1/listen with
// utterance segmentation and speaker diarization enabled and maps the
// returned utterances onto transcribe.Turn values.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MrWong99/dialmap/pkg/provider/transcribe"
)

const (
	deepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the API endpoint. Useful for tests and self-hosted
// Deepgram deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// Provider implements transcribe.Provider backed by the Deepgram batch API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	endpoint   string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		endpoint:   deepgramEndpoint,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

var _ transcribe.Provider = (*Provider)(nil)

// response mirrors the slice of the Deepgram prerecorded response we consume.
type response struct {
	Results struct {
		Utterances []utterance `json:"utterances"`
	} `json:"results"`
}

type utterance struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Transcript string  `json:"transcript"`
	Speaker    int     `json:"speaker"`
}

// Transcribe implements transcribe.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, cfg transcribe.Config) ([]transcribe.Turn, error) {
	if len(audio) == 0 {
		return nil, nil
	}

	reqURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("deepgram: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+p.apiKey)
	httpReq.Header.Set("Content-Type", "audio/wav")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("deepgram: transcribe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("deepgram: transcribe: unexpected status %d: %s", resp.StatusCode, excerpt)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("deepgram: decode response: %w", err)
	}

	turns := make([]transcribe.Turn, 0, len(out.Results.Utterances))
	for _, u := range out.Results.Utterances {
		if u.Transcript == "" {
			continue
		}
		t := transcribe.Turn{
			Text:  u.Transcript,
			Start: secondsToDuration(u.Start),
			End:   secondsToDuration(u.End),
		}
		if cfg.Diarize {
			t.Speaker = strconv.Itoa(u.Speaker)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// buildURL constructs the prerecorded endpoint URL for the given config.
func (p *Provider) buildURL(cfg transcribe.Config) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("utterances", "true")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	if cfg.Diarize {
		q.Set("diarize", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// secondsToDuration converts Deepgram's fractional-second offsets.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
