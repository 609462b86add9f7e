// Package whisper provides a transcribe.Provider backed by the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// whisper.cpp has no speaker diarization, so returned turns carry empty
// Speaker labels; callers assign roles by alternation.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/dialmap/pkg/provider/transcribe"
)

const defaultLanguage = "en"

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default language code for transcription (e.g., "en",
// "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// Provider implements transcribe.Provider using whisper.cpp Go bindings
// (CGO). The model is loaded once at construction and shared across all
// concurrent transcriptions.
type Provider struct {
	model    whisperlib.Model
	language string
}

// New creates a Provider that loads the whisper.cpp model from the given
// file path. The caller must call Close when the provider is no longer
// needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

var _ transcribe.Provider = (*Provider)(nil)

// Transcribe implements transcribe.Provider. The audio must be a WAV file
// containing 16-bit PCM; it is down-mixed to mono before inference.
//
// Each whisper segment becomes one turn. cfg.Diarize is ignored since
// whisper.cpp cannot label speakers.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, cfg transcribe.Config) ([]transcribe.Turn, error) {
	if len(audio) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	samples, err := decodeWAV(audio)
	if err != nil {
		return nil, fmt.Errorf("whisper: decode recording: %w", err)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	// Each whisper context is NOT thread-safe, but the model can be shared
	// across goroutines, so a fresh context per call keeps Transcribe
	// concurrency-safe.
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("whisper: set language %q: %w", lang, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var turns []transcribe.Turn
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		turns = append(turns, transcribe.Turn{
			Text:  text,
			Start: segment.Start,
			End:   segment.End,
		})
	}
	return turns, nil
}
