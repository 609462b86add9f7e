// Command dialmap maps the decision tree of a phone-reachable voice agent by
// placing scripted exploration calls against it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/dialmap/internal/app"
	"github.com/MrWong99/dialmap/internal/config"
	"github.com/MrWong99/dialmap/internal/observe"
	"github.com/MrWong99/dialmap/pkg/provider/llm"
	"github.com/MrWong99/dialmap/pkg/provider/llm/anyllm"
	llmmock "github.com/MrWong99/dialmap/pkg/provider/llm/mock"
	oai "github.com/MrWong99/dialmap/pkg/provider/llm/openai"
	"github.com/MrWong99/dialmap/pkg/provider/transcribe"
	"github.com/MrWong99/dialmap/pkg/provider/transcribe/deepgram"
	transcribemock "github.com/MrWong99/dialmap/pkg/provider/transcribe/mock"
	"github.com/MrWong99/dialmap/pkg/provider/transcribe/whisper"
	"github.com/MrWong99/dialmap/pkg/provider/voice"
	"github.com/MrWong99/dialmap/pkg/provider/voice/hamming"
	voicemock "github.com/MrWong99/dialmap/pkg/provider/voice/mock"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Credentials commonly live in a .env next to the config; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "dialmap: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "dialmap: %v\n", err)
		}
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("dialmap starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"target", cfg.Target.PhoneNumber,
		"max_calls", cfg.Exploration.MaxCalls,
		"workers", cfg.Exploration.WorkerCount,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("exploration starting", "scenario", cfg.Target.Scenario)

	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown error", "err", err)
	}

	fmt.Println(application.Summary())

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	return 0
}

// registerBuiltinProviders wires the provider factories that ship with
// dialmap into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Voice ────────────────────────────────────────────────────────────────

	reg.RegisterVoice("hamming", func(entry config.ProviderEntry) (voice.Provider, error) {
		var opts []hamming.Option
		if entry.BaseURL != "" {
			opts = append(opts, hamming.WithBaseURL(entry.BaseURL))
		}
		return hamming.New(entry.APIKey, opts...)
	})
	reg.RegisterVoice("mock", func(config.ProviderEntry) (voice.Provider, error) {
		return &voicemock.Provider{}, nil
	})

	// ── Transcriber ──────────────────────────────────────────────────────────

	reg.RegisterTranscriber("deepgram", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(modelPath, opts...)
	})

	reg.RegisterTranscriber("mock", func(config.ProviderEntry) (transcribe.Provider, error) {
		return &transcribemock.Provider{}, nil
	})

	// ── LLM ──────────────────────────────────────────────────────────────────
	// The any-llm backends share one pattern: optional APIKey + BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; BaseURL is the address, no API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// openai-native talks to the OpenAI API through the official SDK, which
	// supports seeded sampling for reproducible runs.
	reg.RegisterLLM("openai-native", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oai.Option
		if entry.BaseURL != "" {
			opts = append(opts, oai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oai.WithOrganization(org))
		}
		return oai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
}

// buildProviders instantiates the three providers named in cfg.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	var err error

	if ps.Voice, err = reg.CreateVoice(cfg.Providers.Voice); err != nil {
		return nil, fmt.Errorf("create voice provider %q: %w", cfg.Providers.Voice.Name, err)
	}
	slog.Info("provider created", "kind", "voice", "name", cfg.Providers.Voice.Name)

	if ps.Transcriber, err = reg.CreateTranscriber(cfg.Providers.Transcriber); err != nil {
		return nil, fmt.Errorf("create transcriber provider %q: %w", cfg.Providers.Transcriber.Name, err)
	}
	slog.Info("provider created", "kind", "transcriber", "name", cfg.Providers.Transcriber.Name)

	if ps.LLM, err = reg.CreateLLM(cfg.Providers.LLM); err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	return ps, nil
}

// optString extracts a string from a provider Options map. Returns "" for a
// nil map, a missing key, or a non-string value.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
