package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per capability. Used by
// [Validate] to reject unrecognised names early instead of failing at
// registry lookup time.
var ValidProviderNames = map[string][]string{
	"voice":       {"hamming", "mock"},
	"transcriber": {"deepgram", "whisper", "mock"},
	"llm":         {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "openai-native", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, overlays
// environment credentials, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	ApplyDefaults(cfg)
	ApplyEnvCredentials(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued exploration and server knobs.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	e := &cfg.Exploration
	if e.WorkerCount == 0 {
		e.WorkerCount = 4
	}
	if e.MaxCalls == 0 {
		e.MaxCalls = 100
	}
	if e.MaxWallTimeS == 0 {
		e.MaxWallTimeS = 3600
	}
	if e.SimilarityThreshold == 0 {
		e.SimilarityThreshold = 0.85
	}
	if e.TaskRetryMax == 0 {
		e.TaskRetryMax = 3
	}
	if e.LLMRetryMax == 0 {
		e.LLMRetryMax = 2
	}
	if e.CallTimeoutS == 0 {
		e.CallTimeoutS = 300
	}
	if e.PlateauWindow == 0 {
		e.PlateauWindow = 20
	}
	if e.MaxDepth == 0 {
		e.MaxDepth = 10
	}
	if e.BreadthCap == 0 {
		e.BreadthCap = 5
	}
}

// ApplyEnvCredentials fills empty provider api_key fields from the
// environment, using the convention <NAME>_API_KEY (HAMMING_API_KEY,
// DEEPGRAM_API_KEY, OPENAI_API_KEY, ...). YAML values win over env.
func ApplyEnvCredentials(cfg *Config) {
	for _, entry := range []*ProviderEntry{
		&cfg.Providers.Voice,
		&cfg.Providers.Transcriber,
		&cfg.Providers.LLM,
	} {
		if entry.Name == "" || entry.APIKey != "" {
			continue
		}
		envKey := strings.ToUpper(strings.ReplaceAll(entry.Name, "-", "_")) + "_API_KEY"
		if v := os.Getenv(envKey); v != "" {
			entry.APIKey = v
		}
	}
}

// Validate checks that cfg contains a coherent set of values. Call after
// [ApplyDefaults]. It returns a joined error listing all validation
// failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.PublicWebhookURL == "" {
		errs = append(errs, errors.New("server.public_webhook_url must be set; the telephony platform cannot notify call completion without it"))
	}

	if cfg.Target.PhoneNumber == "" {
		errs = append(errs, errors.New("target.phone_number must be set"))
	}
	if cfg.Target.Scenario == "" {
		errs = append(errs, errors.New("target.scenario must be set"))
	}

	e := cfg.Exploration
	if e.WorkerCount < 1 {
		errs = append(errs, fmt.Errorf("exploration.worker_count %d must be at least 1", e.WorkerCount))
	}
	if e.MaxCalls < 1 {
		errs = append(errs, fmt.Errorf("exploration.max_calls %d must be at least 1", e.MaxCalls))
	}
	if e.SimilarityThreshold <= 0 || e.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("exploration.similarity_threshold %g must be in (0, 1]", e.SimilarityThreshold))
	}
	if e.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("exploration.max_depth %d must be at least 1", e.MaxDepth))
	}
	if e.BreadthCap < 1 {
		errs = append(errs, fmt.Errorf("exploration.breadth_cap %d must be at least 1", e.BreadthCap))
	}

	errs = append(errs, validateProviderName("voice", cfg.Providers.Voice.Name))
	errs = append(errs, validateProviderName("transcriber", cfg.Providers.Transcriber.Name))
	errs = append(errs, validateProviderName("llm", cfg.Providers.LLM.Name))

	return errors.Join(errs...)
}

// validateProviderName returns an error for empty or unknown provider
// names.
func validateProviderName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("providers.%s.name must be set", kind)
	}
	for _, valid := range ValidProviderNames[kind] {
		if name == valid {
			return nil
		}
	}
	return fmt.Errorf("providers.%s.name %q is unknown; valid values: %s", kind, name, strings.Join(ValidProviderNames[kind], ", "))
}
