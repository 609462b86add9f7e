// Package config provides the configuration schema, loader, and provider
// registry for the dialmap exploration engine.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the dialmap server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l onto the slog level scale. Unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for dialmap.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Target      TargetConfig      `yaml:"target"`
	Exploration ExplorationConfig `yaml:"exploration"`
	Providers   ProvidersConfig   `yaml:"providers"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// PublicWebhookURL is the externally reachable base URL that the
	// telephony platform POSTs completion events to. The webhook route is
	// appended to it.
	PublicWebhookURL string `yaml:"public_webhook_url"`
}

// TargetConfig identifies the remote agent under exploration.
type TargetConfig struct {
	// PhoneNumber is the E.164 number of the agent to map.
	PhoneNumber string `yaml:"phone_number"`

	// Scenario is the business-context description used in every prompt
	// (e.g., "an auto dealership service line").
	Scenario string `yaml:"scenario"`
}

// ExplorationConfig holds the budget and tuning knobs of a run.
// Zero values receive defaults in [ApplyDefaults].
type ExplorationConfig struct {
	// WorkerCount is the number of concurrent call workers. Default 4.
	WorkerCount int `yaml:"worker_count"`

	// MaxCalls caps the number of calls placed in one run. Default 100.
	MaxCalls int `yaml:"max_calls"`

	// MaxWallTimeS caps the run duration in seconds. Default 3600.
	MaxWallTimeS int `yaml:"max_wall_time_s"`

	// SimilarityThreshold is the node-identity threshold. Default 0.85.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// TaskRetryMax is how often a failed exploration task is re-enqueued.
	// Default 3.
	TaskRetryMax int `yaml:"task_retry_max"`

	// LLMRetryMax is how often a malformed model reply is re-asked with the
	// strict reprompt. Default 2.
	LLMRetryMax int `yaml:"llm_retry_max"`

	// CallTimeoutS is how long a worker waits for the completion webhook,
	// in seconds. Default 300.
	CallTimeoutS int `yaml:"call_timeout_s"`

	// PlateauWindow is how many recent calls without discoveries end the
	// run early. Default 20.
	PlateauWindow int `yaml:"plateau_window"`

	// RandomSeed fixes jitter and model sampling for reproducible runs.
	// Zero leaves sampling unseeded.
	RandomSeed int64 `yaml:"random_seed"`

	// MaxDepth caps how far from the root a path may be extended.
	// Default 10.
	MaxDepth int `yaml:"max_depth"`

	// BreadthCap caps the outgoing edges explored per node. Default 5.
	BreadthCap int `yaml:"breadth_cap"`

	// StrictRoot aborts a task whose first transcribed agent utterance does
	// not match the known root state. Default true.
	StrictRoot *bool `yaml:"strict_root"`
}

// CallTimeout returns CallTimeoutS as a duration.
func (e ExplorationConfig) CallTimeout() time.Duration {
	return time.Duration(e.CallTimeoutS) * time.Second
}

// MaxWallTime returns MaxWallTimeS as a duration.
func (e ExplorationConfig) MaxWallTime() time.Duration {
	return time.Duration(e.MaxWallTimeS) * time.Second
}

// StrictRootEnabled resolves the StrictRoot pointer with its default.
func (e ExplorationConfig) StrictRootEnabled() bool {
	return e.StrictRoot == nil || *e.StrictRoot
}

// ProvidersConfig declares which provider implementation to use for each
// capability. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	Voice       ProviderEntry `yaml:"voice"`
	Transcriber ProviderEntry `yaml:"transcriber"`
	LLM         ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the
// [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "hamming", "deepgram", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Empty values are filled from the environment by [ApplyEnvCredentials].
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "nova-3").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}
