package config_test

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/MrWong99/dialmap/internal/config"
)

const minimalYAML = `
server:
  public_webhook_url: https://dialmap.example.com/webhook/call-complete
target:
  phone_number: "+14155550123"
  scenario: an auto dealership service line
providers:
  voice:
    name: mock
  transcriber:
    name: mock
  llm:
    name: mock
`

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr default: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level default: got %q", cfg.Server.LogLevel)
	}

	e := cfg.Exploration
	if e.WorkerCount != 4 || e.MaxCalls != 100 || e.MaxWallTimeS != 3600 {
		t.Errorf("budget defaults: workers %d, calls %d, wall %d", e.WorkerCount, e.MaxCalls, e.MaxWallTimeS)
	}
	if e.SimilarityThreshold != 0.85 {
		t.Errorf("similarity_threshold default: got %g", e.SimilarityThreshold)
	}
	if e.TaskRetryMax != 3 || e.LLMRetryMax != 2 {
		t.Errorf("retry defaults: task %d, llm %d", e.TaskRetryMax, e.LLMRetryMax)
	}
	if e.CallTimeoutS != 300 || e.PlateauWindow != 20 {
		t.Errorf("timeout/window defaults: %d, %d", e.CallTimeoutS, e.PlateauWindow)
	}
	if e.MaxDepth != 10 || e.BreadthCap != 5 {
		t.Errorf("shape defaults: depth %d, breadth %d", e.MaxDepth, e.BreadthCap)
	}
	if !e.StrictRootEnabled() {
		t.Error("strict_root must default to true")
	}
}

func TestLoadFromReader_ExplicitValuesWin(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(`
server:
  listen_addr: ":9090"
  log_level: debug
  public_webhook_url: https://dialmap.example.com/webhook/call-complete
target:
  phone_number: "+14155550123"
  scenario: a pharmacy refill line
exploration:
  worker_count: 2
  max_calls: 10
  similarity_threshold: 0.9
  strict_root: false
providers:
  voice:
    name: hamming
    api_key: key-from-yaml
  transcriber:
    name: deepgram
    model: nova-3
  llm:
    name: openai
    model: gpt-4o-mini
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server: %+v", cfg.Server)
	}
	if cfg.Exploration.WorkerCount != 2 || cfg.Exploration.MaxCalls != 10 {
		t.Errorf("exploration: %+v", cfg.Exploration)
	}
	if cfg.Exploration.SimilarityThreshold != 0.9 {
		t.Errorf("similarity_threshold: got %g", cfg.Exploration.SimilarityThreshold)
	}
	if cfg.Exploration.StrictRootEnabled() {
		t.Error("strict_root: false must survive loading")
	}
	if cfg.Providers.Voice.APIKey != "key-from-yaml" {
		t.Errorf("voice api_key: got %q", cfg.Providers.Voice.APIKey)
	}
	if cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm model: got %q", cfg.Providers.LLM.Model)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + `
extra_section:
  foo: bar
`))
	if err == nil {
		t.Fatal("unknown top-level keys must be rejected")
	}
}

func TestLoadFromReader_ValidationErrorsJoined(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(`
exploration:
  similarity_threshold: 1.5
providers:
  voice:
    name: nope
  transcriber:
    name: mock
  llm:
    name: mock
`))
	if err == nil {
		t.Fatal("invalid config must not load")
	}
	for _, want := range []string{
		"public_webhook_url",
		"phone_number",
		"scenario",
		"similarity_threshold",
		`voice.name "nope"`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestApplyEnvCredentials(t *testing.T) {
	t.Setenv("HAMMING_API_KEY", "env-hamming")
	t.Setenv("OPENAI_NATIVE_API_KEY", "env-openai")

	cfg := &config.Config{}
	cfg.Providers.Voice = config.ProviderEntry{Name: "hamming"}
	cfg.Providers.Transcriber = config.ProviderEntry{Name: "deepgram", APIKey: "from-yaml"}
	cfg.Providers.LLM = config.ProviderEntry{Name: "openai-native"}

	config.ApplyEnvCredentials(cfg)

	if got := cfg.Providers.Voice.APIKey; got != "env-hamming" {
		t.Errorf("voice api_key from env: got %q", got)
	}
	if got := cfg.Providers.Transcriber.APIKey; got != "from-yaml" {
		t.Errorf("yaml api_key must win over env: got %q", got)
	}
	if got := cfg.Providers.LLM.APIKey; got != "env-openai" {
		t.Errorf("dashed provider name must map to underscored env var: got %q", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/does/not/exist.yaml")
	if err == nil {
		t.Fatal("missing file must error")
	}
}

func TestValidate_ProviderNameRequired(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.PublicWebhookURL = "https://x.example.com/hook"
	cfg.Target.PhoneNumber = "+14155550123"
	cfg.Target.Scenario = "x"
	cfg.Providers.Voice.Name = "mock"
	cfg.Providers.Transcriber.Name = "mock"

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "providers.llm.name must be set") {
		t.Errorf("missing llm provider name must fail validation, got: %v", err)
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()

	if config.LogLevel("verbose").IsValid() {
		t.Error("unknown level must be invalid")
	}
	if !config.LogWarn.IsValid() {
		t.Error("warn is a valid level")
	}
	if got := config.LogLevel("verbose").SlogLevel(); got != slog.LevelInfo {
		t.Errorf("unknown level must map to info, got %v", got)
	}
}
