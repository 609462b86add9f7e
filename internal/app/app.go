// Package app wires the dialmap subsystems into a running exploration.
//
// New builds the shared run state (graph, frontier, webhook correlator,
// progress tracker), the worker and explorer, and the HTTP server that
// receives completion webhooks and serves the graph. Run executes the
// exploration until quiescence; Shutdown tears everything down in order.
//
// For testing, inject mock providers through the [Providers] struct and
// tune internals with Option functions.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/dialmap/internal/api"
	"github.com/MrWong99/dialmap/internal/config"
	"github.com/MrWong99/dialmap/internal/explore"
	"github.com/MrWong99/dialmap/internal/frontier"
	"github.com/MrWong99/dialmap/internal/graph"
	"github.com/MrWong99/dialmap/internal/health"
	"github.com/MrWong99/dialmap/internal/observe"
	"github.com/MrWong99/dialmap/internal/progress"
	"github.com/MrWong99/dialmap/internal/webhook"
	"github.com/MrWong99/dialmap/pkg/provider/llm"
	"github.com/MrWong99/dialmap/pkg/provider/transcribe"
	"github.com/MrWong99/dialmap/pkg/provider/voice"
)

// readHeaderTimeout bounds slow-header clients on the webhook listener.
const readHeaderTimeout = 10 * time.Second

// Providers holds the three external collaborators of a run. All fields are
// required; main.go populates them via the config registry, tests inject
// mocks.
type Providers struct {
	Voice       voice.Provider
	Transcriber transcribe.Provider
	LLM         llm.Provider
}

// App owns the run state and subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	graph      *graph.Graph
	queue      *frontier.Queue
	correlator *webhook.Correlator
	tracker    *progress.Tracker
	metrics    *observe.Metrics

	explorer *explore.Explorer
	listener net.Listener
	server   *http.Server

	// closers run in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects an isolated instrument set instead of the process
// globals.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New builds the application. The listener is bound here so a taken port
// fails fast, before any call is placed.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Voice == nil || providers.Transcriber == nil || providers.LLM == nil {
		return nil, errors.New("app: voice, transcriber, and llm providers are all required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	e := cfg.Exploration
	a.graph = graph.New(graph.WithSimilarityThreshold(e.SimilarityThreshold))
	a.queue = frontier.New()
	a.correlator = webhook.NewCorrelator()
	a.tracker = progress.NewTracker(
		progress.WithMetrics(a.metrics),
		progress.WithPlateauWindow(e.PlateauWindow),
	)

	worker := explore.NewWorker(explore.WorkerConfig{
		Scenario:    cfg.Target.Scenario,
		PhoneNumber: cfg.Target.PhoneNumber,
		WebhookURL:  webhookURL(cfg.Server.PublicWebhookURL),
		Language:    "en",
		CallTimeout: e.CallTimeout(),
		MaxDepth:    e.MaxDepth,
		BreadthCap:  e.BreadthCap,
		LLMRetryMax: e.LLMRetryMax,
		StrictRoot:  e.StrictRootEnabled(),
		Temperature: 0.7,
		Seed:        e.RandomSeed,
	}, providers.Voice, providers.Transcriber, providers.LLM,
		a.graph, a.correlator, a.tracker,
		explore.WithWorkerMetrics(a.metrics),
	)

	a.explorer = explore.NewExplorer(explore.ExplorerConfig{
		WorkerCount:  e.WorkerCount,
		MaxCalls:     e.MaxCalls,
		MaxWallTime:  e.MaxWallTime(),
		TaskRetryMax: e.TaskRetryMax,
	}, worker, a.queue, a.tracker,
		explore.WithExplorerMetrics(a.metrics),
	)

	srv := api.NewServer(a.graph, a.tracker, a.correlator,
		api.WithMetrics(a.metrics),
		api.WithHealthHandler(health.New(a.readinessCheckers()...)),
	)

	ln, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("app: listen on %q: %w", cfg.Server.ListenAddr, err)
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	a.closers = append(a.closers, ln.Close)

	return a, nil
}

// Addr returns the bound listen address, useful when the config requested
// port 0.
func (a *App) Addr() string {
	return a.listener.Addr().String()
}

// Stats returns a copy of the current run counters.
func (a *App) Stats() progress.Stats {
	return a.tracker.Snapshot()
}

// Summary renders the human-readable end-of-run progress block.
func (a *App) Summary() string {
	return a.tracker.Summary()
}

// Run serves HTTP and executes the exploration until a stop condition or
// cancellation, then returns. A server failure (other than a clean close)
// aborts the run.
func (a *App) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.Serve(a.listener)
	}()
	slog.Info("http server listening", "addr", a.Addr())

	runErr := a.explorer.Run(ctx)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
	default:
	}
	return runErr
}

// Shutdown stops the HTTP server and releases resources. Idempotent; honours
// the context deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownErr = err
		}
		for i, closer := range a.closers {
			if err := closer(); err != nil && !errors.Is(err, net.ErrClosed) {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
	})
	return shutdownErr
}

// readinessCheckers reports whether each provider slot is populated. Provider
// reachability is probed lazily by the first call; readiness only guards
// against wiring mistakes.
func (a *App) readinessCheckers() []health.Checker {
	present := func(name string, v any) health.Checker {
		return health.Checker{
			Name: name,
			Check: func(context.Context) error {
				if v == nil {
					return fmt.Errorf("%s provider not configured", name)
				}
				return nil
			},
		}
	}
	return []health.Checker{
		present("voice", a.providers.Voice),
		present("transcriber", a.providers.Transcriber),
		present("llm", a.providers.LLM),
	}
}

// webhookURL joins the configured public base URL with the webhook route.
// Configs that already name the full route are passed through unchanged.
func webhookURL(base string) string {
	base = strings.TrimSuffix(base, "/")
	if strings.HasSuffix(base, api.WebhookPath) {
		return base
	}
	return base + api.WebhookPath
}
