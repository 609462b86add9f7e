package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/dialmap/internal/api"
	"github.com/MrWong99/dialmap/internal/graph"
	"github.com/MrWong99/dialmap/internal/health"
	"github.com/MrWong99/dialmap/internal/observe"
	"github.com/MrWong99/dialmap/internal/progress"
	"github.com/MrWong99/dialmap/internal/webhook"
)

type fixture struct {
	graph      *graph.Graph
	tracker    *progress.Tracker
	correlator *webhook.Correlator
	handler    http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := &fixture{
		graph:      graph.New(),
		tracker:    progress.NewTracker(progress.WithMetrics(m)),
		correlator: webhook.NewCorrelator(),
	}
	srv := api.NewServer(f.graph, f.tracker, f.correlator, api.WithMetrics(m))
	f.handler = srv.Handler()
	return f
}

func TestWebhook_DeliversToRegisteredWaiter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	events := f.correlator.Register("call-42")

	body := `{"call_id": "call-42", "status": "completed", "recording_available": true, "duration_s": 33.5}`
	req := httptest.NewRequest("POST", api.WebhookPath, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	select {
	case ev := <-events:
		if ev.Status != "completed" || !ev.RecordingAvailable {
			t.Errorf("event = %+v", ev)
		}
		if ev.Duration != 33500*time.Millisecond {
			t.Errorf("duration = %v", ev.Duration)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook event never reached the waiter")
	}
}

func TestWebhook_MalformedBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	for name, body := range map[string]string{
		"invalid json":  `{"call_id": `,
		"unknown field": `{"call_id": "x", "surprise": true}`,
		"empty call_id": `{"status": "completed"}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("POST", api.WebhookPath, strings.NewReader(body))
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestWebhook_UnknownCallStillAccepted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	body := `{"call_id": "never-registered", "status": "completed"}`
	req := httptest.NewRequest("POST", api.WebhookPath, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d; early webhooks must be buffered, not rejected", rec.Code)
	}

	// A late registration still receives the buffered event.
	select {
	case ev := <-f.correlator.Register("never-registered"):
		if ev.Status != "completed" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("buffered event not replayed on registration")
	}
}

func TestGraph_SnapshotJSON(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	root, _ := f.graph.GetOrCreateNode("Thanks for calling, how can I help?", 0)
	leaf, _ := f.graph.GetOrCreateNode("Goodbye!", 1)
	f.graph.AddEdge(root, "goodbye", leaf)
	f.graph.MarkTerminal(leaf)

	req := httptest.NewRequest("GET", "/graph", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Root  string `json:"root"`
		Nodes []struct {
			ID         string `json:"id"`
			Utterance  string `json:"utterance"`
			IsTerminal bool   `json:"is_terminal"`
		} `json:"nodes"`
		Edges []struct {
			From         string `json:"from"`
			To           string `json:"to"`
			UserResponse string `json:"user_response"`
		} `json:"edges"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if resp.Root != string(root) {
		t.Errorf("root = %q, want %q", resp.Root, root)
	}
	if len(resp.Nodes) != 2 || len(resp.Edges) != 1 {
		t.Fatalf("nodes = %d, edges = %d", len(resp.Nodes), len(resp.Edges))
	}
	var sawTerminal bool
	for _, n := range resp.Nodes {
		if n.ID == string(leaf) && n.IsTerminal {
			sawTerminal = true
		}
	}
	if !sawTerminal {
		t.Error("terminal flag lost in snapshot")
	}
	if resp.Edges[0].From != string(root) || resp.Edges[0].To != string(leaf) {
		t.Errorf("edge = %+v", resp.Edges[0])
	}
}

func TestStats_ReflectsTracker(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.tracker.CallSucceeded(ctx, 30*time.Second, 1, 1)
	f.tracker.CallFailed(ctx, time.Minute, "dial_failed")
	f.tracker.NodeDiscovered(ctx, 2, false)
	f.tracker.EdgeDiscovered(ctx)

	req := httptest.NewRequest("GET", "/stats", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		CallsAttempted int            `json:"calls_attempted"`
		CallsFailed    int            `json:"calls_failed"`
		FailuresByKind map[string]int `json:"failures_by_kind"`
		Nodes          int            `json:"nodes"`
		MaxDepth       int            `json:"max_depth"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CallsAttempted != 2 || resp.CallsFailed != 1 {
		t.Errorf("calls: %+v", resp)
	}
	if resp.FailuresByKind["dial_failed"] != 1 {
		t.Errorf("failures_by_kind: %v", resp.FailuresByKind)
	}
	if resp.Nodes != 1 || resp.MaxDepth != 2 {
		t.Errorf("graph counters: %+v", resp)
	}
}

func TestHealthRoutes_Mounted(t *testing.T) {
	t.Parallel()

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	srv := api.NewServer(graph.New(), progress.NewTracker(progress.WithMetrics(m)), webhook.NewCorrelator(),
		api.WithMetrics(m),
		api.WithHealthHandler(health.New(
			health.Checker{Name: "voice", Check: func(context.Context) error { return nil }},
		)),
	)
	h := srv.Handler()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}
