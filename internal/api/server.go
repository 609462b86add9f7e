// Package api exposes the dialmap HTTP surface: the call-completion webhook
// the telephony platform POSTs to, read-only views of the discovered graph
// and run statistics, the Prometheus scrape endpoint, and the health probes.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/dialmap/internal/graph"
	"github.com/MrWong99/dialmap/internal/health"
	"github.com/MrWong99/dialmap/internal/observe"
	"github.com/MrWong99/dialmap/internal/progress"
	"github.com/MrWong99/dialmap/internal/webhook"
)

// WebhookPath is the route the telephony platform is told to POST call
// completion events to. It is appended to server.public_webhook_url when
// registering calls.
const WebhookPath = "/webhook/call-complete"

// webhookRequest is the JSON body of a call completion event.
type webhookRequest struct {
	CallID             string  `json:"call_id"`
	Status             string  `json:"status"`
	RecordingAvailable bool    `json:"recording_available"`
	RecordingURL       string  `json:"recording_url"`
	DurationS          float64 `json:"duration_s"`
	Error              string  `json:"error"`
}

// graphNode and graphEdge shape the GET /graph response.
type graphNode struct {
	ID         string `json:"id"`
	Utterance  string `json:"utterance"`
	IsTerminal bool   `json:"is_terminal"`
	DepthMin   int    `json:"depth_min"`
	VisitCount int    `json:"visit_count"`
}

type graphEdge struct {
	From             string `json:"from"`
	To               string `json:"to"`
	UserResponse     string `json:"user_response"`
	ObservationCount int    `json:"observation_count"`
}

type graphResponse struct {
	Root  string      `json:"root,omitempty"`
	Nodes []graphNode `json:"nodes"`
	Edges []graphEdge `json:"edges"`
}

// statsResponse shapes the GET /stats response.
type statsResponse struct {
	CallsAttempted     int            `json:"calls_attempted"`
	CallsSucceeded     int            `json:"calls_succeeded"`
	CallsFailed        int            `json:"calls_failed"`
	FailuresByKind     map[string]int `json:"failures_by_kind,omitempty"`
	Nodes              int            `json:"nodes"`
	Edges              int            `json:"edges"`
	TerminalNodes      int            `json:"terminal_nodes"`
	MaxDepth           int            `json:"max_depth"`
	DiarizationSuspect int            `json:"diarization_suspect"`
	DurationS          float64        `json:"duration_s"`
}

// Server bundles the HTTP handlers around the shared run state. Construct
// with [NewServer] and mount via [Server.Handler].
type Server struct {
	graph      *graph.Graph
	tracker    *progress.Tracker
	correlator *webhook.Correlator
	health     *health.Handler
	metrics    *observe.Metrics
	logger     *slog.Logger
}

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithHealthHandler sets the health probe handler mounted at /healthz and
// /readyz. Default: a handler with no readiness checkers.
func WithHealthHandler(h *health.Handler) ServerOption {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the instrument set used for request latency recording.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the request logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server over the run's graph, tracker, and webhook
// correlator.
func NewServer(g *graph.Graph, tr *progress.Tracker, c *webhook.Correlator, opts ...ServerOption) *Server {
	s := &Server{
		graph:      g,
		tracker:    tr,
		correlator: c,
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Handler returns the full route table as an [http.Handler].
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+WebhookPath, s.handleWebhook)
	mux.HandleFunc("GET /graph", s.handleGraph)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)
	return s.timed(mux)
}

// handleWebhook accepts a call completion event and hands it to the
// correlator. Malformed bodies get a 400; events for unknown calls are still
// accepted because the correlator buffers them until a worker registers.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed webhook body: " + err.Error()})
		return
	}
	if req.CallID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "call_id is required"})
		return
	}

	s.correlator.Deliver(webhook.Event{
		CallID:             req.CallID,
		Status:             req.Status,
		RecordingAvailable: req.RecordingAvailable,
		RecordingURL:       req.RecordingURL,
		Duration:           time.Duration(req.DurationS * float64(time.Second)),
		Error:              req.Error,
	})

	s.logger.Debug("webhook event accepted", "call_id", req.CallID, "status", req.Status)
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// handleGraph serves a consistent snapshot of the discovered graph.
func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	snap := s.graph.Snapshot()

	resp := graphResponse{
		Root:  string(snap.Root),
		Nodes: make([]graphNode, 0, len(snap.Nodes)),
		Edges: make([]graphEdge, 0, len(snap.Edges)),
	}
	for _, n := range snap.Nodes {
		resp.Nodes = append(resp.Nodes, graphNode{
			ID:         string(n.ID),
			Utterance:  n.Utterance,
			IsTerminal: n.Terminal,
			DepthMin:   n.DepthMin,
			VisitCount: n.VisitCount,
		})
	}
	for _, e := range snap.Edges {
		resp.Edges = append(resp.Edges, graphEdge{
			From:             string(e.From),
			To:               string(e.To),
			UserResponse:     e.UserResponse,
			ObservationCount: e.ObservationCount,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStats serves the progress counters.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.tracker.Snapshot()

	writeJSON(w, http.StatusOK, statsResponse{
		CallsAttempted:     st.CallsAttempted,
		CallsSucceeded:     st.CallsSucceeded,
		CallsFailed:        st.CallsFailed,
		FailuresByKind:     st.FailuresByKind,
		Nodes:              st.Nodes,
		Edges:              st.Edges,
		TerminalNodes:      st.TerminalNodes,
		MaxDepth:           st.MaxDepth,
		DiarizationSuspect: st.DiarizationSuspect,
		DurationS:          st.Duration().Seconds(),
	})
}

// timed wraps next and records request latency per method and path.
func (s *Server) timed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.metrics.HTTPRequestDuration.Record(r.Context(), time.Since(start).Seconds(),
			metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("path", r.URL.Path),
			))
	})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
