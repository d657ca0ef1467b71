package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/conduit"
	"github.com/aretw0/conduit/internal/presentation/graph"
	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// DefaultDiffInterval is how often graph streams poll for changes.
const DefaultDiffInterval = 250 * time.Millisecond

// eventBuffer bounds the per-client event queue; slow clients lose events.
const eventBuffer = 64

// Engine is the part of the conduit runtime the HTTP API drives.
type Engine interface {
	ID() string
	Status() domain.ExecutionStatus
	Inspect() domain.GraphDescription
	Node(id string) (domain.NodeDescription, bool)
	SetParam(nodeID, name string, value any) error
	Pause(paused bool)
	Step(ctx context.Context) error
	Stop()
	Snapshot(ctx context.Context) (*domain.GraphSnapshot, error)
	Events(ctx context.Context, n int) <-chan domain.Event
}

var _ Engine = (*conduit.Engine)(nil)

// Server serves the control and inspection API of one engine.
type Server struct {
	Engine       Engine
	metrics      http.Handler
	logger       *slog.Logger
	diffInterval time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDiffInterval sets the polling interval of GET /graph/events.
func WithDiffInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.diffInterval = d
		}
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine:       engine,
		logger:       slog.Default(),
		diffInterval: DefaultDiffInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/graph", s.GetGraph)
	r.Get("/graph/mermaid", s.GetMermaid)
	r.Get("/graph/events", s.SubscribeGraph)
	r.Get("/events", s.SubscribeEvents)
	r.Get("/nodes/{id}", s.GetNode)
	r.Put("/nodes/{id}/params/{name}", s.SetParam)
	r.Post("/snapshot", s.TakeSnapshot)
	r.Route("/control", func(r chi.Router) {
		r.Post("/pause", s.control("pause"))
		r.Post("/resume", s.control("resume"))
		r.Post("/step", s.control("step"))
		r.Post("/stop", s.control("stop"))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":      "conduit-http",
		"version":  strings.TrimSpace(conduit.Version),
		"graph_id": s.Engine.ID(),
		"status":   string(s.Engine.Status()),
	})
}

// GetGraph handles the GET /graph request.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.Inspect())
}

// GetMermaid renders the live graph as a Mermaid flowchart.
func (s *Server) GetMermaid(w http.ResponseWriter, r *http.Request) {
	desc := s.Engine.Inspect()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, graph.GenerateMermaid(desc, graph.OverlayFrom(desc)))
}

// GetNode handles the GET /nodes/{id} request.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node, ok := s.Engine.Node(id)
	if !ok {
		http.Error(w, fmt.Sprintf("node %q not found", id), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, node)
}

// SetParam handles PUT /nodes/{id}/params/{name}. The body is the JSON
// encoded value.
func (s *Server) SetParam(w http.ResponseWriter, r *http.Request) {
	id, name := chi.URLParam(r, "id"), chi.URLParam(r, "name")

	var value any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("SetParam: invalid request body", "error", err)
		return
	}

	if err := s.Engine.SetParam(id, name, value); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrNodeNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.logger.Info("parameter set", "node", id, "param", name)

	node, _ := s.Engine.Node(id)
	s.writeJSON(w, http.StatusOK, node)
}

// TakeSnapshot handles POST /snapshot.
func (s *Server) TakeSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Engine.Snapshot(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Snapshot error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Snapshot failed", "error", err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) control(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch action {
		case "pause":
			s.Engine.Pause(true)
		case "resume":
			s.Engine.Pause(false)
		case "stop":
			s.Engine.Stop()
		case "step":
			if err := s.Engine.Step(r.Context()); err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, scheduler.ErrPaused) || errors.Is(err, scheduler.ErrNotRunning) {
					status = http.StatusConflict
				}
				http.Error(w, fmt.Sprintf("Step error: %v", err), status)
				return
			}
		}
		s.logger.Info("control", "action", action)
		s.writeJSON(w, http.StatusOK, map[string]string{"status": string(s.Engine.Status())})
	}
}

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	return flusher, true
}

// SubscribeEvents handles the GET /events request (SSE). The optional watch
// query parameter is a comma separated list of event types to forward.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	watch := make(map[domain.EventType]bool)
	if q := r.URL.Query().Get("watch"); q != "" {
		for _, t := range strings.Split(q, ",") {
			watch[domain.EventType(strings.TrimSpace(t))] = true
		}
	}

	subscriber := uuid.NewString()
	s.logger.Info("SSE: client subscribed", "subscriber", subscriber, "watch", r.URL.Query().Get("watch"))
	events := s.Engine.Events(r.Context(), eventBuffer)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: client disconnected", "subscriber", subscriber)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if len(watch) > 0 && !watch[ev.Type()] {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("SSE: event encode failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type(), data)
			flusher.Flush()
		}
	}
}

// SubscribeGraph handles GET /graph/events. The first message carries the
// whole graph, later ones only what changed.
func (s *Server) SubscribeGraph(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	var last *domain.GraphDescription
	send := func() {
		cur := s.Engine.Inspect()
		diff := domain.Diff(last, &cur)
		last = &cur
		if diff == nil {
			return
		}
		data, err := json.Marshal(diff)
		if err != nil {
			s.logger.Warn("SSE: diff encode failed", "error", err)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", domain.EventGraphChanged, data)
		flusher.Flush()
	}
	send()

	ticker := time.NewTicker(s.diffInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			send()
		}
	}
}
