// Package server exposes the background counter over HTTP: the message
// surface page contexts post to, the badge state, the event stream for
// overlay renderers, and the options page.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"replyguy/pkg/replyguy"
)

//go:embed tmpl/*.tmpl
var templateFS embed.FS

// Templates.
var templates = template.Must(template.ParseFS(templateFS, "tmpl/*.tmpl"))

// Counter is the authoritative counter the server fronts.
type Counter interface {
	Increment(ctx context.Context) (int, error)
	Reset(ctx context.Context) (replyguy.State, error)
	SetRequired(ctx context.Context, required int) (replyguy.State, error)
	UserLeftTab(ctx context.Context) error
	RefreshBadge(ctx context.Context) error
	Status(ctx context.Context) (replyguy.State, error)
	Subscribe() <-chan replyguy.Event
	Unsubscribe(ch <-chan replyguy.Event)
}

// Server handles HTTP requests.
type Server struct {
	counter Counter
	logger  *slog.Logger
}

// New creates an HTTP server handler.
func New(counter Counter, logger *slog.Logger) *Server {
	return &Server{counter: counter, logger: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleOptions)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/increment", s.handleIncrement)
	mux.HandleFunc("/reset", s.handleReset)
	mux.HandleFunc("/required", s.handleRequired)
	mux.HandleFunc("/left-tab", s.handleLeftTab)
	mux.HandleFunc("/badge", s.handleBadge)
	mux.HandleFunc("/badge/refresh", s.handleBadgeRefresh)
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

// Start runs the HTTP server until it fails.
func (s *Server) Start(port string) error {
	// Configure server with timeouts to prevent resource exhaustion.
	// WriteTimeout is generous because /events holds its response open.
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "port", port)
	return server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

// handleStatus reports the current quota standing. Page contexts poll it to
// keep a synchronously readable quota cache for the unload prompt.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, err := s.counter.Status(r.Context())
	if err != nil {
		s.logger.Error("Status failed", "error", err)
		http.Error(w, "Status failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{
		"count":    st.Count,
		"required": st.RequiredReplies,
		"quotaMet": st.QuotaMet(),
	})
}

func (s *Server) handleIncrement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	newCount, err := s.counter.Increment(r.Context())
	if err != nil {
		s.logger.Error("Increment failed", "error", err)
		s.writeJSON(w, map[string]any{"success": false})
		return
	}
	s.writeJSON(w, map[string]any{"success": true, "newCount": newCount})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, err := s.counter.Reset(r.Context())
	if err != nil {
		s.logger.Error("Reset failed", "error", err)
		http.Error(w, "Reset failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"success": true, "newCount": st.Count})
}

func (s *Server) handleRequired(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	required, err := strconv.Atoi(r.FormValue("required"))
	if err != nil {
		http.Error(w, "Invalid required value", http.StatusBadRequest)
		return
	}

	st, err := s.counter.SetRequired(r.Context(), required)
	if err != nil {
		s.logger.Error("SetRequired failed", "error", err)
		http.Error(w, "Update failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"success": true, "required": st.RequiredReplies})
}

func (s *Server) handleLeftTab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.counter.UserLeftTab(r.Context()); err != nil {
		s.logger.Error("Left-tab handling failed", "error", err)
		http.Error(w, "Failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleBadge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, err := s.counter.Status(r.Context())
	if err != nil {
		s.logger.Error("Status failed", "error", err)
		http.Error(w, "Status failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]string{
		"text":  strconv.Itoa(st.Count),
		"color": st.BadgeColor(),
		"title": st.BadgeTitle(),
	})
}

func (s *Server) handleBadgeRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.counter.RefreshBadge(r.Context()); err != nil {
		s.logger.Error("Badge refresh failed", "error", err)
		http.Error(w, "Refresh failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"success": true})
}

// handleEvents streams celebration and roast events as newline-delimited
// JSON until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := s.counter.Subscribe()
	defer s.counter.Unsubscribe(events)

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if err := enc.Encode(ev); err != nil {
				s.logger.Debug("Event stream write failed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
