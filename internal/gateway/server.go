// Package gateway exposes the conversation pipeline over HTTP and
// websocket.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/curator-ai/curator/internal/conversation"
	"github.com/curator-ai/curator/internal/events"
	"github.com/curator-ai/curator/internal/gateway/ws"
	"github.com/curator-ai/curator/internal/intents"
	"github.com/curator-ai/curator/internal/router"
	"github.com/curator-ai/curator/internal/storage"
)

// Server is the curator gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	store      conversation.Store
	router     *router.Router
	usage      *storage.UsageTracker
}

// NewServer creates a new gateway server. usage may be nil when token
// accounting is not wired.
func NewServer(bus *events.Bus, store conversation.Store, rt *router.Router, usage *storage.UsageTracker, host string, port int) *Server {
	hub := ws.NewHub(bus, rt)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	s := &Server{
		hub:    hub,
		bus:    bus,
		store:  store,
		router: rt,
		usage:  usage,
	}

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", hub.ServeWS)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/conversations", s.handleConversations)
	r.Post("/api/conversations/{title}/intents", s.handleIntents)
	r.Get("/api/conversations/{title}/confirmations", s.handleListConfirmations)
	r.Get("/api/conversations/{title}/usage", s.handleUsage)
	r.Post("/api/confirmations/{id}", s.handleRespondConfirmation)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}

	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("curator gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// intentsRequest accepts either a raw utterance to extract from, or an
// already-extracted intent queue, typically a LOW_CONFIDENCE re-submission
// with intentExtractionConfirmed set.
type intentsRequest struct {
	Utterance                 string           `json:"utterance,omitempty"`
	Intents                   []intents.Intent `json:"intents,omitempty"`
	OriginalQuery             string           `json:"originalQuery,omitempty"`
	Lang                      string           `json:"lang,omitempty"`
	Explanation               string           `json:"explanation,omitempty"`
	Confidence                float64          `json:"confidence,omitempty"`
	IntentExtractionConfirmed bool             `json:"intentExtractionConfirmed,omitempty"`
}

func (s *Server) handleIntents(w http.ResponseWriter, r *http.Request) {
	title := chi.URLParam(r, "title")

	var req intentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var (
		out router.Outcome
		err error
	)
	switch {
	case req.Utterance != "":
		out, err = s.router.ProcessUtterance(r.Context(), title, req.Utterance, req.Lang)
	case len(req.Intents) > 0:
		out, err = s.router.ProcessIntents(r.Context(), router.Request{
			Title:                     title,
			Intents:                   req.Intents,
			OriginalQuery:             req.OriginalQuery,
			Lang:                      req.Lang,
			Explanation:               req.Explanation,
			Confidence:                req.Confidence,
			IntentExtractionConfirmed: req.IntentExtractionConfirmed,
		})
	default:
		http.Error(w, "either utterance or intents must be given", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleRespondConfirmation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	out, err := s.router.RespondToConfirmation(r.Context(), id, req.Confirmed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleListConfirmations(w http.ResponseWriter, r *http.Request) {
	title := chi.URLParam(r, "title")
	pending := s.router.PendingConfirmations(title)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pending)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	title := chi.URLParam(r, "title")

	if s.usage == nil {
		http.Error(w, "usage tracking not enabled", http.StatusNotFound)
		return
	}
	rec, ok := s.usage.Usage(title)
	if !ok {
		http.Error(w, "no usage recorded", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	limit := 50
	if limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}

	history := s.bus.History(limit)

	w.Header().Set("Content-Type", "application/json")

	type eventJSON struct {
		ID           string             `json:"id"`
		Conversation string             `json:"conversation,omitempty"`
		Type         string             `json:"type"`
		Timestamp    string             `json:"timestamp"`
		Source       events.EventSource `json:"source"`
		Payload      map[string]any     `json:"payload"`
	}

	result := make([]eventJSON, len(history))
	for i, e := range history {
		result[i] = eventJSON{
			ID:           e.ID,
			Conversation: e.Conversation,
			Type:         string(e.Type),
			Timestamp:    e.Timestamp.Format(time.RFC3339Nano),
			Source:       e.Source,
			Payload:      e.Payload,
		}
	}

	json.NewEncoder(w).Encode(result)
}
