// CLAUDE:SUMMARY HTTP surface of the console: chi router wiring gateway, activity feed, onboarding, conversations, websocket.
// Package server assembles the console's HTTP surface: the connector
// gateway, the live activity endpoints, the onboarding transitions, the
// conversation list, and the websocket fan-out.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chatdesk/console/convstore"
	"github.com/chatdesk/console/gateway"
	"github.com/chatdesk/console/livefeed"
	"github.com/chatdesk/console/onboarding"
	"github.com/chatdesk/console/wshub"
)

// sessionHeader carries the caller's session key. Absent header falls
// back to a shared default, which matches the single-operator install.
const sessionHeader = "X-Session-Key"

// Server holds the console's request-serving components.
type Server struct {
	gw      *gateway.Gateway
	feed    *livefeed.Feed
	onboard *onboarding.Controller
	convs   *convstore.Store
	hub     *wshub.Hub
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New wires the components into a Server.
func New(gw *gateway.Gateway, feed *livefeed.Feed, onboard *onboarding.Controller,
	convs *convstore.Store, hub *wshub.Hub, opts ...Option) *Server {
	s := &Server{
		gw:      gw,
		feed:    feed,
		onboard: onboard,
		convs:   convs,
		hub:     hub,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the chi router with the full middleware stack and all
// routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	s.gw.Mount(r)

	r.Route("/api", func(r chi.Router) {
		r.Get("/activity", s.handleActivity)
		r.Get("/analytics", s.handleAnalytics)

		r.Route("/onboarding", func(r chi.Router) {
			r.Get("/", s.handleOnboardingState)
			r.Post("/dismiss-welcome", s.transition(s.onboard.DismissWelcome))
			r.Post("/start-tour", s.transition(s.onboard.StartTour))
			r.Post("/advance-tour", s.transition(s.onboard.AdvanceTour))
			r.Post("/dismiss-checklist", s.transition(s.onboard.DismissChecklist))
		})

		r.Get("/conversations", s.handleConversations)
		r.Get("/conversations/{id}/messages", s.handleMessages)
		r.Post("/chat", s.handleChat)
	})

	r.Handle("/ws", s.hub.Handler())

	return r
}

// RelaySamples forwards live feed samples to the websocket hub until ctx
// is cancelled. Run it as a goroutine next to the feed itself.
func (s *Server) RelaySamples(ctx context.Context) {
	samples, cancel := s.feed.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-samples:
			s.hub.Broadcast("activity.sample", sample)
		}
	}
}

func (s *Server) handleActivity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, map[string]any{"items": s.feed.Snapshot()})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := s.convs.Analytics(r.Context())
	if err != nil {
		s.logger.Error("analytics", "error", err)
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, a)
}

func (s *Server) handleOnboardingState(w http.ResponseWriter, r *http.Request) {
	st := s.onboard.Begin(r.Context(), sessionKey(r))
	writeJSON(w, 200, onboardingView(st))
}

// transition adapts a Controller method into a POST handler returning
// the resulting state.
func (s *Server) transition(apply func(context.Context, string) onboarding.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := apply(r.Context(), sessionKey(r))
		writeJSON(w, 200, onboardingView(st))
	}
}

// onboardingView is the wire shape the dashboard binds to: the stored
// state plus the derived visibility flags.
func onboardingView(st onboarding.State) map[string]any {
	return map[string]any{
		"phase":               st.Phase.String(),
		"tour_step":           st.TourStep,
		"checklist_dismissed": st.ChecklistDismissed,
		"show_welcome":        st.ShowWelcome(),
		"tour_active":         st.TourRunning(),
	}
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.convs.List(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		s.logger.Error("list conversations", "error", err)
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, map[string]any{"items": convs})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.convs.Messages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("list messages", "error", err)
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, map[string]any{"items": msgs})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"user_id"`
		Channel string `json:"channel"`
		Role    string `json:"role"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	if req.UserID == "" || req.Message == "" {
		writeJSON(w, 400, map[string]string{"error": "user_id and message are required"})
		return
	}
	if req.Channel == "" {
		req.Channel = "whatsapp"
	}
	if req.Role == "" {
		req.Role = "user"
	}

	msg, err := s.convs.Append(r.Context(), req.UserID, req.Channel, req.Role, req.Message)
	if err != nil {
		s.logger.Error("append message", "error", err)
		writeError(w, 500, err)
		return
	}
	s.hub.Broadcast("conversation.message", msg)
	writeJSON(w, 200, msg)
}

func sessionKey(r *http.Request) string {
	if k := r.Header.Get(sessionHeader); k != "" {
		return k
	}
	return "default"
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
