// Package api serves the chat endpoints used by the website widget and the
// admin endpoints used by leadflowctl.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/h1v3-io/leadflow/internal/logbuf"
	"github.com/h1v3-io/leadflow/internal/session"
	"github.com/h1v3-io/leadflow/pkg/protocol"
)

// VisitorPrefix starts the session ID generated for anonymous chats.
const VisitorPrefix = "visitor_"

// ChatService answers lead messages.
type ChatService interface {
	HandleMessage(ctx context.Context, sessionID, content string) string
	History(ctx context.Context, sessionID string) ([]protocol.Message, error)
}

// SessionService reads stored sessions for the admin endpoints.
type SessionService interface {
	Get(ctx context.Context, id string) (*protocol.Session, error)
	List(ctx context.Context, filter session.Filter) ([]*protocol.Session, error)
}

// LogQuerier abstracts log entry querying to avoid coupling to logbuf.Buffer.
type LogQuerier interface {
	Query(f logbuf.Filter) []logbuf.Entry
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth on admin routes
}

// Server is the leadflow HTTP API server.
type Server struct {
	chat     ChatService
	sessions SessionService
	cfg      Config
	logger   *slog.Logger
	logs     LogQuerier
	metrics  http.Handler
	webhooks http.Handler
	srv      *http.Server
}

// Option configures optional parts of the server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithLogs serves /api/logs from q.
func WithLogs(q LogQuerier) Option {
	return func(s *Server) { s.logs = q }
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithWebhooks serves h at POST /api/webhook/{name}.
func WithWebhooks(h http.Handler) Option {
	return func(s *Server) { s.webhooks = h }
}

// NewServer creates a new API server.
func NewServer(chat ChatService, sessions SessionService, cfg Config, opts ...Option) *Server {
	s := &Server{
		chat:     chat,
		sessions: sessions,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/api/health", s.handleHealth)

	// Chat, open to the website widget.
	r.Get("/input_message", s.handleInputMessage)
	r.Get("/get_messages", s.handleGetMessages)
	r.Post("/api/messages", s.handlePostMessage)
	r.Get("/api/sessions/{id}/messages", s.handleSessionMessages)

	// Admin.
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/api/sessions", s.handleListSessions)
		r.Get("/api/sessions/{id}", s.handleGetSession)
		r.Get("/api/logs", s.handleGetLogs)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	if s.webhooks != nil {
		r.Post("/api/webhook/{name}", s.webhooks.ServeHTTP)
	}

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Key)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// --- Chat handlers ---

type chatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type historyResponse struct {
	Messages []historyMessage `json:"messages"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInputMessage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.reply(w, r, q.Get("session_id"), q.Get("message_received"))
}

type postMessageRequest struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.reply(w, r, req.SessionID, req.Content)
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request, sessionID, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = VisitorPrefix + uuid.NewString()
	}

	// A client that hangs up mid-turn must not abort a booking halfway.
	resp := s.chat.HandleMessage(context.WithoutCancel(r.Context()), sessionID, content)
	writeJSON(w, http.StatusOK, chatResponse{SessionID: sessionID, Response: resp})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	s.history(w, r, r.URL.Query().Get("session_id"))
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	s.history(w, r, chi.URLParam(r, "id"))
}

func (s *Server) history(w http.ResponseWriter, r *http.Request, sessionID string) {
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	msgs, err := s.chat.History(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("load history", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := historyResponse{Messages: make([]historyMessage, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, historyMessage{Role: m.Role, Content: m.Content})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Admin handlers ---

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := session.Filter{Status: q.Get("status")}
	if st := q.Get("stage"); st != "" {
		stage := protocol.Stage(st)
		if !stage.Valid() {
			writeError(w, http.StatusBadRequest, "unknown stage")
			return
		}
		filter.Stage = stage
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	sessions, err := s.sessions.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sessions == nil {
		sessions = []*protocol.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("get session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	q := r.URL.Query()
	f := logbuf.Filter{
		MinLevel:  slog.LevelDebug,
		SessionID: q.Get("session_id"),
		Limit:     200,
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if lvl := q.Get("level"); lvl != "" {
		f.MinLevel = logbuf.ParseLevel(lvl)
	}
	f.Since = parseSince(q.Get("since"))

	entries := s.logs.Query(f)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// parseSince accepts unix milliseconds or RFC 3339.
func parseSince(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return time.Time{}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
