// Package webhook lets external systems (a website form, a WhatsApp
// gateway) relay lead messages over signed HTTP calls and receive the
// assistant's reply in the response.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/h1v3-io/leadflow/internal/connector"
)

// Config holds webhook connector configuration.
type Config struct {
	// Endpoints maps endpoint names to their auth settings.
	Endpoints map[string]EndpointConfig `json:"endpoints"`
}

// EndpointConfig holds per-endpoint webhook configuration.
type EndpointConfig struct {
	// Secret for HMAC-SHA256 signature verification (X-Hub-Signature-256 header).
	// If empty, Bearer auth is used instead.
	Secret string `json:"secret,omitempty"`
	// BearerToken for Authorization header auth. Used if Secret is empty.
	BearerToken string `json:"bearer_token,omitempty"`
}

// Payload is the expected JSON body for webhook requests.
type Payload struct {
	SenderID string `json:"sender_id"`
	ChatID   string `json:"chat_id"`
	Content  string `json:"content"`
}

// Response is returned for an accepted message.
type Response struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// Handler serves POST /api/webhook/{name}.
type Handler struct {
	config  Config
	handler connector.InboundHandler
	logger  *slog.Logger
}

// New creates a new webhook handler.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		config:  cfg,
		handler: handler,
		logger:  logger,
	}
}

// ServeHTTP expects to be mounted on a chi route with a {name} parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := chi.URLParam(r, "name")
	endpoint, ok := h.config.Endpoints[name]
	if name == "" || !ok {
		writeError(w, http.StatusNotFound, "unknown webhook endpoint")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if !authenticate(r, endpoint, body) {
		h.logger.Warn("webhook auth failed", "endpoint", name, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	// A chat is one lead conversation; fall back to the sender.
	chatID := payload.ChatID
	if chatID == "" {
		chatID = payload.SenderID
	}
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "chat_id or sender_id is required")
		return
	}

	inbound := connector.InboundMessage{
		Channel:  "webhook-" + name,
		SenderID: payload.SenderID,
		ChatID:   chatID,
		Content:  payload.Content,
	}

	// The turn outlives the caller's connection.
	reply, err := h.handler(context.WithoutCancel(r.Context()), inbound)
	if err != nil {
		h.logger.Error("webhook handler error",
			"endpoint", name,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{SessionID: inbound.SessionID(), Response: reply})
}

func authenticate(r *http.Request, endpoint EndpointConfig, body []byte) bool {
	if endpoint.Secret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if sig == "" {
			sig = r.Header.Get("X-Signature-256")
		}
		return verifyHMAC(body, endpoint.Secret, sig)
	}
	if endpoint.BearerToken != "" {
		want := "Bearer " + endpoint.BearerToken
		return subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) == 1
	}
	return false
}

// verifyHMAC checks an HMAC-SHA256 signature of the form "sha256=<hex>".
func verifyHMAC(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}

	expectedMAC, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expectedMAC)
}

// ComputeSignature generates the signature header value for body.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
