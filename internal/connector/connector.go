// Package connector defines the chat channels leads can reach the
// assistant through, besides the HTTP API.
package connector

import (
	"context"
	"strings"
)

// Connector is the interface for external messaging platforms (Telegram, Slack).
type Connector interface {
	// Name returns the connector type (e.g., "telegram", "slack").
	Name() string
	// Start begins listening for inbound messages. Blocks until context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
	// Send delivers an outbound message to the external platform.
	Send(ctx context.Context, msg OutboundMessage) error
}

// OutboundMessage is a reply sent to an external platform.
type OutboundMessage struct {
	ChatID  string // Platform-specific chat identifier
	Content string // Plain text
}

// InboundMessage is a message received from an external platform.
type InboundMessage struct {
	Channel  string // Connector name (e.g., "telegram")
	SenderID string // Platform-specific sender identifier
	ChatID   string // Platform-specific chat identifier
	Content  string // Message text
}

// SessionID is the lead session a message belongs to: one session per
// chat on each channel.
func (m InboundMessage) SessionID() string {
	return m.Channel + ":" + m.ChatID
}

// InboundHandler processes a message from an external platform and returns
// the reply to send back.
type InboundHandler func(ctx context.Context, msg InboundMessage) (string, error)

// Replier answers a lead message within a session.
type Replier interface {
	HandleMessage(ctx context.Context, sessionID, content string) string
}

// Reply adapts a Replier to an InboundHandler.
func Reply(r Replier) InboundHandler {
	return func(ctx context.Context, msg InboundMessage) (string, error) {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			return "", nil
		}
		return r.HandleMessage(ctx, msg.SessionID(), content), nil
	}
}
