// Package session persists lead conversations: one document per session
// holding stage, status and collected fields, plus an append-only message log.
package session

import (
	"context"
	"errors"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Store is the persistence interface for sessions and their messages.
type Store interface {
	// Ensure returns the session, creating it at ask_name when absent.
	Ensure(ctx context.Context, id string) (*protocol.Session, error)
	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*protocol.Session, error)
	// UpdateFields applies fn to the stored fields atomically and persists
	// the result. Nothing is written if fn returns an error.
	UpdateFields(ctx context.Context, id string, fn func(*protocol.Fields) error) (*protocol.Session, error)
	// SetStage records a stage transition.
	SetStage(ctx context.Context, id string, stage protocol.Stage) error
	// SetStatus changes the session status.
	SetStatus(ctx context.Context, id, status string) error
	// SetEventLink records the calendar event created for the session.
	SetEventLink(ctx context.Context, id, link string) error
	// SetCard records the CRM card created for the session.
	SetCard(ctx context.Context, id, cardID, cardURL string) error
	// AppendMessage adds a message to the session log.
	AppendMessage(ctx context.Context, msg protocol.Message) error
	// Messages returns the session log in chronological order.
	Messages(ctx context.Context, id string) ([]protocol.Message, error)
	// List returns sessions matching the filter, most recently updated first.
	List(ctx context.Context, filter Filter) ([]*protocol.Session, error)
	// Close releases the underlying connection.
	Close() error
}

// Filter constrains session list queries.
type Filter struct {
	Status string
	Stage  protocol.Stage
	Limit  int // 0 = no limit
}

// PendingBookings selects sessions that reached the end of the flow but
// were never booked.
func PendingBookings() Filter {
	return Filter{Status: protocol.StatusInProgress, Stage: protocol.StageDone}
}
