// Package tool maps the model's capture tools to handlers that validate
// arguments and write the collected fields of a session.
package tool

import (
	"context"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

// Handler is implemented by every capture tool. Each handler is bound to
// exactly one stage of the flow.
type Handler interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema
	Stage() protocol.Stage
	Handle(ctx context.Context, sess *protocol.Session, args map[string]any) (Outcome, error)
}

// Outcome is what the engine does after a tool ran.
type Outcome struct {
	// Continue asks the engine to produce the next prompt right away
	// instead of replying.
	Continue bool
	// Message is the reply shown to the lead when Continue is false.
	Message string
	// Next is the stage to move to. Empty keeps the current stage.
	Next protocol.Stage
}

// Advanced reports whether the outcome moves the session forward.
func (o Outcome) Advanced() bool {
	return o.Next != ""
}

func advance(h Handler) Outcome {
	return Outcome{Continue: true, Next: h.Stage().Next()}
}

func reply(msg string) Outcome {
	return Outcome{Message: msg}
}

// FieldUpdater persists changes to a session's collected fields.
type FieldUpdater interface {
	UpdateFields(ctx context.Context, id string, fn func(*protocol.Fields) error) (*protocol.Session, error)
}

// SlotOfferer returns the slots that may be offered to a lead.
type SlotOfferer interface {
	Offer(ctx context.Context) ([]protocol.Slot, error)
}

func objectSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}
