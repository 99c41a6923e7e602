package tool

import (
	"context"

	"github.com/h1v3-io/leadflow/internal/availability"
	"github.com/h1v3-io/leadflow/pkg/protocol"
)

// Interest handles capture_interest. On a yes it looks up availability and
// offers the slots; on a no it ends the flow.
type Interest struct {
	fields FieldUpdater
	offers SlotOfferer
}

// NewCaptureInterest returns the capture_interest handler.
func NewCaptureInterest(fields FieldUpdater, offers SlotOfferer) *Interest {
	return &Interest{fields: fields, offers: offers}
}

func (h *Interest) Name() string          { return "capture_interest" }
func (h *Interest) Stage() protocol.Stage { return protocol.StageConfirmInterest }

func (h *Interest) Description() string {
	return "Registra se o cliente quer agendar uma reunião (sim ou não)."
}

func (h *Interest) Parameters() map[string]any {
	return objectSchema([]string{"confirmed"}, map[string]any{
		"confirmed": map[string]any{"type": "boolean", "description": "true se o cliente quer agendar, false se recusou."},
	})
}

func (h *Interest) Handle(ctx context.Context, sess *protocol.Session, args map[string]any) (Outcome, error) {
	confirmed, ok := args["confirmed"].(bool)
	if !ok {
		return reply(MsgAskConfirmation), nil
	}

	if _, err := h.fields.UpdateFields(ctx, sess.ID, func(f *protocol.Fields) error {
		f.InterestConfirmed = &confirmed
		return nil
	}); err != nil {
		return Outcome{}, err
	}
	if !confirmed {
		return Outcome{Message: MsgDeclined, Next: protocol.StageDone}, nil
	}

	slots, err := h.offers.Offer(ctx)
	if err != nil {
		return reply(MsgNoAvailability), err
	}
	if len(slots) == 0 {
		return reply(MsgNoAvailability), nil
	}
	if _, err := h.fields.UpdateFields(ctx, sess.ID, func(f *protocol.Fields) error {
		f.OfferedSlots = slots
		return nil
	}); err != nil {
		return Outcome{}, err
	}
	return Outcome{Message: availability.FormatOffer(slots), Next: h.Stage().Next()}, nil
}
