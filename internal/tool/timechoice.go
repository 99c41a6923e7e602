package tool

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/h1v3-io/leadflow/internal/availability"
	"github.com/h1v3-io/leadflow/pkg/protocol"
)

// Layouts accepted for time_iso. Values without an offset are read in
// availability.DisplayZone.
var isoLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// TimeChoice handles capture_time: either a 1-based index into the offered
// slots or a literal instant.
type TimeChoice struct {
	fields FieldUpdater
	offers SlotOfferer
	logger *slog.Logger
}

// NewCaptureTime returns the capture_time handler.
func NewCaptureTime(fields FieldUpdater, offers SlotOfferer, logger *slog.Logger) *TimeChoice {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimeChoice{fields: fields, offers: offers, logger: logger}
}

func (h *TimeChoice) Name() string          { return "capture_time" }
func (h *TimeChoice) Stage() protocol.Stage { return protocol.StageChooseTime }

func (h *TimeChoice) Description() string {
	return "Registra o horário escolhido: o número do horário oferecido ou a data/hora em ISO 8601."
}

func (h *TimeChoice) Parameters() map[string]any {
	return objectSchema([]string{}, map[string]any{
		"choice":   map[string]any{"type": "integer", "description": "Número do horário escolhido na lista oferecida (começa em 1)."},
		"time_iso": map[string]any{"type": "string", "description": "Data e hora escolhidas em ISO 8601, quando o cliente não usou o número."},
	})
}

func (h *TimeChoice) Handle(ctx context.Context, sess *protocol.Session, args map[string]any) (Outcome, error) {
	slots := sess.Fields.OfferedSlots
	if len(slots) == 0 {
		return h.reoffer(ctx, sess)
	}

	if raw, ok := args["choice"]; ok && raw != nil && raw != "" {
		idx, ok := parseChoice(raw)
		if !ok || idx < 1 || idx > len(slots) {
			return reply(MsgInvalidChoice), nil
		}
		return h.store(ctx, sess, slots[idx-1].Start)
	}

	if raw, _ := args["time_iso"].(string); strings.TrimSpace(raw) != "" {
		t, err := ParseInstant(raw)
		if err != nil {
			return reply(MsgUnparseableTime), nil
		}
		if !offered(slots, t) {
			h.logger.Warn("chosen time does not match an offered slot", "session_id", sess.ID, "time", t)
		}
		return h.store(ctx, sess, t)
	}

	return reply(MsgAskTimeChoice), nil
}

func (h *TimeChoice) store(ctx context.Context, sess *protocol.Session, t time.Time) (Outcome, error) {
	t = t.UTC()
	_, err := h.fields.UpdateFields(ctx, sess.ID, func(f *protocol.Fields) error {
		f.ChosenTime = &t
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return advance(h), nil
}

// reoffer recovers a session whose offered slots were lost.
func (h *TimeChoice) reoffer(ctx context.Context, sess *protocol.Session) (Outcome, error) {
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
	return reply(MsgSlotsLost + "\n\n" + availability.FormatOffer(slots)), nil
}

func offered(slots []protocol.Slot, t time.Time) bool {
	for _, s := range slots {
		if s.Start.Equal(t) {
			return true
		}
	}
	return false
}

func parseChoice(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

// ParseInstant parses an ISO 8601 date-time. A trailing Z or explicit
// offset is honored; otherwise the value is read in availability.DisplayZone.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, availability.DisplayZone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date-time %q", s)
}
