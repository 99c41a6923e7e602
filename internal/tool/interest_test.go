package tool

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

func testSlots() []protocol.Slot {
	base := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)
	var slots []protocol.Slot
	for i := 0; i < 3; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		slots = append(slots, protocol.Slot{Start: start, End: start.Add(time.Hour)})
	}
	return slots
}

func TestCaptureInterest(t *testing.T) {
	t.Run("non-boolean asks for confirmation", func(t *testing.T) {
		sess := &protocol.Session{ID: "s", Stage: protocol.StageConfirmInterest}
		h := NewCaptureInterest(newMemFields(sess), &stubOffers{slots: testSlots()})
		for _, args := range []map[string]any{{}, {"confirmed": "sim"}, {"confirmed": 1.0}} {
			out, err := h.Handle(context.Background(), sess, args)
			if err != nil {
				t.Fatal(err)
			}
			if out.Message != MsgAskConfirmation || out.Advanced() {
				t.Errorf("args %v: outcome = %+v", args, out)
			}
		}
		if sess.Fields.InterestConfirmed != nil {
			t.Error("interest written on invalid input")
		}
	})

	t.Run("declined ends the flow", func(t *testing.T) {
		sess := &protocol.Session{ID: "s", Stage: protocol.StageConfirmInterest}
		offers := &stubOffers{slots: testSlots()}
		h := NewCaptureInterest(newMemFields(sess), offers)
		out, err := h.Handle(context.Background(), sess, map[string]any{"confirmed": false})
		if err != nil {
			t.Fatal(err)
		}
		if out.Next != protocol.StageDone || out.Message != MsgDeclined || out.Continue {
			t.Errorf("outcome = %+v", out)
		}
		if sess.Fields.InterestConfirmed == nil || *sess.Fields.InterestConfirmed {
			t.Error("expected interest=false stored")
		}
		if offers.calls != 0 {
			t.Error("calendar queried on decline")
		}
	})

	t.Run("accepted offers slots", func(t *testing.T) {
		sess := &protocol.Session{ID: "s", Stage: protocol.StageConfirmInterest}
		h := NewCaptureInterest(newMemFields(sess), &stubOffers{slots: testSlots()})
		out, err := h.Handle(context.Background(), sess, map[string]any{"confirmed": true})
		if err != nil {
			t.Fatal(err)
		}
		if out.Next != protocol.StageChooseTime || out.Continue {
			t.Errorf("outcome = %+v", out)
		}
		if !strings.Contains(out.Message, "1. segunda-feira, 10/03 às 10:00") || !strings.Contains(out.Message, "3. ") {
			t.Errorf("message = %q", out.Message)
		}
		if len(sess.Fields.OfferedSlots) != 3 {
			t.Errorf("offered = %v", sess.Fields.OfferedSlots)
		}
	})

	t.Run("no availability stays", func(t *testing.T) {
		sess := &protocol.Session{ID: "s", Stage: protocol.StageConfirmInterest}
		h := NewCaptureInterest(newMemFields(sess), &stubOffers{})
		out, err := h.Handle(context.Background(), sess, map[string]any{"confirmed": true})
		if err != nil {
			t.Fatal(err)
		}
		if out.Message != MsgNoAvailability || out.Advanced() {
			t.Errorf("outcome = %+v", out)
		}
	})

	t.Run("calendar error keeps the apology", func(t *testing.T) {
		sess := &protocol.Session{ID: "s", Stage: protocol.StageConfirmInterest}
		reg := NewLeadRegistry(newMemFields(sess), &stubOffers{err: errors.New("timeout")}, nil)
		out, err := reg.Dispatch(context.Background(), sess, protocol.ToolCall{
			Name:      "capture_interest",
			Arguments: map[string]any{"confirmed": true},
		})
		if err == nil {
			t.Fatal("expected error for logging")
		}
		if out.Message != MsgNoAvailability || out.Advanced() {
			t.Errorf("outcome = %+v", out)
		}
	})
}
