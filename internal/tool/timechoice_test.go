package tool

import (
	"context"
	"testing"
	"time"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

func choiceSession() *protocol.Session {
	return &protocol.Session{
		ID:     "s",
		Stage:  protocol.StageChooseTime,
		Fields: protocol.Fields{OfferedSlots: testSlots()},
	}
}

func TestCaptureTime_ByIndex(t *testing.T) {
	for _, choice := range []any{2.0, "2", 2} {
		sess := choiceSession()
		h := NewCaptureTime(newMemFields(sess), &stubOffers{}, nil)
		out, err := h.Handle(context.Background(), sess, map[string]any{"choice": choice})
		if err != nil {
			t.Fatal(err)
		}
		if !out.Continue || out.Next != protocol.StageCollectEmail {
			t.Errorf("choice %v: outcome = %+v", choice, out)
		}
		want := testSlots()[1].Start
		if sess.Fields.ChosenTime == nil || !sess.Fields.ChosenTime.Equal(want) {
			t.Errorf("choice %v: chosen = %v, want %v", choice, sess.Fields.ChosenTime, want)
		}
	}
}

func TestCaptureTime_InvalidIndex(t *testing.T) {
	for _, choice := range []any{0.0, 4.0, -1.0, 1.5, "dois"} {
		sess := choiceSession()
		h := NewCaptureTime(newMemFields(sess), &stubOffers{}, nil)
		out, _ := h.Handle(context.Background(), sess, map[string]any{"choice": choice})
		if out.Message != MsgInvalidChoice || out.Advanced() {
			t.Errorf("choice %v: outcome = %+v", choice, out)
		}
		if sess.Fields.ChosenTime != nil {
			t.Errorf("choice %v: stored %v", choice, sess.Fields.ChosenTime)
		}
	}
}

func TestCaptureTime_ByInstant(t *testing.T) {
	t.Run("offset honored", func(t *testing.T) {
		sess := choiceSession()
		h := NewCaptureTime(newMemFields(sess), &stubOffers{}, nil)
		out, _ := h.Handle(context.Background(), sess, map[string]any{"time_iso": "2025-03-10T11:00:00-03:00"})
		if out.Next != protocol.StageCollectEmail {
			t.Fatalf("outcome = %+v", out)
		}
		if want := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC); !sess.Fields.ChosenTime.Equal(want) {
			t.Errorf("chosen = %v", sess.Fields.ChosenTime)
		}
	})

	t.Run("naive time read in display zone", func(t *testing.T) {
		sess := choiceSession()
		h := NewCaptureTime(newMemFields(sess), &stubOffers{}, nil)
		h.Handle(context.Background(), sess, map[string]any{"time_iso": "2025-03-10T10:00"})
		if want := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC); sess.Fields.ChosenTime == nil || !sess.Fields.ChosenTime.Equal(want) {
			t.Errorf("chosen = %v", sess.Fields.ChosenTime)
		}
	})

	t.Run("unmatched instant still accepted", func(t *testing.T) {
		sess := choiceSession()
		h := NewCaptureTime(newMemFields(sess), &stubOffers{}, nil)
		out, _ := h.Handle(context.Background(), sess, map[string]any{"time_iso": "2025-03-12T20:00:00Z"})
		if out.Next != protocol.StageCollectEmail || sess.Fields.ChosenTime == nil {
			t.Errorf("outcome = %+v", out)
		}
	})

	t.Run("garbage rejected", func(t *testing.T) {
		sess := choiceSession()
		h := NewCaptureTime(newMemFields(sess), &stubOffers{}, nil)
		out, _ := h.Handle(context.Background(), sess, map[string]any{"time_iso": "amanhã cedo"})
		if out.Message != MsgUnparseableTime || sess.Fields.ChosenTime != nil {
			t.Errorf("outcome = %+v", out)
		}
	})
}

func TestCaptureTime_NeitherArgument(t *testing.T) {
	sess := choiceSession()
	h := NewCaptureTime(newMemFields(sess), &stubOffers{}, nil)
	out, _ := h.Handle(context.Background(), sess, map[string]any{})
	if out.Message != MsgAskTimeChoice {
		t.Errorf("message = %q", out.Message)
	}
}

func TestCaptureTime_LostSlotsReoffered(t *testing.T) {
	sess := &protocol.Session{ID: "s", Stage: protocol.StageChooseTime}
	offers := &stubOffers{slots: testSlots()}
	h := NewCaptureTime(newMemFields(sess), offers, nil)
	out, err := h.Handle(context.Background(), sess, map[string]any{"choice": 1.0})
	if err != nil {
		t.Fatal(err)
	}
	if out.Advanced() || offers.calls != 1 {
		t.Errorf("outcome = %+v, calls = %d", out, offers.calls)
	}
	if len(sess.Fields.OfferedSlots) != 3 {
		t.Errorf("slots not restored: %v", sess.Fields.OfferedSlots)
	}
	if sess.Fields.ChosenTime != nil {
		t.Error("chose a slot the lead never saw")
	}
}
