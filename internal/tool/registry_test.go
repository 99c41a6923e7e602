package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

func TestLeadRegistry_OneToolPerStage(t *testing.T) {
	reg := NewLeadRegistry(newMemFields(), &stubOffers{}, nil)
	if reg.Len() != 5 {
		t.Fatalf("expected 5 tools, got %d", reg.Len())
	}
	want := map[protocol.Stage]string{
		protocol.StageAskName:         "capture_name",
		protocol.StageAskPain:         "capture_pain",
		protocol.StageConfirmInterest: "capture_interest",
		protocol.StageChooseTime:      "capture_time",
		protocol.StageCollectEmail:    "capture_email",
	}
	for stage, name := range want {
		defs := reg.Definitions(stage)
		if len(defs) != 1 {
			t.Fatalf("stage %s: expected 1 definition, got %d", stage, len(defs))
		}
		if defs[0].Function.Name != name {
			t.Errorf("stage %s: tool = %q, want %q", stage, defs[0].Function.Name, name)
		}
		if defs[0].Type != "function" {
			t.Errorf("stage %s: type = %q", stage, defs[0].Type)
		}
	}
	if defs := reg.Definitions(protocol.StageDone); len(defs) != 0 {
		t.Errorf("done exposes %d tools", len(defs))
	}
}

func TestRegistry_RejectsDuplicateStage(t *testing.T) {
	reg := NewRegistry()
	fields := newMemFields()
	if err := reg.Register(NewCaptureName(fields)); err != nil {
		t.Fatal(err)
	}
	dup := &textCapture{name: "other", stage: protocol.StageAskName}
	if err := reg.Register(dup); err == nil {
		t.Fatal("expected error binding a second tool to ask_name")
	}
}

func TestDispatch_WrongStageHasNoSideEffects(t *testing.T) {
	sess := &protocol.Session{ID: "s", Stage: protocol.StageAskPain}
	fields := newMemFields(sess)
	reg := NewLeadRegistry(fields, &stubOffers{}, nil)

	out, err := reg.Dispatch(context.Background(), sess, protocol.ToolCall{
		Name:      "capture_name",
		Arguments: map[string]any{"name": "Ana"},
	})
	if !errors.Is(err, ErrWrongStage) {
		t.Fatalf("expected ErrWrongStage, got %v", err)
	}
	if out.Message == "" || out.Advanced() || out.Continue {
		t.Errorf("outcome = %+v", out)
	}
	if sess.Fields.Name != "" {
		t.Errorf("name written: %q", sess.Fields.Name)
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	sess := &protocol.Session{ID: "s", Stage: protocol.StageAskName}
	reg := NewLeadRegistry(newMemFields(sess), &stubOffers{}, nil)
	out, err := reg.Dispatch(context.Background(), sess, protocol.ToolCall{Name: "rm_rf"})
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	if out.Message != MsgToolNotAvailable {
		t.Errorf("message = %q", out.Message)
	}
}

func TestDispatch_StorageErrorBecomesInternalMessage(t *testing.T) {
	sess := &protocol.Session{ID: "s", Stage: protocol.StageAskName}
	fields := newMemFields(sess)
	fields.err = errors.New("disk full")
	reg := NewLeadRegistry(fields, &stubOffers{}, nil)

	out, err := reg.Dispatch(context.Background(), sess, protocol.ToolCall{
		Name:      "capture_name",
		Arguments: map[string]any{"name": "Ana"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if out.Message != MsgInternalError || out.Advanced() {
		t.Errorf("outcome = %+v", out)
	}
}
