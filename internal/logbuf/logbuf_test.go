package logbuf

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func newLogger(buf *Buffer, level slog.Level) *slog.Logger {
	inner := slog.NewTextHandler(&discardWriter{}, &slog.HandlerOptions{Level: level})
	return slog.New(NewHandler(inner, buf))
}

func TestBufferRingOverwrite(t *testing.T) {
	buf := New(3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		buf.Write(Entry{
			Time:    now.Add(time.Duration(i) * time.Second),
			Level:   "INFO",
			Message: "msg",
			Attrs:   map[string]any{"i": i},
		})
	}

	entries := buf.Query(Filter{MinLevel: slog.LevelDebug})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries (ring buffer size), got %d", len(entries))
	}
	if entries[0].Attrs["i"] != 2 || entries[2].Attrs["i"] != 4 {
		t.Fatalf("expected entries 2..4 oldest first, got %v .. %v", entries[0].Attrs["i"], entries[2].Attrs["i"])
	}
	if buf.Len() != 3 {
		t.Errorf("Len = %d", buf.Len())
	}
}

func TestBufferQuerySinceAndLimit(t *testing.T) {
	buf := New(10)
	now := time.Now()
	for i := 0; i < 8; i++ {
		buf.Write(Entry{Time: now.Add(time.Duration(i) * time.Second), Level: "INFO", Message: "msg"})
	}

	if got := buf.Query(Filter{Since: now.Add(5 * time.Second)}); len(got) != 3 {
		t.Errorf("since t+5s: got %d entries, want 3", len(got))
	}
	got := buf.Query(Filter{Limit: 2})
	if len(got) != 2 {
		t.Fatalf("limit: got %d entries, want 2", len(got))
	}
	if !got[1].Time.Equal(now.Add(7 * time.Second)) {
		t.Errorf("limit should keep the most recent entries, last = %v", got[1].Time)
	}
}

func TestBufferQueryLevel(t *testing.T) {
	buf := New(10)
	now := time.Now()

	buf.Write(Entry{Time: now, Level: "DEBUG", Message: "debug"})
	buf.Write(Entry{Time: now, Level: "INFO", Message: "info"})
	buf.Write(Entry{Time: now, Level: "WARN", Message: "warn"})
	buf.Write(Entry{Time: now, Level: "ERROR", Message: "error"})

	entries := buf.Query(Filter{MinLevel: slog.LevelWarn})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries at WARN+, got %d", len(entries))
	}
	if entries[0].Message != "warn" || entries[1].Message != "error" {
		t.Fatalf("unexpected entries: %v", entries)
	}
}

func TestHandlerSessionFilter(t *testing.T) {
	buf := New(10)
	logger := newLogger(buf, slog.LevelInfo)

	logger.With("session_id", "s1").Info("turn started")
	logger.Info("unrelated")
	logger.Warn("tool call failed", "session_id", "s2", "error", errors.New("bad args"))
	logger.With("session_id", "s1").Info("stage advanced", "to", "ask_pain")

	entries := buf.Query(Filter{SessionID: "s1"})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for s1, got %d", len(entries))
	}
	if entries[1].Attrs["to"] != "ask_pain" {
		t.Errorf("attrs = %v", entries[1].Attrs)
	}

	s2 := buf.Query(Filter{SessionID: "s2"})
	if len(s2) != 1 {
		t.Fatalf("expected 1 entry for s2, got %d", len(s2))
	}
	if s2[0].Attrs["error"] != "bad args" {
		t.Errorf("error attr = %#v, want its message", s2[0].Attrs["error"])
	}
}

func TestHandlerCapturesAllLevels(t *testing.T) {
	buf := New(10)
	handler := NewHandler(slog.NewTextHandler(&discardWriter{}, &slog.HandlerOptions{Level: slog.LevelWarn}), buf)
	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected DEBUG to be enabled (buffer captures all)")
	}

	logger := slog.New(handler).WithGroup("engine")
	logger.Debug("debug msg", "step", 1)
	logger.Info("info msg")
	logger.Warn("warn msg")

	entries := buf.Query(Filter{MinLevel: slog.LevelDebug})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries in buffer, got %d", len(entries))
	}
	if entries[0].Attrs["engine.step"] != int64(1) {
		t.Errorf("grouped attr = %v", entries[0].Attrs)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }
