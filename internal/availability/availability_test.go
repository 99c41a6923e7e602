package availability

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

func at(h, m int) time.Time {
	return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC)
}

func span(a, b time.Time) protocol.Slot {
	return protocol.Slot{Start: a, End: b}
}

func TestFreeIntervals(t *testing.T) {
	window := span(at(12, 0), at(21, 0))

	t.Run("no busy returns whole window", func(t *testing.T) {
		got := FreeIntervals(window, nil)
		if len(got) != 1 || !got[0].Start.Equal(window.Start) || !got[0].End.Equal(window.End) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("unsorted overlapping busy", func(t *testing.T) {
		busy := []protocol.Slot{
			span(at(16, 0), at(17, 0)),
			span(at(13, 0), at(14, 30)),
			span(at(14, 0), at(15, 0)),
		}
		got := FreeIntervals(window, busy)
		want := []protocol.Slot{
			span(at(12, 0), at(13, 0)),
			span(at(15, 0), at(16, 0)),
			span(at(17, 0), at(21, 0)),
		}
		if len(got) != len(want) {
			t.Fatalf("got %d intervals, want %d: %v", len(got), len(want), got)
		}
		for i := range want {
			if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
				t.Errorf("interval %d = %v, want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("busy extends past window edges", func(t *testing.T) {
		busy := []protocol.Slot{
			span(at(10, 0), at(13, 0)),
			span(at(20, 0), at(23, 0)),
		}
		got := FreeIntervals(window, busy)
		if len(got) != 1 || !got[0].Start.Equal(at(13, 0)) || !got[0].End.Equal(at(20, 0)) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("busy covers window", func(t *testing.T) {
		got := FreeIntervals(window, []protocol.Slot{span(at(0, 0), at(23, 0))})
		if len(got) != 0 {
			t.Errorf("expected no free intervals, got %v", got)
		}
	})

	t.Run("offsets normalized to UTC", func(t *testing.T) {
		busy := []protocol.Slot{span(at(14, 0).In(DisplayZone), at(15, 0).In(DisplayZone))}
		got := FreeIntervals(window, busy)
		if len(got) != 2 {
			t.Fatalf("got %v", got)
		}
		if got[0].End.Location() != time.UTC || !got[0].End.Equal(at(14, 0)) {
			t.Errorf("first gap end = %v", got[0].End)
		}
	})

	t.Run("free plus busy covers window", func(t *testing.T) {
		busy := []protocol.Slot{span(at(12, 30), at(13, 0)), span(at(18, 0), at(19, 15))}
		var total time.Duration
		for _, f := range FreeIntervals(window, busy) {
			total += f.Duration()
		}
		if want := window.Duration() - 30*time.Minute - 75*time.Minute; total != want {
			t.Errorf("free total = %v, want %v", total, want)
		}
	})

	t.Run("inverted window", func(t *testing.T) {
		if got := FreeIntervals(span(at(5, 0), at(4, 0)), nil); got != nil {
			t.Errorf("got %v", got)
		}
	})
}

func TestFreeIntervals_Random(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	window := span(at(12, 0), at(21, 0))
	minutes := int(window.End.Sub(window.Start) / time.Minute)

	within := func(slots []protocol.Slot, x time.Time) bool {
		for _, s := range slots {
			if !x.Before(s.Start) && x.Before(s.End) {
				return true
			}
		}
		return false
	}

	for iter := 0; iter < 500; iter++ {
		busy := make([]protocol.Slot, rng.Intn(9))
		for i := range busy {
			// Starts may fall before or after the window; some lengths are
			// zero or negative.
			start := window.Start.Add(time.Duration(rng.Intn(minutes+240)-120) * time.Minute)
			busy[i] = span(start, start.Add(time.Duration(rng.Intn(210)-30)*time.Minute))
		}

		free := FreeIntervals(window, busy)
		for i, f := range free {
			if !f.Start.Before(f.End) {
				t.Fatalf("iter %d: empty interval %v", iter, f)
			}
			if f.Start.Before(window.Start) || f.End.After(window.End) {
				t.Fatalf("iter %d: %v outside window", iter, f)
			}
			if i > 0 && !free[i-1].End.Before(f.Start) {
				t.Fatalf("iter %d: %v and %v not sorted and disjoint", iter, free[i-1], f)
			}
		}
		for m := 0; m < minutes; m++ {
			tm := window.Start.Add(time.Duration(m) * time.Minute)
			isFree, isBusy := within(free, tm), within(busy, tm)
			if isFree == isBusy {
				t.Fatalf("iter %d: minute %s free=%v busy=%v (busy %v, free %v)",
					iter, tm.Format("15:04"), isFree, isBusy, busy, free)
			}
		}
	}
}

func TestSplit(t *testing.T) {
	// 2025-03-10 is a Monday. 12:00 UTC is 09:00 in DisplayZone.
	free := []protocol.Slot{span(at(11, 20), at(15, 10))}
	got := Split(free, time.Hour, DefaultWorkingHours())
	want := []time.Time{at(12, 0), at(13, 0), at(14, 0)}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i, w := range want {
		if !got[i].Start.Equal(w) || got[i].Duration() != time.Hour {
			t.Errorf("slot %d = %v, want start %v", i, got[i], w)
		}
	}

	t.Run("weekend excluded", func(t *testing.T) {
		sat := time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)
		if got := Split([]protocol.Slot{span(sat, sat.Add(6*time.Hour))}, time.Hour, DefaultWorkingHours()); len(got) != 0 {
			t.Errorf("expected no weekend slots, got %v", got)
		}
	})

	t.Run("last slot ends at closing time", func(t *testing.T) {
		got := Split([]protocol.Slot{span(at(19, 0), at(23, 0))}, time.Hour, DefaultWorkingHours())
		if len(got) != 2 || !got[1].End.Equal(at(21, 0)) {
			t.Errorf("got %v", got)
		}
	})
}

type fakeCalendar struct {
	busy   []protocol.Slot
	err    error
	window protocol.Slot
}

func (f *fakeCalendar) ListBusy(_ context.Context, window protocol.Slot) ([]protocol.Slot, error) {
	f.window = window
	return f.busy, f.err
}

func TestFinderOffer(t *testing.T) {
	now := at(11, 45)
	cal := &fakeCalendar{busy: []protocol.Slot{span(at(13, 0), at(15, 0))}}
	f := NewFinder(cal, WithClock(func() time.Time { return now }))

	slots, err := f.Offer(context.Background())
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if len(slots) != 5 {
		t.Fatalf("len(slots) = %d, want 5", len(slots))
	}
	wantStarts := []time.Time{at(12, 0), at(15, 0), at(16, 0), at(17, 0), at(18, 0)}
	for i, w := range wantStarts {
		if !slots[i].Start.Equal(w) {
			t.Errorf("slot %d start = %v, want %v", i, slots[i].Start, w)
		}
	}
	if got := cal.window.End.Sub(cal.window.Start); got != 7*24*time.Hour {
		t.Errorf("window = %v, want 7 days", got)
	}

	t.Run("calendar error", func(t *testing.T) {
		cal := &fakeCalendar{err: errors.New("boom")}
		if _, err := NewFinder(cal).Offer(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestFormatOffer(t *testing.T) {
	msg := FormatOffer([]protocol.Slot{span(at(13, 0), at(14, 0)), span(at(17, 0), at(18, 0))})
	for _, want := range []string{
		"Ótimo! Tenho estes horários disponíveis:",
		"1. segunda-feira, 10/03 às 10:00",
		"2. segunda-feira, 10/03 às 14:00",
		"Responda com o número (ex: 1) para escolher.",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}
