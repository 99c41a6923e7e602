package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

// BusyLister reports the busy periods of a calendar inside a window.
type BusyLister interface {
	ListBusy(ctx context.Context, window protocol.Slot) ([]protocol.Slot, error)
}

// Finder looks up the next bookable slots from a calendar.
type Finder struct {
	calendar BusyLister
	horizon  time.Duration
	lead     time.Duration
	length   time.Duration
	limit    int
	hours    WorkingHours
	now      func() time.Time
}

// FinderOption configures a Finder.
type FinderOption func(*Finder)

// WithHorizon sets how far ahead slots are searched.
func WithHorizon(d time.Duration) FinderOption {
	return func(f *Finder) { f.horizon = d }
}

// WithLeadTime sets the minimum notice before the first offered slot.
func WithLeadTime(d time.Duration) FinderOption {
	return func(f *Finder) { f.lead = d }
}

// WithMeetingLength sets the slot length.
func WithMeetingLength(d time.Duration) FinderOption {
	return func(f *Finder) { f.length = d }
}

// WithLimit caps the number of slots returned by Offer.
func WithLimit(n int) FinderOption {
	return func(f *Finder) { f.limit = n }
}

// WithWorkingHours replaces DefaultWorkingHours.
func WithWorkingHours(h WorkingHours) FinderOption {
	return func(f *Finder) { f.hours = h }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) FinderOption {
	return func(f *Finder) { f.now = now }
}

// NewFinder creates a Finder with a 7-day horizon returning up to 5 one-hour slots.
func NewFinder(cal BusyLister, opts ...FinderOption) *Finder {
	f := &Finder{
		calendar: cal,
		horizon:  7 * 24 * time.Hour,
		length:   time.Hour,
		limit:    5,
		hours:    DefaultWorkingHours(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Offer returns the earliest free slots within the horizon.
func (f *Finder) Offer(ctx context.Context) ([]protocol.Slot, error) {
	now := f.now().UTC()
	window := protocol.Slot{Start: now.Add(f.lead), End: now.Add(f.horizon)}

	busy, err := f.calendar.ListBusy(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("availability: list busy: %w", err)
	}

	slots := Split(FreeIntervals(window, busy), f.length, f.hours)
	if f.limit > 0 && len(slots) > f.limit {
		slots = slots[:f.limit]
	}
	return slots, nil
}
