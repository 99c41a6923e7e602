// Package availability turns calendar busy periods into bookable meeting slots.
package availability

import (
	"sort"
	"time"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

// DisplayZone is the fixed offset used when showing times to leads.
var DisplayZone = time.FixedZone("UTC-3", -3*60*60)

// FreeIntervals returns the gaps of window not covered by any busy interval.
// All instants are normalized to UTC. Busy intervals may be unsorted,
// overlapping, or extend past the window; empty and inverted ones are ignored.
// The result is sorted, disjoint, non-empty, and contained in window.
func FreeIntervals(window protocol.Slot, busy []protocol.Slot) []protocol.Slot {
	start, end := window.Start.UTC(), window.End.UTC()
	if !start.Before(end) {
		return nil
	}

	sorted := make([]protocol.Slot, 0, len(busy))
	for _, b := range busy {
		b.Start, b.End = b.Start.UTC(), b.End.UTC()
		if b.Start.Before(b.End) {
			sorted = append(sorted, b)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var free []protocol.Slot
	cursor := start
	for _, b := range sorted {
		if !b.Start.Before(end) {
			break
		}
		if !b.End.After(cursor) {
			continue
		}
		if b.Start.After(cursor) {
			free = append(free, protocol.Slot{Start: cursor, End: b.Start})
		}
		cursor = b.End
		if !cursor.Before(end) {
			return free
		}
	}
	if cursor.Before(end) {
		free = append(free, protocol.Slot{Start: cursor, End: end})
	}
	return free
}

// WorkingHours restricts where slots may be placed.
type WorkingHours struct {
	StartHour int
	EndHour   int
	Days      []time.Weekday
	Zone      *time.Location
}

// DefaultWorkingHours is Monday to Friday, 09:00 to 18:00 in DisplayZone.
func DefaultWorkingHours() WorkingHours {
	return WorkingHours{
		StartHour: 9,
		EndHour:   18,
		Days:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Zone:      DisplayZone,
	}
}

func (h WorkingHours) zone() *time.Location {
	if h.Zone == nil {
		return time.UTC
	}
	return h.Zone
}

// Allows reports whether a meeting of the given length starting at t fits
// entirely inside working hours.
func (h WorkingHours) Allows(t time.Time, length time.Duration) bool {
	local := t.In(h.zone())
	if !h.workday(local.Weekday()) {
		return false
	}
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), h.StartHour, 0, 0, 0, h.zone())
	dayEnd := time.Date(local.Year(), local.Month(), local.Day(), h.EndHour, 0, 0, 0, h.zone())
	return !local.Before(dayStart) && !local.Add(length).After(dayEnd)
}

func (h WorkingHours) workday(d time.Weekday) bool {
	if len(h.Days) == 0 {
		return true
	}
	for _, wd := range h.Days {
		if wd == d {
			return true
		}
	}
	return false
}

// Split cuts free intervals into meetings of the given length that start on
// the hour and fall inside working hours. Slots are returned in UTC.
func Split(free []protocol.Slot, length time.Duration, hours WorkingHours) []protocol.Slot {
	if length <= 0 {
		return nil
	}
	var slots []protocol.Slot
	for _, f := range free {
		for t := ceilHour(f.Start, hours.zone()); !t.Add(length).After(f.End); t = t.Add(time.Hour) {
			if hours.Allows(t, length) {
				slots = append(slots, protocol.Slot{Start: t.UTC(), End: t.Add(length).UTC()})
			}
		}
	}
	return slots
}

func ceilHour(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	h := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
	if h.Before(t) {
		h = h.Add(time.Hour)
	}
	return h
}
