// Package calendar reads free/busy data from and books meetings on a
// Google Calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

// Event is a meeting to be created.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// CreatedEvent identifies an event after creation.
type CreatedEvent struct {
	ID   string
	Link string
}

// Options configures the Google client.
type Options struct {
	CalendarID      string        // defaults to "primary"
	Timeout         time.Duration // per call, defaults to 15s
	InviteAttendees bool          // requires domain-wide delegation for service accounts
}

// Google implements free/busy lookup and event creation over Calendar API v3.
type Google struct {
	svc     *gcal.Service
	id      string
	timeout time.Duration
	invite  bool
}

// NewGoogle builds a client. Credentials come from clientOpts, typically
// option.WithCredentialsFile.
func NewGoogle(ctx context.Context, opts Options, clientOpts ...option.ClientOption) (*Google, error) {
	clientOpts = append([]option.ClientOption{option.WithScopes(gcal.CalendarScope)}, clientOpts...)
	svc, err := gcal.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: new service: %w", err)
	}
	g := &Google{svc: svc, id: opts.CalendarID, timeout: opts.Timeout, invite: opts.InviteAttendees}
	if g.id == "" {
		g.id = "primary"
	}
	if g.timeout <= 0 {
		g.timeout = 15 * time.Second
	}
	return g, nil
}

// ListBusy returns the busy periods of the calendar inside window.
func (g *Google) ListBusy(ctx context.Context, window protocol.Slot) ([]protocol.Slot, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: window.Start.UTC().Format(time.RFC3339),
		TimeMax: window.End.UTC().Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: g.id}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: freebusy: %w", err)
	}

	cal, ok := resp.Calendars[g.id]
	if !ok {
		return nil, fmt.Errorf("calendar: freebusy: calendar %q missing from response", g.id)
	}
	if len(cal.Errors) > 0 {
		var errs []error
		for _, e := range cal.Errors {
			errs = append(errs, fmt.Errorf("%s: %s", e.Domain, e.Reason))
		}
		return nil, fmt.Errorf("calendar: freebusy %q: %w", g.id, errors.Join(errs...))
	}

	busy := make([]protocol.Slot, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("calendar: busy start %q: %w", p.Start, err)
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("calendar: busy end %q: %w", p.End, err)
		}
		busy = append(busy, protocol.Slot{Start: start.UTC(), End: end.UTC()})
	}
	return busy, nil
}

// CreateEvent inserts ev and returns its ID and web link.
func (g *Google) CreateEvent(ctx context.Context, ev Event) (*CreatedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         &gcal.EventDateTime{DateTime: ev.End.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}
	call := g.svc.Events.Insert(g.id, body)
	if g.invite && len(ev.Attendees) > 0 {
		for _, email := range ev.Attendees {
			body.Attendees = append(body.Attendees, &gcal.EventAttendee{Email: email})
		}
		call = call.SendUpdates("all")
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: insert event: %w", err)
	}
	return &CreatedEvent{ID: created.Id, Link: created.HtmlLink}, nil
}
