// Package booking turns a fully qualified session into a calendar meeting
// and a CRM card.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/h1v3-io/leadflow/internal/availability"
	"github.com/h1v3-io/leadflow/internal/calendar"
	"github.com/h1v3-io/leadflow/internal/crm"
	"github.com/h1v3-io/leadflow/pkg/protocol"
)

// MsgFailed is shown when any step of the booking fails.
const MsgFailed = "Ops! Tive um problema ao agendar. Pode tentar novamente?"

// ErrIncomplete is returned when required fields are still missing.
var ErrIncomplete = errors.New("booking: session is missing required fields")

// Card field keys usable in a field mapping.
const (
	CardFieldName  = "nome"
	CardFieldEmail = "email"
	CardFieldPain  = "dor"
	CardFieldWhen  = "data_reuniao"
	CardFieldLink  = "link_reuniao"
)

var cardFieldOrder = []string{CardFieldName, CardFieldEmail, CardFieldPain, CardFieldWhen, CardFieldLink}

// Store is the subset of the session store used while booking.
type Store interface {
	Get(ctx context.Context, id string) (*protocol.Session, error)
	SetEventLink(ctx context.Context, id, link string) error
	SetCard(ctx context.Context, id, cardID, cardURL string) error
	SetStatus(ctx context.Context, id, status string) error
}

// Calendar creates meeting events.
type Calendar interface {
	CreateEvent(ctx context.Context, ev calendar.Event) (*calendar.CreatedEvent, error)
}

// CRM records leads as cards.
type CRM interface {
	CreateCard(ctx context.Context, in crm.CardInput) (*crm.Card, error)
	AddComment(ctx context.Context, cardID, text string) (string, error)
	MoveCard(ctx context.Context, cardID, phaseID string) error
}

// Handler books meetings. Each external artifact is persisted right after
// it is created, so a retry after a partial failure resumes where it
// stopped instead of duplicating the event or the card.
type Handler struct {
	store       Store
	calendar    Calendar
	crm         CRM
	logger      *slog.Logger
	length      time.Duration
	company     string
	cardFields  map[string]string
	movePhaseID string
	invites     bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithCompany sets the name used in the event summary.
func WithCompany(name string) Option {
	return func(h *Handler) { h.company = name }
}

// WithCardFields maps card field keys (nome, email, dor, data_reuniao,
// link_reuniao) to Pipefy field IDs.
func WithCardFields(m map[string]string) Option {
	return func(h *Handler) { h.cardFields = m }
}

// WithMeetingLength sets the event duration (default one hour).
func WithMeetingLength(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.length = d
		}
	}
}

// WithInvites reports that the calendar sends invites to attendees, so the
// confirmation can say one was sent.
func WithInvites(sent bool) Option {
	return func(h *Handler) { h.invites = sent }
}

// WithMoveToPhase moves new cards to phaseID after creation.
func WithMoveToPhase(phaseID string) Option {
	return func(h *Handler) { h.movePhaseID = phaseID }
}

// New creates a booking handler.
func New(store Store, cal Calendar, c CRM, opts ...Option) *Handler {
	h := &Handler{
		store:    store,
		calendar: cal,
		crm:      c,
		logger:   slog.Default(),
		length:   time.Hour,
		company:  "Verzel",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Complete books the meeting for a session and returns the confirmation
// shown to the lead. Calling it again for a booked session makes no
// external calls and returns the same confirmation.
//
// Artifacts are saved on a context that ignores cancellation: once an
// event or card exists it must be recorded, or a retry would create it
// again.
func (h *Handler) Complete(ctx context.Context, sessionID string) (string, error) {
	sess, err := h.store.Get(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("booking: load session: %w", err)
	}
	if sess.Scheduled() {
		return Confirmation(sess, h.invites), nil
	}
	if !sess.Fields.Complete() {
		return "", ErrIncomplete
	}
	saveCtx := context.WithoutCancel(ctx)

	logger := h.logger.With("session_id", sess.ID)
	f := sess.Fields
	start := f.ChosenTime.UTC()

	if sess.EventLink == "" {
		ev, err := h.calendar.CreateEvent(ctx, calendar.Event{
			Summary:     fmt.Sprintf("Reunião %s - %s", h.company, f.Name),
			Description: fmt.Sprintf("Cliente: %s\nEmail: %s\n\nNecessidade:\n%s", f.Name, f.Email, f.Pain),
			Start:       start,
			End:         start.Add(h.length),
			Attendees:   []string{f.Email},
		})
		if err != nil {
			return "", fmt.Errorf("booking: create event: %w", err)
		}
		sess.EventLink = ev.Link
		if sess.EventLink == "" {
			sess.EventLink = ev.ID
		}
		if err := h.store.SetEventLink(saveCtx, sess.ID, sess.EventLink); err != nil {
			return "", fmt.Errorf("booking: save event link: %w", err)
		}
		logger.Info("calendar event created", "event_id", ev.ID)
	}

	if sess.CardID == "" {
		card, err := h.crm.CreateCard(ctx, crm.CardInput{
			Title:  "Reunião - " + f.Name,
			Fields: h.fieldValues(sess),
		})
		if err != nil {
			return "", fmt.Errorf("booking: create card: %w", err)
		}
		sess.CardID, sess.CardURL = card.ID, card.URL
		if err := h.store.SetCard(saveCtx, sess.ID, card.ID, card.URL); err != nil {
			return "", fmt.Errorf("booking: save card: %w", err)
		}
		logger.Info("crm card created", "card_id", card.ID)

		if _, err := h.crm.AddComment(ctx, card.ID, cardComment(sess)); err != nil {
			logger.Warn("crm comment failed", "card_id", card.ID, "error", err)
		}
		if h.movePhaseID != "" {
			if err := h.crm.MoveCard(ctx, card.ID, h.movePhaseID); err != nil {
				logger.Warn("crm move failed", "card_id", card.ID, "phase_id", h.movePhaseID, "error", err)
			}
		}
	}

	if err := h.store.SetStatus(saveCtx, sess.ID, protocol.StatusScheduled); err != nil {
		return "", fmt.Errorf("booking: save status: %w", err)
	}
	sess.Status = protocol.StatusScheduled
	logger.Info("meeting booked", "start", start)
	return Confirmation(sess, h.invites), nil
}

// Confirmation renders the message sent once the meeting is booked.
// invited tells whether the calendar emailed an invite to the lead.
func Confirmation(sess *protocol.Session, invited bool) string {
	f := sess.Fields
	when := ""
	if f.ChosenTime != nil {
		when = availability.FormatDay(*f.ChosenTime)
	}
	notice := "Guarde o link abaixo para entrar na reunião."
	if invited {
		notice = fmt.Sprintf("Enviei um convite para %s.", f.Email)
	}
	return fmt.Sprintf("🎉 Tudo certo, %s!\nSua reunião está marcada para %sh.\n%s\n\nLink: %s",
		f.Name, when, notice, sess.EventLink)
}

func cardComment(sess *protocol.Session) string {
	f := sess.Fields
	var b strings.Builder
	b.WriteString("📋 Detalhes da Reunião\n\n")
	fmt.Fprintf(&b, "👤 Cliente: %s\n", f.Name)
	fmt.Fprintf(&b, "📧 Email: %s\n", f.Email)
	fmt.Fprintf(&b, "📅 Data/Hora: %s\n\n", meetingDate(f.ChosenTime))
	fmt.Fprintf(&b, "💡 Necessidade:\n%s\n", f.Pain)
	if sess.EventLink != "" {
		fmt.Fprintf(&b, "\n🔗 Link: %s", sess.EventLink)
	}
	return b.String()
}

func meetingDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(availability.DisplayZone).Format("02/01/2006 15:04")
}

func (h *Handler) fieldValues(sess *protocol.Session) []crm.FieldValue {
	if len(h.cardFields) == 0 {
		return nil
	}
	values := map[string]string{
		CardFieldName:  sess.Fields.Name,
		CardFieldEmail: sess.Fields.Email,
		CardFieldPain:  sess.Fields.Pain,
		CardFieldWhen:  meetingDate(sess.Fields.ChosenTime),
		CardFieldLink:  sess.EventLink,
	}
	var out []crm.FieldValue
	for _, key := range cardFieldOrder {
		if id := h.cardFields[key]; id != "" {
			out = append(out, crm.FieldValue{FieldID: id, Value: values[key]})
		}
	}
	return out
}
