package protocol

import "time"

// Session status values.
const (
	StatusInProgress = "in_progress"
	StatusScheduled  = "agendado"
	StatusDeclined   = "recusado"
)

// Field keys as persisted in the session document.
const (
	FieldName              = "nome"
	FieldPain              = "dor"
	FieldInterestConfirmed = "interesse_confirmado"
	FieldOfferedSlots      = "slots_oferecidos"
	FieldChosenTime        = "horario_escolhido"
	FieldEmail             = "email"
)

// Session is the persisted state of one lead conversation.
type Session struct {
	ID        string    `json:"id"`
	Stage     Stage     `json:"stage"`
	Status    string    `json:"status"`
	Fields    Fields    `json:"fields"`
	EventLink string    `json:"event_link,omitempty"`
	CardID    string    `json:"card_id,omitempty"`
	CardURL   string    `json:"card_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scheduled reports whether the meeting for this session was booked.
func (s *Session) Scheduled() bool {
	return s.Status == StatusScheduled
}

// Fields holds the facts collected from the lead.
type Fields struct {
	Name              string     `json:"nome,omitempty"`
	Pain              string     `json:"dor,omitempty"`
	InterestConfirmed *bool      `json:"interesse_confirmado,omitempty"`
	OfferedSlots      []Slot     `json:"slots_oferecidos,omitempty"`
	ChosenTime        *time.Time `json:"horario_escolhido,omitempty"`
	Email             string     `json:"email,omitempty"`
}

// Missing lists the required field keys that are not yet filled, in flow
// order. A declined interest counts as missing.
func (f Fields) Missing() []string {
	var out []string
	if f.Name == "" {
		out = append(out, FieldName)
	}
	if f.Pain == "" {
		out = append(out, FieldPain)
	}
	if f.InterestConfirmed == nil || !*f.InterestConfirmed {
		out = append(out, FieldInterestConfirmed)
	}
	if f.ChosenTime == nil {
		out = append(out, FieldChosenTime)
	}
	if f.Email == "" {
		out = append(out, FieldEmail)
	}
	return out
}

// Complete reports whether every required field is present.
func (f Fields) Complete() bool {
	return len(f.Missing()) == 0
}

// Slot is a half-open [Start, End) meeting window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the slot length.
func (s Slot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}
