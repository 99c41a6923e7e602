package tool

import (
	"context"
	"regexp"
	"strings"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmail reports whether s has a local@domain.tld shape.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// textCapture stores a single free-text argument into one field.
type textCapture struct {
	name        string
	description string
	param       string
	paramDesc   string
	stage       protocol.Stage
	invalid     string
	valid       func(string) bool
	set         func(*protocol.Fields, string)
	fields      FieldUpdater
}

func (c *textCapture) Name() string          { return c.name }
func (c *textCapture) Description() string   { return c.description }
func (c *textCapture) Stage() protocol.Stage { return c.stage }

func (c *textCapture) Parameters() map[string]any {
	return objectSchema([]string{c.param}, map[string]any{
		c.param: map[string]any{"type": "string", "description": c.paramDesc},
	})
}

func (c *textCapture) Handle(ctx context.Context, sess *protocol.Session, args map[string]any) (Outcome, error) {
	raw, _ := args[c.param].(string)
	value := strings.TrimSpace(raw)
	if value == "" || (c.valid != nil && !c.valid(value)) {
		return reply(c.invalid), nil
	}
	_, err := c.fields.UpdateFields(ctx, sess.ID, func(f *protocol.Fields) error {
		c.set(f, value)
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return advance(c), nil
}

// NewCaptureName returns the capture_name handler for StageAskName.
func NewCaptureName(fields FieldUpdater) Handler {
	return &textCapture{
		name:        "capture_name",
		description: "Registra o nome do cliente assim que ele se apresentar.",
		param:       "name",
		paramDesc:   "Nome do cliente, como ele informou.",
		stage:       protocol.StageAskName,
		invalid:     MsgAskNameAgain,
		set:         func(f *protocol.Fields, v string) { f.Name = v },
		fields:      fields,
	}
}

// NewCapturePain returns the capture_pain handler for StageAskPain.
func NewCapturePain(fields FieldUpdater) Handler {
	return &textCapture{
		name:        "capture_pain",
		description: "Registra a necessidade ou dor que o cliente descreveu.",
		param:       "pain",
		paramDesc:   "Resumo do que o cliente precisa resolver.",
		stage:       protocol.StageAskPain,
		invalid:     MsgAskPainAgain,
		set:         func(f *protocol.Fields, v string) { f.Pain = v },
		fields:      fields,
	}
}

// NewCaptureEmail returns the capture_email handler for StageCollectEmail.
func NewCaptureEmail(fields FieldUpdater) Handler {
	return &textCapture{
		name:        "capture_email",
		description: "Registra o email do cliente para confirmar a reunião.",
		param:       "email",
		paramDesc:   "Endereço de email informado pelo cliente.",
		stage:       protocol.StageCollectEmail,
		invalid:     MsgInvalidEmail,
		valid:       ValidEmail,
		set:         func(f *protocol.Fields, v string) { f.Email = v },
		fields:      fields,
	}
}
