// Package agent runs the conversation engine: one inbound message in, one
// reply out, with the model driving the capture tools of the current stage.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/h1v3-io/leadflow/internal/booking"
	"github.com/h1v3-io/leadflow/internal/lock"
	"github.com/h1v3-io/leadflow/internal/metrics"
	"github.com/h1v3-io/leadflow/internal/provider"
	"github.com/h1v3-io/leadflow/internal/session"
	"github.com/h1v3-io/leadflow/internal/tool"
	"github.com/h1v3-io/leadflow/pkg/protocol"
)

// Fixed replies. Internal error text never reaches the lead.
const (
	MsgGenericError = "Desculpe, tive um problema para processar sua mensagem. Pode tentar novamente?"
	MsgEmptyReply   = "Desculpe, não entendi. Pode repetir?"
)

const (
	defaultMaxSteps     = 10
	defaultModelTimeout = 60 * time.Second
)

// Turn outcomes reported to metrics.
const (
	outcomeReply  = "reply"
	outcomeBooked = "booked"
	outcomeError  = "error"
)

// Booker completes the booking of a fully qualified session.
type Booker interface {
	Complete(ctx context.Context, sessionID string) (string, error)
}

// Engine drives lead conversations. The exported fields may be changed
// after New and before the first message.
type Engine struct {
	Store        session.Store
	Provider     provider.Provider
	Tools        *tool.Registry
	Booker       Booker
	Locker       lock.Locker
	Logger       *slog.Logger
	Metrics      *metrics.Metrics // optional
	Instructions string
	Model        string
	MaxSteps     int
	ModelTimeout time.Duration

	now   func() time.Time
	newID func() string
}

// New creates an Engine with an in-process session lock and the default
// persona.
func New(store session.Store, prov provider.Provider, tools *tool.Registry, booker Booker) *Engine {
	return &Engine{
		Store:        store,
		Provider:     prov,
		Tools:        tools,
		Booker:       booker,
		Locker:       lock.NewLocal(),
		Logger:       slog.Default(),
		Instructions: DefaultInstructions,
		MaxSteps:     defaultMaxSteps,
		ModelTimeout: defaultModelTimeout,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// HandleMessage processes one inbound message and returns the reply for the
// lead. It always returns something to say; failures are logged.
func (e *Engine) HandleMessage(ctx context.Context, sessionID, content string) (reply string) {
	start := time.Now()
	logger := e.logger().With("session_id", sessionID)
	outcome := outcomeError
	defer func() {
		if r := recover(); r != nil {
			logger.Error("turn panicked", "panic", r, "stack", string(debug.Stack()))
			reply, outcome = MsgGenericError, outcomeError
		}
		e.Metrics.Turn(outcome, time.Since(start))
	}()

	unlock, err := e.Locker.Lock(ctx, sessionID)
	if err != nil {
		logger.Error("acquire session lock", "error", err)
		return MsgGenericError
	}
	defer unlock()

	reply, outcome, err = e.turn(ctx, sessionID, content, logger)
	if err != nil {
		logger.Error("turn failed", "error", err)
		return MsgGenericError
	}
	return reply
}

// ResumeBooking retries the booking of a session whose fields are complete
// but which is not scheduled yet. The boolean reports whether a booking
// was completed by this call.
func (e *Engine) ResumeBooking(ctx context.Context, sessionID string) (string, bool, error) {
	unlock, err := e.Locker.Lock(ctx, sessionID)
	if err != nil {
		return "", false, fmt.Errorf("engine: lock %s: %w", sessionID, err)
	}
	defer unlock()

	sess, err := e.Store.Get(ctx, sessionID)
	if err != nil {
		return "", false, fmt.Errorf("engine: load %s: %w", sessionID, err)
	}
	if sess.Scheduled() || !sess.Fields.Complete() {
		return "", false, nil
	}
	msg, err := e.Booker.Complete(ctx, sessionID)
	e.Metrics.Booking(err)
	if err != nil {
		return "", false, fmt.Errorf("engine: book %s: %w", sessionID, err)
	}
	if err := e.appendMessage(ctx, sessionID, protocol.RoleAssistant, msg); err != nil {
		return msg, true, err
	}
	e.logger().Info("booking resumed", "session_id", sessionID)
	return msg, true, nil
}

// History returns the message log of a session, oldest first. An unknown
// session has an empty history.
func (e *Engine) History(ctx context.Context, sessionID string) ([]protocol.Message, error) {
	msgs, err := e.Store.Messages(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	return msgs, err
}

func (e *Engine) turn(ctx context.Context, id, content string, logger *slog.Logger) (string, string, error) {
	if _, err := e.Store.Ensure(ctx, id); err != nil {
		return "", outcomeError, fmt.Errorf("ensure session: %w", err)
	}
	if err := e.appendMessage(ctx, id, protocol.RoleUser, content); err != nil {
		return "", outcomeError, err
	}

	maxSteps := e.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	var reply string
	for step := 0; ; step++ {
		if step >= maxSteps {
			return "", outcomeError, fmt.Errorf("exceeded %d steps", maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return "", outcomeError, fmt.Errorf("context cancelled: %w", err)
		}

		sess, err := e.Store.Get(ctx, id)
		if err != nil {
			return "", outcomeError, fmt.Errorf("load session: %w", err)
		}
		if sess.Fields.Complete() {
			return e.finish(ctx, sess, logger)
		}

		text, cont, err := e.step(ctx, sess, step, logger)
		if err != nil {
			return "", outcomeError, err
		}
		if !cont {
			reply = text
			break
		}
	}

	if err := e.appendMessage(ctx, id, protocol.RoleAssistant, reply); err != nil {
		return "", outcomeError, err
	}

	sess, err := e.Store.Get(ctx, id)
	if err != nil {
		return "", outcomeError, fmt.Errorf("load session: %w", err)
	}
	if sess.Fields.Complete() {
		return e.finish(ctx, sess, logger)
	}
	return reply, outcomeReply, nil
}

// step makes one model call and applies its result. cont is true when the
// engine should prompt the model again before answering.
func (e *Engine) step(ctx context.Context, sess *protocol.Session, step int, logger *slog.Logger) (reply string, cont bool, err error) {
	stage := sess.Stage
	defs := e.Tools.Definitions(stage)
	allowed := protocol.ToolNames(defs)

	history, err := e.Store.Messages(ctx, sess.ID)
	if err != nil {
		return "", false, fmt.Errorf("load history: %w", err)
	}
	messages := make([]protocol.ChatMessage, 0, len(history)+1)
	messages = append(messages, protocol.ChatMessage{
		Role:    "system",
		Content: BuildSystemPrompt(e.Instructions, sess, e.now(), step > 0),
	})
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		messages = append(messages, m.ChatMessage())
	}

	req := protocol.ChatRequest{
		Model:          e.Model,
		Messages:       messages,
		Tools:          defs,
		SingleToolCall: true,
	}

	logger.Debug("engine chat request",
		"stage", stage,
		"step", step+1,
		"messages", len(messages),
		"tools", allowed,
	)

	timeout := e.ModelTimeout
	if timeout <= 0 {
		timeout = defaultModelTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	started := time.Now()
	resp, err := e.Provider.Chat(callCtx, req)
	cancel()
	var usage protocol.Usage
	if resp != nil {
		usage = resp.Usage
	}
	e.Metrics.ObserveLLM(e.Provider.Name(), time.Since(started), err, usage.PromptTokens, usage.CompletionTokens)
	if err != nil {
		return "", false, fmt.Errorf("provider %s: %w", e.Provider.Name(), err)
	}

	if !resp.HasToolCalls() {
		text := strings.TrimSpace(resp.Content)
		if text == "" {
			text = MsgEmptyReply
		}
		logger.Debug("engine text reply", "stage", stage, "step", step+1, "content_len", len(text))
		return text, false, nil
	}

	call, ok := resp.FirstToolCall(allowed...)
	if !ok {
		call = resp.ToolCalls[0]
	}
	if len(resp.ToolCalls) > 1 {
		logger.Warn("multiple tool calls, handling one",
			"stage", stage,
			"handled", call.Name,
			"received", len(resp.ToolCalls),
		)
	}

	out, err := e.Tools.Dispatch(ctx, sess, call)
	e.Metrics.ToolCall(call.Name, toolResult(out, err))
	if err != nil {
		logger.Warn("tool call failed", "stage", stage, "tool", call.Name, "error", err)
	} else {
		logger.Debug("tool call handled", "stage", stage, "tool", call.Name, "next", out.Next, "continue", out.Continue)
	}

	if out.Advanced() && out.Next != stage {
		if err := e.transition(ctx, sess, out.Next, logger); err != nil {
			return "", false, err
		}
	}
	if out.Continue {
		return "", true, nil
	}
	if strings.TrimSpace(out.Message) == "" {
		return MsgEmptyReply, false, nil
	}
	return out.Message, false, nil
}

func (e *Engine) transition(ctx context.Context, sess *protocol.Session, next protocol.Stage, logger *slog.Logger) error {
	from := sess.Stage
	if err := e.Store.SetStage(ctx, sess.ID, next); err != nil {
		return fmt.Errorf("set stage %s: %w", next, err)
	}
	if from == protocol.StageConfirmInterest && next == protocol.StageDone {
		if err := e.Store.SetStatus(ctx, sess.ID, protocol.StatusDeclined); err != nil {
			return fmt.Errorf("set status: %w", err)
		}
		logger.Info("lead declined meeting")
	}
	e.Metrics.Transition(string(from), string(next))
	logger.Info("stage advanced", "from", from, "to", next)
	return nil
}

// finish runs the booking for a complete session and stores its reply.
func (e *Engine) finish(ctx context.Context, sess *protocol.Session, logger *slog.Logger) (string, string, error) {
	already := sess.Scheduled()
	msg, err := e.Booker.Complete(ctx, sess.ID)
	if !already {
		e.Metrics.Booking(err)
	}
	outcome := outcomeBooked
	if err != nil {
		logger.Error("booking failed", "error", err)
		msg, outcome = booking.MsgFailed, outcomeError
	}
	if err := e.appendMessage(ctx, sess.ID, protocol.RoleAssistant, msg); err != nil {
		return "", outcomeError, err
	}
	return msg, outcome, nil
}

func (e *Engine) appendMessage(ctx context.Context, id, role, content string) error {
	msg := protocol.Message{
		ID:        e.newID(),
		SessionID: id,
		Role:      role,
		Content:   content,
		Timestamp: e.now().UTC(),
	}
	if err := e.Store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("append %s message: %w", role, err)
	}
	return nil
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func toolResult(out tool.Outcome, err error) string {
	switch {
	case errors.Is(err, tool.ErrUnknownTool), errors.Is(err, tool.ErrWrongStage):
		return "rejected"
	case err != nil:
		return "error"
	case out.Advanced():
		return "advanced"
	default:
		return "clarify"
	}
}
