package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

var (
	// ErrUnknownTool is returned when the model calls a tool nobody registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrWrongStage is returned when a tool is called outside its stage.
	ErrWrongStage = errors.New("tool not available at this stage")
)

// Registry holds the capture handlers, indexed by name and by stage.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Handler
	byStage map[protocol.Stage]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]Handler),
		byStage: make(map[protocol.Stage]Handler),
	}
}

// Register adds a handler. A stage accepts a single handler.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h.Stage() == protocol.StageDone || !h.Stage().Valid() {
		return fmt.Errorf("tool %q: cannot bind to stage %q", h.Name(), h.Stage())
	}
	if prev, ok := r.byStage[h.Stage()]; ok && prev.Name() != h.Name() {
		return fmt.Errorf("tool %q: stage %q already bound to %q", h.Name(), h.Stage(), prev.Name())
	}
	r.byName[h.Name()] = h
	r.byStage[h.Stage()] = h
	return nil
}

// Get returns a handler by name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byName[name]
	return h, ok
}

// ForStage returns the handler bound to a stage.
func (r *Registry) ForStage(stage protocol.Stage) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byStage[stage]
	return h, ok
}

// List returns the names of all registered handlers, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tool set exposed at a stage: exactly one tool,
// or none at StageDone.
func (r *Registry) Definitions(stage protocol.Stage) []protocol.ToolDefinition {
	h, ok := r.ForStage(stage)
	if !ok {
		return nil
	}
	return []protocol.ToolDefinition{protocol.NewToolDefinition(h.Name(), h.Description(), h.Parameters())}
}

// Dispatch runs the handler for a tool call against the session. The
// returned outcome always carries something to tell the lead, even when
// err is non-nil; the error is for logging.
func (r *Registry) Dispatch(ctx context.Context, sess *protocol.Session, call protocol.ToolCall) (Outcome, error) {
	h, ok := r.Get(call.Name)
	if !ok {
		return reply(MsgToolNotAvailable), fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}
	if h.Stage() != sess.Stage {
		return reply(MsgToolNotAvailable), fmt.Errorf("%w: %q at %q", ErrWrongStage, call.Name, sess.Stage)
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	out, err := h.Handle(ctx, sess, args)
	if err != nil {
		if out.Message == "" {
			out = reply(MsgInternalError)
		}
		return out, fmt.Errorf("tool %s: %w", call.Name, err)
	}
	return out, nil
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
