package tool

import (
	"context"
	"errors"
	"sync"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

// memFields is an in-memory FieldUpdater.
type memFields struct {
	mu       sync.Mutex
	sessions map[string]*protocol.Session
	err      error
}

func newMemFields(sessions ...*protocol.Session) *memFields {
	m := &memFields{sessions: make(map[string]*protocol.Session)}
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}
	return m
}

func (m *memFields) UpdateFields(_ context.Context, id string, fn func(*protocol.Fields) error) (*protocol.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.New("not found")
	}
	f := s.Fields
	if err := fn(&f); err != nil {
		return nil, err
	}
	s.Fields = f
	return s, nil
}

type stubOffers struct {
	slots []protocol.Slot
	err   error
	calls int
}

func (s *stubOffers) Offer(context.Context) ([]protocol.Slot, error) {
	s.calls++
	return s.slots, s.err
}
