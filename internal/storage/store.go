// Package storage defines where session snapshots are kept.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
)

// ErrNotFound is returned when no snapshot exists for a session.
var ErrNotFound = errors.New("session not found")

// Store persists session snapshots keyed by session id.
type Store interface {
	Save(ctx context.Context, state model.PersistedState) error
	Load(ctx context.Context, id string) (model.PersistedState, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]model.PersistedState, error)
}

// Memory is a Store held in process memory.
type Memory struct {
	mu     sync.RWMutex
	states map[string]model.PersistedState
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{states: make(map[string]model.PersistedState)}
}

func (m *Memory) Save(ctx context.Context, state model.PersistedState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state.ID == "" {
		return errors.New("session id is required")
	}
	m.mu.Lock()
	m.states[state.ID] = clone(state)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(ctx context.Context, id string) (model.PersistedState, error) {
	if err := ctx.Err(); err != nil {
		return model.PersistedState{}, err
	}
	m.mu.RLock()
	state, ok := m.states[id]
	m.mu.RUnlock()
	if !ok {
		return model.PersistedState{}, ErrNotFound
	}
	return clone(state), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[id]; !ok {
		return ErrNotFound
	}
	delete(m.states, id)
	return nil
}

// ListByUser returns userID's sessions, most recently updated first.
func (m *Memory) ListByUser(ctx context.Context, userID string) ([]model.PersistedState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	var out []model.PersistedState
	for _, s := range m.states {
		if s.UserID == userID {
			out = append(out, clone(s))
		}
	}
	m.mu.RUnlock()
	SortByUpdated(out)
	return out, nil
}

// SortByUpdated orders states most recently updated first.
func SortByUpdated(states []model.PersistedState) {
	sort.Slice(states, func(i, j int) bool {
		if states[i].UpdatedAt.Equal(states[j].UpdatedAt) {
			return states[i].ID < states[j].ID
		}
		return states[i].UpdatedAt.After(states[j].UpdatedAt)
	})
}

func clone(s model.PersistedState) model.PersistedState {
	s.MeetingData = append([]byte(nil), s.MeetingData...)
	s.State = append([]byte(nil), s.State...)
	s.Messages = append([]byte(nil), s.Messages...)
	return s
}
