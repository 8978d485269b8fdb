package twin

import (
	"context"
	"sync"

	id "vitaex/pkg/domain"
	"vitaex/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	states map[id.SubjectID]State
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[id.SubjectID]State)}
}

func (s *InMemoryStore) Save(_ context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.SubjectID] = state
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, subject id.SubjectID) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[subject]
	if !ok {
		return State{}, sentinel.ErrNotFound
	}
	return state, nil
}
