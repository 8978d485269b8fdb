package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	id "vitaex/pkg/domain"
	"vitaex/pkg/platform/sentinel"
)

type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[id.CorrelationID]Run
}

func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{runs: make(map[id.CorrelationID]Run)}
}

func (s *InMemoryRunStore) Save(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.CorrelationID] = run
	return nil
}

func (s *InMemoryRunStore) Load(_ context.Context, correlationID id.CorrelationID) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[correlationID]
	if !ok {
		return Run{}, sentinel.ErrNotFound
	}
	return run, nil
}

func (s *InMemoryRunStore) ListStale(_ context.Context, status Status, cutoff time.Time) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Run
	for _, run := range s.runs {
		if run.Status == status && run.UpdatedAt.Before(cutoff) {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}
