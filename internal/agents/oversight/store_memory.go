package oversight

import (
	"context"
	"sort"
	"sync"

	id "vitaex/pkg/domain"
	"vitaex/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	reviews map[id.CorrelationID]Review
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{reviews: make(map[id.CorrelationID]Review)}
}

func (s *InMemoryStore) Save(_ context.Context, review Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[review.CorrelationID] = review
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, correlationID id.CorrelationID) (Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	review, ok := s.reviews[correlationID]
	if !ok {
		return Review{}, sentinel.ErrNotFound
	}
	return review, nil
}

func (s *InMemoryStore) ListPending(_ context.Context) ([]Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Review
	for _, r := range s.reviews {
		if r.Status == StatusPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}
