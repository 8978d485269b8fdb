package audit

import (
	"context"
	"sort"
	"sync"

	id "vitaex/pkg/domain"
)

// InMemoryStore keeps entries in insertion order. Used in tests and
// single-node deployments without postgres.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ListByCorrelation(_ context.Context, correlationID id.CorrelationID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	sortByTime(out)
	return out, nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subject id.SubjectID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.SubjectID == subject {
			out = append(out, e)
		}
	}
	sortByTime(out)
	return out, nil
}

func sortByTime(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}
