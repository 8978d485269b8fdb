package processing

import (
	"context"
	"sync"
	"time"

	id "vitaex/pkg/domain"
	"vitaex/pkg/platform/sentinel"
)

// InMemoryStore keeps the ledger in a mutex-guarded map. Used by tests and
// single-process deployments; the mutex gives Claim the same atomicity the
// redis and postgres stores get from their backends.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

func recordKey(agentID string, eventID id.EventID) string {
	return agentID + "|" + eventID.String()
}

func (s *InMemoryStore) Claim(_ context.Context, agentID string, eventID id.EventID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(agentID, eventID)
	if rec, ok := s.records[key]; ok {
		if rec.Outcome != OutcomePending {
			return *rec, sentinel.ErrDuplicate
		}
		rec.Attempts++
		return *rec, nil
	}

	rec := &Record{
		AgentID:  agentID,
		EventID:  eventID,
		Attempts: 1,
		Outcome:  OutcomePending,
	}
	s.records[key] = rec
	return *rec, nil
}

func (s *InMemoryStore) Complete(_ context.Context, agentID string, eventID id.EventID, outcome Outcome, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[recordKey(agentID, eventID)]
	if !ok {
		return sentinel.ErrNotFound
	}
	if rec.Outcome != OutcomePending {
		return sentinel.ErrInvalidState
	}
	rec.Outcome = outcome
	rec.Result = result
	rec.ProcessedAt = time.Now().UTC()
	return nil
}
