package consent

import (
	"context"
	"sort"
	"sync"
	"time"

	id "vitaex/pkg/domain"
	"vitaex/pkg/platform/sentinel"
)

// InMemoryStore keeps the full grant history per subject under one mutex,
// which makes the supersede rule trivially atomic.
type InMemoryStore struct {
	mu     sync.RWMutex
	grants map[id.SubjectID][]Grant
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{grants: make(map[id.SubjectID][]Grant)}
}

func (s *InMemoryStore) Save(_ context.Context, grant Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.grants[grant.SubjectID]
	for i := range records {
		if records[i].Purpose == grant.Purpose && records[i].SupersededAt == nil && records[i].RevokedAt == nil {
			at := grant.GrantedAt
			records[i].SupersededAt = &at
		}
	}
	s.grants[grant.SubjectID] = append(records, grant)
	return nil
}

func (s *InMemoryStore) Effective(_ context.Context, subject id.SubjectID, purpose id.ConsentPurpose, now time.Time) (Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.grants[subject] {
		if g.Purpose == purpose && g.IsEffective(now) {
			return g, nil
		}
	}
	return Grant{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Revoke(_ context.Context, subject id.SubjectID, purpose id.ConsentPurpose, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.grants[subject]
	revoked := false
	for i := range records {
		if records[i].Purpose == purpose && records[i].IsEffective(revokedAt) {
			at := revokedAt
			records[i].RevokedAt = &at
			revoked = true
		}
	}
	if !revoked {
		return sentinel.ErrNotFound
	}
	s.grants[subject] = records
	return nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subject id.SubjectID) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]Grant{}, s.grants[subject]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].GrantedAt.After(out[j].GrantedAt) })
	return out, nil
}
