package timeseries

import (
	"context"
	"sort"
	"sync"
	"time"

	id "vitaex/pkg/domain"
)

type InMemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Measurement // dedup key -> measurement
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[string]Measurement)}
}

func dedupKey(m Measurement) string {
	return m.SubjectID.String() + "|" + m.Metric + "|" + m.RecordedAt.UTC().Format(time.RFC3339Nano) + "|" + m.Source
}

func (s *InMemoryStore) Append(_ context.Context, measurements []Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range measurements {
		s.rows[dedupKey(m)] = m
	}
	return nil
}

func (s *InMemoryStore) Range(_ context.Context, subject id.SubjectID, metric string, from, to time.Time) ([]Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Measurement
	for _, m := range s.rows {
		if m.SubjectID != subject || m.Metric != metric {
			continue
		}
		if m.RecordedAt.Before(from) || !m.RecordedAt.Before(to) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

func (s *InMemoryStore) Latest(_ context.Context, subject id.SubjectID, metrics []string) (map[string]Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(metrics))
	for _, m := range metrics {
		wanted[m] = true
	}

	out := make(map[string]Measurement)
	for _, m := range s.rows {
		if m.SubjectID != subject || !wanted[m.Metric] {
			continue
		}
		if cur, ok := out[m.Metric]; !ok || m.RecordedAt.After(cur.RecordedAt) {
			out[m.Metric] = m
		}
	}
	return out, nil
}
