// Package timeseries persists standardized measurements. This is the only
// place canonical metric samples live; the twin reads trends from here rather
// than keeping its own history.
package timeseries

import (
	"context"
	"time"

	id "vitaex/pkg/domain"
)

// Measurement is one canonical metric sample.
type Measurement struct {
	SubjectID  id.SubjectID
	Metric     string
	Value      float64
	Unit       string
	Source     string
	RecordedAt time.Time
}

// Store appends and queries measurements. Appends are idempotent per
// (subject, metric, recorded_at, source); re-ingesting a batch is safe.
type Store interface {
	Append(ctx context.Context, measurements []Measurement) error

	// Range returns measurements for (subject, metric) with RecordedAt in
	// [from, to), ascending by time.
	Range(ctx context.Context, subject id.SubjectID, metric string, from, to time.Time) ([]Measurement, error)

	// Latest returns the most recent measurement per requested metric.
	// Metrics with no samples are absent from the result.
	Latest(ctx context.Context, subject id.SubjectID, metrics []string) (map[string]Measurement, error)
}
