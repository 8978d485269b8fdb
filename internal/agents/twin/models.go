// Package twin maintains the per-subject digital twin: the latest canonical
// metrics, the composite vitality score and simple trends. The twin is a
// read model rebuilt from the timeseries store on every update request, so a
// lost snapshot is never more than one update behind.
package twin

import (
	"time"

	id "vitaex/pkg/domain"
)

// Trend classifies a metric's direction over the trend window.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// State is one subject's twin snapshot.
type State struct {
	SubjectID     id.SubjectID       `json:"subject_id"`
	Metrics       map[string]float64 `json:"metrics"`
	Vitality      float64            `json:"vitality"`
	Contributions map[string]float64 `json:"contributions"`
	BioAgeDelta   float64            `json:"bio_age_delta"`
	Trends        map[string]Trend   `json:"trends"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
