package twin

import "math"

// metricBound normalizes one canonical metric into [0,1]. Inverted metrics
// (resting heart rate, stress) score higher when lower.
type metricBound struct {
	Min      float64
	Max      float64
	Inverted bool
}

var metricBounds = map[string]metricBound{
	"hrv":              {Min: 20, Max: 120},
	"sleep_efficiency": {Min: 0.5, Max: 1.0},
	"activity_minutes": {Min: 0, Max: 90},
	"recovery_score":   {Min: 0, Max: 100},
	"stress_level":     {Min: 0, Max: 100, Inverted: true},
	"rhr":              {Min: 40, Max: 90, Inverted: true},
}

// vitalityWeights is the fixed metric weighting of the vitality score.
var vitalityWeights = map[string]float64{
	"hrv":              0.25,
	"sleep_efficiency": 0.20,
	"activity_minutes": 0.20,
	"recovery_score":   0.15,
	"stress_level":     0.10,
	"rhr":              0.10,
}

// defaultVitality is used when no weighted metric has any sample yet.
const defaultVitality = 0.5

// normalize maps a metric value into [0,1] per its bounds; unknown metrics
// return -1 so callers can skip them.
func normalize(metric string, value float64) float64 {
	bound, ok := metricBounds[metric]
	if !ok {
		return -1
	}
	score := (value - bound.Min) / (bound.Max - bound.Min)
	score = clamp01(score)
	if bound.Inverted {
		score = 1 - score
	}
	return score
}

// vitalityScore computes the weighted composite over the metrics present.
// Missing metrics drop out and the remaining weights are renormalized, so a
// subject with only wearable data still gets a meaningful score.
func vitalityScore(latest map[string]float64) (float64, map[string]float64) {
	contributions := make(map[string]float64)
	var weighted, totalWeight float64
	for metric, weight := range vitalityWeights {
		value, ok := latest[metric]
		if !ok {
			continue
		}
		score := normalize(metric, value)
		if score < 0 {
			continue
		}
		contributions[metric] = score
		weighted += weight * score
		totalWeight += weight
	}
	if totalWeight == 0 {
		return defaultVitality, contributions
	}
	return weighted / totalWeight, contributions
}

// bioAgeDelta estimates a biological age offset in years from lab biomarkers.
// Only markers present contribute.
func bioAgeDelta(latest map[string]float64) float64 {
	var delta float64
	if crp, ok := latest["crp"]; ok {
		switch {
		case crp > 3:
			delta += 2
		case crp < 1:
			delta -= 1
		}
	}
	if hba1c, ok := latest["hba1c"]; ok {
		switch {
		case hba1c > 5.7:
			delta += 2
		case hba1c < 5.4:
			delta -= 1
		}
	}
	if vitD, ok := latest["vitamin_d"]; ok {
		switch {
		case vitD < 20:
			delta += 1
		case vitD > 40:
			delta -= 1
		}
	}
	return delta
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
