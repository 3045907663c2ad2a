package models

import (
	"time"
)

// ChangeSet maps a window to a percentage change. Windows without enough
// history are absent, never zero.
type ChangeSet map[Window]float64

// Get returns the change for a window and whether it is defined
func (c ChangeSet) Get(w Window) (float64, bool) {
	v, ok := c[w]
	return v, ok
}

// SignalLevel is the display band of a composite score
type SignalLevel string

const (
	SignalLow      SignalLevel = "low"
	SignalModerate SignalLevel = "moderate"
	SignalHigh     SignalLevel = "high"
)

// LevelForScore bands a 0-100 score
func LevelForScore(score float64) SignalLevel {
	switch {
	case score >= 70:
		return SignalHigh
	case score >= 50:
		return SignalModerate
	default:
		return SignalLow
	}
}

// Trend summarizes the direction of a metric over the 1 and 2 year windows
type Trend string

const (
	TrendUpward   Trend = "upward"
	TrendDownward Trend = "downward"
	TrendMixed    Trend = "mixed"
	TrendUnknown  Trend = "unknown"
)

// WindowScore is the composite score for a single window
type WindowScore struct {
	Window    Window             `json:"window"`
	Score     float64            `json:"score"`
	Level     SignalLevel        `json:"level"`
	WeightSet string             `json:"weight_set"`
	WeightedZ float64            `json:"weighted_z"`
	ZScores   map[string]float64 `json:"z_scores"`
}

// MetricReport carries the display data for one metric
type MetricReport struct {
	Metric  string       `json:"metric"`
	Label   string       `json:"label"`
	Latest  *Observation `json:"latest,omitempty"`
	Points  int          `json:"points"`
	Changes ChangeSet    `json:"changes"`
	Trend   Trend        `json:"trend"`
}

// Report is the output of one scoring run
type Report struct {
	RunID          string                  `json:"run_id"`
	GeneratedAt    time.Time               `json:"generated_at"`
	Scores         map[Window]WindowScore  `json:"scores"`
	Metrics        map[string]MetricReport `json:"metrics"`
	MissingMetrics []string                `json:"missing_metrics,omitempty"`
}

// Score returns the score for a window and whether it was computed
func (r *Report) Score(w Window) (WindowScore, bool) {
	if r == nil {
		return WindowScore{}, false
	}
	s, ok := r.Scores[w]
	return s, ok
}
