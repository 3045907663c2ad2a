package models

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Frequency is the sampling interval of a series
type Frequency string

const (
	FrequencyUnknown   Frequency = "unknown"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

// ParseFrequency parses a frequency name, falling back to FrequencyUnknown
func ParseFrequency(s string) Frequency {
	switch Frequency(s) {
	case FrequencyMonthly, FrequencyQuarterly:
		return Frequency(s)
	default:
		return FrequencyUnknown
	}
}

// Observation is a single dated value of a series
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// IsValid reports whether the observation carries a usable value
func (o Observation) IsValid() bool {
	return !o.Date.IsZero() && !math.IsNaN(o.Value) && !math.IsInf(o.Value, 0)
}

// Series is an ordered sequence of observations for one metric
type Series struct {
	Metric       string        `json:"metric"`
	Frequency    Frequency     `json:"frequency"`
	Observations []Observation `json:"observations"`
}

// NewSeries creates a series from observations
func NewSeries(metric string, frequency Frequency, observations []Observation) *Series {
	return &Series{
		Metric:       metric,
		Frequency:    frequency,
		Observations: observations,
	}
}

// Len returns the number of observations
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Observations)
}

// Values returns the value column in order
func (s *Series) Values() []float64 {
	values := make([]float64, 0, s.Len())
	if s == nil {
		return values
	}
	for _, obs := range s.Observations {
		values = append(values, obs.Value)
	}
	return values
}

// Latest returns the last observation
func (s *Series) Latest() (Observation, bool) {
	if s.Len() == 0 {
		return Observation{}, false
	}
	return s.Observations[len(s.Observations)-1], true
}

// Clone returns a deep copy of the series
func (s *Series) Clone() *Series {
	if s == nil {
		return nil
	}
	observations := make([]Observation, len(s.Observations))
	copy(observations, s.Observations)
	return &Series{
		Metric:       s.Metric,
		Frequency:    s.Frequency,
		Observations: observations,
	}
}

// Clean returns a copy with missing values dropped, sorted by date and
// deduplicated (the last value reported for a date wins)
func (s *Series) Clean() *Series {
	if s == nil {
		return nil
	}

	byDate := make(map[time.Time]float64, len(s.Observations))
	for _, obs := range s.Observations {
		if !obs.IsValid() {
			continue
		}
		byDate[truncateToDay(obs.Date)] = obs.Value
	}

	observations := make([]Observation, 0, len(byDate))
	for date, value := range byDate {
		observations = append(observations, Observation{Date: date, Value: value})
	}
	sort.Slice(observations, func(i, j int) bool {
		return observations[i].Date.Before(observations[j].Date)
	})

	return &Series{
		Metric:       s.Metric,
		Frequency:    s.Frequency,
		Observations: observations,
	}
}

// Tail returns a copy holding only the last n observations
func (s *Series) Tail(n int) *Series {
	clone := s.Clone()
	if clone == nil || n <= 0 || n >= len(clone.Observations) {
		return clone
	}
	clone.Observations = clone.Observations[len(clone.Observations)-n:]
	return clone
}

// Validate validates a Series
func (s *Series) Validate() error {
	if s == nil || s.Metric == "" {
		return ErrInvalidMetric
	}
	if len(s.Observations) == 0 {
		return ErrEmptySeries
	}
	for i := 1; i < len(s.Observations); i++ {
		if !s.Observations[i].Date.After(s.Observations[i-1].Date) {
			return fmt.Errorf("%w: %s at index %d", ErrUnsortedSeries, s.Metric, i)
		}
	}
	return nil
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
