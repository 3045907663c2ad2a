package indicator

import (
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
)

// IsQuarterEnd reports whether a date falls in March, June, September or December
func IsQuarterEnd(t time.Time) bool {
	return t.Month()%3 == 0
}

// AlignQuarterly resamples a monthly series to quarterly by keeping only the
// quarter-end months. Quarterly input is returned unchanged (as a copy).
// A series with no quarter-end observations aligns to an empty series.
func AlignQuarterly(s *models.Series) *models.Series {
	if s == nil {
		return nil
	}

	switch DetectFrequency(s) {
	case models.FrequencyQuarterly:
		aligned := s.Clone()
		aligned.Frequency = models.FrequencyQuarterly
		return aligned
	default:
		aligned := &models.Series{
			Metric:       s.Metric,
			Frequency:    models.FrequencyQuarterly,
			Observations: make([]models.Observation, 0, len(s.Observations)/3+1),
		}
		for _, obs := range s.Observations {
			if IsQuarterEnd(obs.Date) {
				aligned.Observations = append(aligned.Observations, obs)
			}
		}
		return aligned
	}
}

// DetectFrequency returns the declared frequency of a series, inferring it
// from the observation dates when it is unknown. Gaps of three or more
// months between every pair of observations mean quarterly data.
func DetectFrequency(s *models.Series) models.Frequency {
	if s == nil {
		return models.FrequencyUnknown
	}
	if s.Frequency == models.FrequencyMonthly || s.Frequency == models.FrequencyQuarterly {
		return s.Frequency
	}

	obs := s.Observations
	if len(obs) < 2 {
		// No gap to measure: a lone quarter-end point is already aligned
		for _, o := range obs {
			if !IsQuarterEnd(o.Date) {
				return models.FrequencyMonthly
			}
		}
		return models.FrequencyQuarterly
	}

	for i := 1; i < len(obs); i++ {
		if monthsBetween(obs[i-1].Date, obs[i].Date) < 3 {
			return models.FrequencyMonthly
		}
	}
	return models.FrequencyQuarterly
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}
