package indicator

import (
	"errors"
	"fmt"
	"math"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
)

// PercentChange returns the percentage change between the last value and
// the value `periods` positions before it:
//
//	(v[n-1] - v[n-1-periods]) / v[n-1-periods] * 100
//
// It returns models.ErrInsufficientHistory when len(values) <= periods and
// models.ErrDegenerateDenominator when the base is zero or the ratio is not
// finite.
func PercentChange(values []float64, periods int) (float64, error) {
	if periods <= 0 {
		return 0, fmt.Errorf("%w: periods must be positive, got %d", models.ErrInvalidWindow, periods)
	}
	if len(values) <= periods {
		return 0, models.ErrInsufficientHistory
	}

	current := values[len(values)-1]
	pastIndex := len(values) - 1 - periods
	past := values[pastIndex]

	if past == 0 {
		return 0, fmt.Errorf("%w: zero base at index %d", models.ErrDegenerateDenominator, pastIndex)
	}

	change := ((current - past) / past) * 100.0
	if math.IsNaN(change) || math.IsInf(change, 0) {
		return 0, fmt.Errorf("%w: non-finite change from base %v at index %d", models.ErrDegenerateDenominator, past, pastIndex)
	}

	return change, nil
}

// Changes computes the percentage change of a series for each window.
// Missing values are dropped first. Windows without enough history are
// omitted from the result; a degenerate denominator is returned as an error.
func Changes(s *models.Series, windows []models.Window) (models.ChangeSet, error) {
	changes := make(models.ChangeSet, len(windows))
	if s == nil {
		return changes, nil
	}

	values := s.Clean().Values()
	for _, w := range windows {
		periods := w.Periods()
		if periods == 0 {
			return nil, fmt.Errorf("%w: %q", models.ErrInvalidWindow, w)
		}

		change, err := PercentChange(values, periods)
		if err != nil {
			if errors.Is(err, models.ErrInsufficientHistory) {
				continue
			}
			return nil, fmt.Errorf("metric %s window %s: %w", s.Metric, w, err)
		}
		changes[w] = change
	}

	return changes, nil
}
