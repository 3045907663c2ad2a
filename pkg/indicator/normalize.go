package indicator

import (
	"fmt"
	"math"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
)

// ZScoreLimit bounds every per-metric z-score before aggregation
const ZScoreLimit = 3.0

// Clip bounds a z-score to [-ZScoreLimit, ZScoreLimit]. NaN clips to 0.
func Clip(z float64) float64 {
	if math.IsNaN(z) {
		return 0
	}
	return clamp(z, -ZScoreLimit, ZScoreLimit)
}

// ZScore converts a percentage change into a direction-adjusted, clipped
// z-score: clip(direction * change / stdDev)
func ZScore(change float64, def models.MetricDefinition) (float64, error) {
	if err := def.Validate(); err != nil {
		return 0, err
	}
	if math.IsNaN(change) || math.IsInf(change, 0) {
		return 0, fmt.Errorf("%w: metric %s change is %v", models.ErrDegenerateDenominator, def.Name, change)
	}
	return Clip(float64(def.Direction) * change / def.StdDev), nil
}

// NormalizeChanges computes the z-score of every defined window of a metric
func NormalizeChanges(changes models.ChangeSet, def models.MetricDefinition) (map[models.Window]float64, error) {
	zscores := make(map[models.Window]float64, len(changes))
	for w, change := range changes {
		z, err := ZScore(change, def)
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", w, err)
		}
		zscores[w] = z
	}
	return zscores, nil
}
