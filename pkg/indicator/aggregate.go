package indicator

import (
	"fmt"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
)

const (
	neutralScore = 50.0
	minScore     = 0.0
	maxScore     = 100.0
)

// SelectWeights picks the weight table whose metrics match the available
// set exactly: the full table when the optional metrics are present, the
// fallback table when they are not
func SelectWeights(cfg *models.ScoringConfig, available map[string]bool) (models.WeightSet, error) {
	for _, ws := range []models.WeightSet{cfg.Weights, cfg.FallbackWeights} {
		if ws.Covers(available) {
			return ws, nil
		}
	}
	return models.WeightSet{}, fmt.Errorf("%w: %v", models.ErrNoWeightSet, sortedKeys(available))
}

// Aggregate combines z-scores with a weight set and maps the weighted
// z-score onto 0-100: clamp(50 + weightedZ*50/3, 0, 100)
func Aggregate(zscores map[string]float64, weights models.WeightSet) (weightedZ float64, score float64, err error) {
	if err := weights.Validate(); err != nil {
		return 0, 0, err
	}

	for metric, weight := range weights.Weights {
		z, ok := zscores[metric]
		if !ok {
			return 0, 0, fmt.Errorf("%w: no z-score for %s in %s", models.ErrInvalidWeights, metric, weights.Name)
		}
		weightedZ += weight * Clip(z)
	}

	score = clamp(neutralScore+weightedZ*(maxScore-neutralScore)/ZScoreLimit, minScore, maxScore)
	return weightedZ, score, nil
}

// ScoreWindows produces a composite score for every window in which all
// required metrics have a z-score. Windows missing a required metric are
// omitted. The weight table is chosen per window by which metrics are present.
func ScoreWindows(cfg *models.ScoringConfig, zscores map[string]map[models.Window]float64, windows []models.Window) (map[models.Window]models.WindowScore, error) {
	scores := make(map[models.Window]models.WindowScore, len(windows))

	for _, w := range windows {
		available := make(map[string]bool, len(cfg.Metrics))
		windowZ := make(map[string]float64, len(cfg.Metrics))
		complete := true

		for _, def := range cfg.Metrics {
			z, ok := zscores[def.Name][w]
			if !ok {
				if !def.Optional {
					complete = false
					break
				}
				continue
			}
			available[def.Name] = true
			windowZ[def.Name] = z
		}
		if !complete {
			continue
		}

		weights, err := SelectWeights(cfg, available)
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", w, err)
		}

		weightedZ, score, err := Aggregate(windowZ, weights)
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", w, err)
		}

		scores[w] = models.WindowScore{
			Window:    w,
			Score:     score,
			Level:     models.LevelForScore(score),
			WeightSet: weights.Name,
			WeightedZ: weightedZ,
			ZScores:   windowZ,
		}
	}

	return scores, nil
}
