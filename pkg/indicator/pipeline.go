package indicator

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mohamedkhairy/displacement-tracker/internal/models"
)

// Pipeline runs aligner, change calculator, normalizer and aggregator over
// one set of input series. It holds no state between runs.
type Pipeline struct {
	cfg      models.ScoringConfig
	registry *Registry
	windows  []models.Window
	now      func() time.Time
}

// NewPipeline creates a scoring pipeline for a validated config
func NewPipeline(cfg models.ScoringConfig) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring config: %w", err)
	}
	registry, err := NewRegistryFromConfig(&cfg)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:      cfg,
		registry: registry,
		windows:  models.AllWindows(),
		now:      time.Now,
	}, nil
}

// Config returns the scoring config used by the pipeline
func (p *Pipeline) Config() models.ScoringConfig {
	return p.cfg
}

// Registry returns the metric definitions the pipeline scores, in config order
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// Run scores the given series, keyed by metric name. Missing optional
// metrics switch windows to the fallback weights; missing required metrics
// drop the affected windows. A degenerate denominator fails the run.
func (p *Pipeline) Run(inputs map[string]*models.Series) (*models.Report, error) {
	report := &models.Report{
		RunID:       uuid.New().String(),
		GeneratedAt: p.now().UTC(),
		Metrics:     make(map[string]models.MetricReport, len(p.registry.Names())),
	}

	definitions := p.registry.List()
	zscores := make(map[string]map[models.Window]float64, len(definitions))
	for _, def := range definitions {
		series := inputs[def.Name]
		if series.Len() == 0 {
			report.MissingMetrics = append(report.MissingMetrics, def.Name)
			continue
		}

		metricReport, z, err := p.scoreMetric(def, series)
		if err != nil {
			return nil, err
		}
		report.Metrics[def.Name] = metricReport
		zscores[def.Name] = z
	}
	sort.Strings(report.MissingMetrics)

	scores, err := ScoreWindows(&p.cfg, zscores, p.windows)
	if err != nil {
		return nil, err
	}
	report.Scores = scores

	return report, nil
}

func (p *Pipeline) scoreMetric(def models.MetricDefinition, series *models.Series) (models.MetricReport, map[models.Window]float64, error) {
	cleaned := series.Clean()
	if cleaned.Frequency == models.FrequencyUnknown {
		cleaned.Frequency = def.Frequency
	}
	aligned := AlignQuarterly(cleaned)

	changes, err := Changes(aligned, p.windows)
	if err != nil {
		return models.MetricReport{}, nil, err
	}

	z, err := NormalizeChanges(changes, def)
	if err != nil {
		return models.MetricReport{}, nil, fmt.Errorf("metric %s: %w", def.Name, err)
	}

	metricReport := models.MetricReport{
		Metric:  def.Name,
		Label:   def.Label,
		Points:  aligned.Len(),
		Changes: changes,
		Trend:   ClassifyTrend(changes),
	}
	if latest, ok := cleaned.Latest(); ok {
		metricReport.Latest = &latest
	}

	return metricReport, z, nil
}

// ClassifyTrend reports whether the 1 and 2 year changes agree in sign
func ClassifyTrend(changes models.ChangeSet) models.Trend {
	oneYear, ok1 := changes.Get(models.Window1Year)
	twoYear, ok2 := changes.Get(models.Window2Year)
	if !ok1 || !ok2 {
		return models.TrendUnknown
	}

	switch {
	case oneYear < 0 && twoYear < 0:
		return models.TrendDownward
	case oneYear > 0 && twoYear > 0:
		return models.TrendUpward
	default:
		return models.TrendMixed
	}
}
