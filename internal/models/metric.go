package models

import (
	"fmt"
	"math"
	"sort"
)

// Metric names used throughout the tracker
const (
	MetricLaborShare          = "labor_share"
	MetricRealGDPPerCapita    = "real_gdp_per_capita"
	MetricAccountantsEmployed = "accountants_employed"
	MetricUnemploymentRate    = "graduate_unemployment_rate"
)

// WeightTolerance is the allowed deviation of a weight set sum from 1.0
const WeightTolerance = 1e-9

// Window is a lookback window for year-over-year changes
type Window string

const (
	Window1Year Window = "1_year"
	Window2Year Window = "2_year"
	Window3Year Window = "3_year"
)

// AllWindows returns the supported windows in ascending order
func AllWindows() []Window {
	return []Window{Window1Year, Window2Year, Window3Year}
}

// Periods returns the number of quarterly periods spanned by the window
func (w Window) Periods() int {
	switch w {
	case Window1Year:
		return 4
	case Window2Year:
		return 8
	case Window3Year:
		return 12
	default:
		return 0
	}
}

// Label returns a human readable window name
func (w Window) Label() string {
	switch w {
	case Window1Year:
		return "1 Year"
	case Window2Year:
		return "2 Years"
	case Window3Year:
		return "3 Years"
	default:
		return string(w)
	}
}

// ParseWindow parses a window name
func ParseWindow(s string) (Window, error) {
	w := Window(s)
	if w.Periods() == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	return w, nil
}

// Direction is the sign applied to a change so that a positive z-score
// always means a displacement signal
type Direction int

const (
	// Falling values signal displacement
	DirectionFalling Direction = -1
	// Rising values signal displacement
	DirectionRising Direction = 1
)

// MetricDefinition is the static description of one tracked indicator
type MetricDefinition struct {
	Name      string    `json:"name" yaml:"name"`
	Label     string    `json:"label" yaml:"label"`
	Direction Direction `json:"direction" yaml:"direction"`
	// StdDev is the assumed standard deviation of the YoY % change, in percentage points
	StdDev    float64   `json:"std_dev" yaml:"std_dev"`
	Optional  bool      `json:"optional" yaml:"optional"`
	Frequency Frequency `json:"frequency" yaml:"frequency"`
	Source    string    `json:"source,omitempty" yaml:"source,omitempty"`
}

// Validate validates a MetricDefinition
func (d *MetricDefinition) Validate() error {
	if d.Name == "" {
		return ErrInvalidMetric
	}
	if d.Direction != DirectionFalling && d.Direction != DirectionRising {
		return fmt.Errorf("%w: metric %s", ErrInvalidDirection, d.Name)
	}
	if !(d.StdDev > 0) || math.IsInf(d.StdDev, 0) {
		return fmt.Errorf("%w: metric %s has %v", ErrInvalidStdDev, d.Name, d.StdDev)
	}
	return nil
}

// WeightSet is a named table of metric weights
type WeightSet struct {
	Name    string             `json:"name" yaml:"name"`
	Weights map[string]float64 `json:"weights" yaml:"weights"`
}

// Sum returns the total of all weights
func (w WeightSet) Sum() float64 {
	sum := 0.0
	for _, weight := range w.Weights {
		sum += weight
	}
	return sum
}

// Metrics returns the metric names in the set, sorted
func (w WeightSet) Metrics() []string {
	names := make([]string, 0, len(w.Weights))
	for name := range w.Weights {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Covers reports whether the set holds exactly the given metrics
func (w WeightSet) Covers(metrics map[string]bool) bool {
	if len(w.Weights) != len(metrics) {
		return false
	}
	for name := range metrics {
		if _, ok := w.Weights[name]; !ok {
			return false
		}
	}
	return true
}

// Validate checks every weight lies in (0,1] and the set sums to 1
func (w WeightSet) Validate() error {
	if len(w.Weights) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidWeights, w.Name)
	}
	for name, weight := range w.Weights {
		if !(weight > 0) || weight > 1 {
			return fmt.Errorf("%w: %s weight for %s is %v", ErrInvalidWeights, w.Name, name, weight)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("%w: %s sums to %v", ErrInvalidWeights, w.Name, sum)
	}
	return nil
}

// ScoringConfig holds the metric definitions and the two weight tables:
// Weights when every metric is present, FallbackWeights when the
// optional metric is absent
type ScoringConfig struct {
	Metrics         []MetricDefinition `json:"metrics" yaml:"metrics"`
	Weights         WeightSet          `json:"weights" yaml:"weights"`
	FallbackWeights WeightSet          `json:"fallback_weights" yaml:"fallback_weights"`
}

// Metric returns the definition for a metric name
func (c *ScoringConfig) Metric(name string) (MetricDefinition, bool) {
	for _, def := range c.Metrics {
		if def.Name == name {
			return def, true
		}
	}
	return MetricDefinition{}, false
}

// MetricNames returns the configured metric names in definition order
func (c *ScoringConfig) MetricNames() []string {
	names := make([]string, 0, len(c.Metrics))
	for _, def := range c.Metrics {
		names = append(names, def.Name)
	}
	return names
}

// Required returns the required metric definitions
func (c *ScoringConfig) Required() []MetricDefinition {
	required := make([]MetricDefinition, 0, len(c.Metrics))
	for _, def := range c.Metrics {
		if !def.Optional {
			required = append(required, def)
		}
	}
	return required
}

// Validate validates a ScoringConfig
func (c *ScoringConfig) Validate() error {
	all := make(map[string]bool, len(c.Metrics))
	required := make(map[string]bool, len(c.Metrics))
	for i := range c.Metrics {
		def := &c.Metrics[i]
		if err := def.Validate(); err != nil {
			return err
		}
		if all[def.Name] {
			return fmt.Errorf("%w: duplicate metric %s", ErrInvalidMetric, def.Name)
		}
		all[def.Name] = true
		if !def.Optional {
			required[def.Name] = true
		}
	}
	if len(required) == 0 {
		return ErrNoRequiredMetrics
	}
	// Only two weight tables exist, so only one metric may be absent
	if optional := len(all) - len(required); optional > 1 {
		return fmt.Errorf("%w: got %d", ErrTooManyOptional, optional)
	}

	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if !c.Weights.Covers(all) {
		return fmt.Errorf("%w: %s must cover all metrics", ErrInvalidWeights, c.Weights.Name)
	}

	// Without optional metrics there is nothing to fall back from
	if len(required) == len(all) {
		return nil
	}
	if err := c.FallbackWeights.Validate(); err != nil {
		return err
	}
	if !c.FallbackWeights.Covers(required) {
		return fmt.Errorf("%w: %s must cover exactly the required metrics", ErrInvalidWeights, c.FallbackWeights.Name)
	}
	return nil
}

// DefaultScoringConfig returns the documented default metrics and weights
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Metrics: []MetricDefinition{
			{
				Name:      MetricLaborShare,
				Label:     "Labor Share Index",
				Direction: DirectionFalling,
				StdDev:    2.5,
				Frequency: FrequencyQuarterly,
				Source:    "FRED PRS85006173",
			},
			{
				Name:      MetricRealGDPPerCapita,
				Label:     "Real GDP per Capita",
				Direction: DirectionRising,
				StdDev:    3.0,
				Frequency: FrequencyQuarterly,
				Source:    "FRED A939RX0Q048SBEA",
			},
			{
				Name:      MetricAccountantsEmployed,
				Label:     "Employed Accountants",
				Direction: DirectionFalling,
				StdDev:    5.0,
				Frequency: FrequencyMonthly,
				Source:    "Census CPS occupation 0800",
			},
			{
				Name:      MetricUnemploymentRate,
				Label:     "Graduate Unemployment Rate",
				Direction: DirectionRising,
				StdDev:    15.0,
				Optional:  true,
				Frequency: FrequencyMonthly,
				Source:    "FRED UNRATE",
			},
		},
		Weights: WeightSet{
			Name: "full",
			Weights: map[string]float64{
				MetricLaborShare:          0.30,
				MetricRealGDPPerCapita:    0.25,
				MetricAccountantsEmployed: 0.20,
				MetricUnemploymentRate:    0.25,
			},
		},
		FallbackWeights: WeightSet{
			Name: "without_optional",
			Weights: map[string]float64{
				MetricLaborShare:          0.40,
				MetricRealGDPPerCapita:    0.35,
				MetricAccountantsEmployed: 0.25,
			},
		},
	}
}
