package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// scoringFile is the YAML layout of SCORING_CONFIG_FILE. Every field is
// optional; metrics are matched by name against the defaults.
type scoringFile struct {
	Metrics         []metricFile       `yaml:"metrics" validate:"dive"`
	Weights         map[string]float64 `yaml:"weights" validate:"omitempty,dive,gt=0,lte=1"`
	FallbackWeights map[string]float64 `yaml:"fallback_weights" validate:"omitempty,dive,gt=0,lte=1"`
}

type metricFile struct {
	Name      string  `yaml:"name" validate:"required"`
	Label     string  `yaml:"label"`
	Direction int     `yaml:"direction" validate:"omitempty,oneof=-1 1"`
	StdDev    float64 `yaml:"std_dev" validate:"omitempty,gt=0"`
	Optional  *bool   `yaml:"optional"`
	Frequency string  `yaml:"frequency" validate:"omitempty,oneof=monthly quarterly"`
	Source    string  `yaml:"source"`
}

// LoadScoringConfig returns the default scoring model, overlaid with the
// YAML file at path (if any) and then with SCORING_* environment variables
func LoadScoringConfig(path string) (models.ScoringConfig, error) {
	cfg := models.DefaultScoringConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return models.ScoringConfig{}, fmt.Errorf("read scoring config: %w", err)
		}
		if err := applyScoringYAML(&cfg, data); err != nil {
			return models.ScoringConfig{}, err
		}
	}

	applyScoringEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return models.ScoringConfig{}, err
	}
	return cfg, nil
}

func applyScoringYAML(cfg *models.ScoringConfig, data []byte) error {
	var file scoringFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse scoring config: %w", err)
	}
	if err := validate.Struct(file); err != nil {
		return fmt.Errorf("validate scoring config: %w", err)
	}

	for _, m := range file.Metrics {
		idx := metricIndex(cfg, m.Name)
		if idx < 0 {
			cfg.Metrics = append(cfg.Metrics, models.MetricDefinition{Name: m.Name, Frequency: models.FrequencyUnknown})
			idx = len(cfg.Metrics) - 1
		}
		def := &cfg.Metrics[idx]
		if m.Label != "" {
			def.Label = m.Label
		}
		if m.Direction != 0 {
			def.Direction = models.Direction(m.Direction)
		}
		if m.StdDev != 0 {
			def.StdDev = m.StdDev
		}
		if m.Optional != nil {
			def.Optional = *m.Optional
		}
		if m.Frequency != "" {
			def.Frequency = models.ParseFrequency(m.Frequency)
		}
		if m.Source != "" {
			def.Source = m.Source
		}
	}

	if len(file.Weights) > 0 {
		cfg.Weights.Weights = file.Weights
	}
	if len(file.FallbackWeights) > 0 {
		cfg.FallbackWeights.Weights = file.FallbackWeights
	}
	return nil
}

// applyScoringEnv reads SCORING_STD_<METRIC>, SCORING_WEIGHT_<METRIC> and
// SCORING_FALLBACK_WEIGHT_<METRIC>, e.g. SCORING_STD_LABOR_SHARE=2.0
func applyScoringEnv(cfg *models.ScoringConfig) {
	for i := range cfg.Metrics {
		def := &cfg.Metrics[i]
		suffix := strings.ToUpper(def.Name)

		if v, ok := getEnvAsFloat("SCORING_STD_" + suffix); ok {
			def.StdDev = v
		}
		if v, ok := getEnvAsFloat("SCORING_WEIGHT_" + suffix); ok {
			cfg.Weights.Weights[def.Name] = v
		}
		if v, ok := getEnvAsFloat("SCORING_FALLBACK_WEIGHT_" + suffix); ok && !def.Optional {
			cfg.FallbackWeights.Weights[def.Name] = v
		}
	}
}

func metricIndex(cfg *models.ScoringConfig, name string) int {
	for i, def := range cfg.Metrics {
		if def.Name == name {
			return i
		}
	}
	return -1
}
