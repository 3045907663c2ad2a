package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SCORING_CONFIG_FILE", "")
	t.Setenv("INGEST_SOURCE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "PRS85006173", cfg.FRED.LaborShareID)
	assert.Equal(t, "A939RX0Q048SBEA", cfg.FRED.GDPPerCapitaID)
	assert.Equal(t, "UNRATE", cfg.FRED.UnemploymentID)
	assert.Equal(t, 14, cfg.FRED.QuarterlyHistory)
	assert.Equal(t, 42, cfg.FRED.MonthlyHistory)
	assert.Equal(t, "fred", cfg.Ingest.Source)
	assert.Equal(t, "scores.updates", cfg.WSGateway.UpdateChannel)
	assert.Equal(t, models.DefaultScoringConfig(), cfg.Scoring.Model)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FRED_TIMEOUT", "5s")
	t.Setenv("FRED_QUARTERLY_HISTORY", "20")
	t.Setenv("INGEST_SOURCE", "csv")
	t.Setenv("INGEST_RUN_ON_START", "false")
	t.Setenv("API_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.FRED.Timeout)
	assert.Equal(t, 20, cfg.FRED.QuarterlyHistory)
	assert.Equal(t, "csv", cfg.Ingest.Source)
	assert.False(t, cfg.Ingest.RunOnStart)
	assert.Equal(t, 8090, cfg.API.Port, "invalid ints fall back to the default")
}

func TestLoad_InvalidSource(t *testing.T) {
	t.Setenv("INGEST_SOURCE", "ftp")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadScoringConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SCORING_STD_LABOR_SHARE", "2.0")

	cfg, err := LoadScoringConfig("")
	require.NoError(t, err)

	def, ok := cfg.Metric(models.MetricLaborShare)
	require.True(t, ok)
	assert.Equal(t, 2.0, def.StdDev)
}

func TestLoadScoringConfig_WeightOverrideMustStillSumToOne(t *testing.T) {
	t.Setenv("SCORING_WEIGHT_LABOR_SHARE", "0.5")

	_, err := LoadScoringConfig("")
	assert.ErrorIs(t, err, models.ErrInvalidWeights)
}

func TestLoadScoringConfig_YAML(t *testing.T) {
	path := writeScoringFile(t, `
metrics:
  - name: accountants_employed
    std_dev: 4.0
    label: Accountants and Auditors
weights:
  labor_share: 0.25
  real_gdp_per_capita: 0.25
  accountants_employed: 0.25
  graduate_unemployment_rate: 0.25
`)

	cfg, err := LoadScoringConfig(path)
	require.NoError(t, err)

	def, ok := cfg.Metric(models.MetricAccountantsEmployed)
	require.True(t, ok)
	assert.Equal(t, 4.0, def.StdDev)
	assert.Equal(t, "Accountants and Auditors", def.Label)
	assert.Equal(t, models.DirectionFalling, def.Direction, "unset fields keep their defaults")
	assert.Equal(t, 0.25, cfg.Weights.Weights[models.MetricLaborShare])
	assert.Equal(t, 0.40, cfg.FallbackWeights.Weights[models.MetricLaborShare])
}

func TestLoadScoringConfig_YAMLValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "bad direction",
			body: "metrics:\n  - name: labor_share\n    direction: 2\n",
		},
		{
			name: "negative std dev",
			body: "metrics:\n  - name: labor_share\n    std_dev: -1\n",
		},
		{
			name: "missing name",
			body: "metrics:\n  - std_dev: 1\n",
		},
		{
			name: "weight above one",
			body: "weights:\n  labor_share: 1.5\n",
		},
		{
			name: "new metric without direction",
			body: "metrics:\n  - name: wages\n    std_dev: 1\n",
		},
		{
			name: "malformed yaml",
			body: "metrics: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScoringFile(t, tt.body)
			_, err := LoadScoringConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadScoringConfig_MissingFile(t *testing.T) {
	_, err := LoadScoringConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func writeScoringFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
