package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleReport() *models.Report {
	return &models.Report{
		RunID:       "run-1",
		GeneratedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Scores: map[models.Window]models.WindowScore{
			models.Window1Year: {Window: models.Window1Year, Score: 62.5, Level: models.SignalModerate, WeightSet: "full", WeightedZ: 0.75},
			models.Window3Year: {Window: models.Window3Year, Score: 80, Level: models.SignalHigh, WeightSet: "full", WeightedZ: 1.8},
		},
		Metrics: map[string]models.MetricReport{
			models.MetricLaborShare: {
				Metric:  models.MetricLaborShare,
				Label:   "Labor Share Index",
				Latest:  &models.Observation{Date: time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), Value: 98.1},
				Points:  14,
				Changes: models.ChangeSet{models.Window1Year: -1.5},
				Trend:   models.TrendDownward,
			},
		},
		MissingMetrics: []string{models.MetricUnemploymentRate},
	}
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleReport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetScores, SheetMetrics, SheetRun}, f.GetSheetList())

	scores, err := f.GetRows(SheetScores)
	require.NoError(t, err)
	require.Len(t, scores, 3, "header plus the two computed windows")
	assert.Equal(t, "Window", scores[0][0])
	assert.Equal(t, "1 Year", scores[1][0])
	assert.Equal(t, "62.5", scores[1][1])
	assert.Equal(t, "moderate", scores[1][2])
	assert.Equal(t, "3 Years", scores[2][0])

	metrics, err := f.GetRows(SheetMetrics)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, models.MetricLaborShare, metrics[1][0])
	assert.Equal(t, "2024-10-01", metrics[1][2])
	assert.Equal(t, "-1.5", metrics[1][4])

	run, err := f.GetRows(SheetRun)
	require.NoError(t, err)
	assert.Equal(t, []string{"Run ID", "run-1"}, run[0])
	assert.Equal(t, []string{"Missing Metric", models.MetricUnemploymentRate}, run[2])
}

func TestWriteReport_Nil(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteReport(&buf, nil))
}
