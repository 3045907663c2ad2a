package indicator

import (
	"testing"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monthlySeries(metric string, start time.Time, values ...float64) *models.Series {
	obs := make([]models.Observation, len(values))
	for i, v := range values {
		obs[i] = models.Observation{Date: start.AddDate(0, i, 0), Value: v}
	}
	return models.NewSeries(metric, models.FrequencyMonthly, obs)
}

func quarterlySeries(metric string, start time.Time, values ...float64) *models.Series {
	obs := make([]models.Observation, len(values))
	for i, v := range values {
		obs[i] = models.Observation{Date: start.AddDate(0, 3*i, 0), Value: v}
	}
	return models.NewSeries(metric, models.FrequencyQuarterly, obs)
}

func jan(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

func TestAlignQuarterly_Monthly(t *testing.T) {
	s := monthlySeries("accountants_employed", jan(2024), 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)

	aligned := AlignQuarterly(s)

	require.Equal(t, 4, aligned.Len())
	assert.Equal(t, []float64{3, 6, 9, 12}, aligned.Values())
	assert.Equal(t, models.FrequencyQuarterly, aligned.Frequency)
	for _, obs := range aligned.Observations {
		assert.True(t, IsQuarterEnd(obs.Date), "unexpected month %s", obs.Date.Month())
	}
	assert.Equal(t, 12, s.Len(), "input must not be modified")
}

func TestAlignQuarterly_QuarterlyPassThrough(t *testing.T) {
	// FRED stamps quarterly data on the first month of the quarter
	s := quarterlySeries("labor_share", jan(2022), 100, 101, 102, 103, 104)

	aligned := AlignQuarterly(s)

	assert.Equal(t, s.Values(), aligned.Values())
	assert.Equal(t, s.Observations, aligned.Observations)
}

func TestAlignQuarterly_InfersFrequency(t *testing.T) {
	monthly := monthlySeries("unemployment", jan(2024), 1, 2, 3, 4, 5, 6)
	monthly.Frequency = models.FrequencyUnknown
	assert.Equal(t, models.FrequencyMonthly, DetectFrequency(monthly))
	assert.Equal(t, []float64{3, 6}, AlignQuarterly(monthly).Values())

	quarterly := quarterlySeries("labor_share", jan(2024), 1, 2, 3)
	quarterly.Frequency = models.FrequencyUnknown
	assert.Equal(t, models.FrequencyQuarterly, DetectFrequency(quarterly))
	assert.Equal(t, []float64{1, 2, 3}, AlignQuarterly(quarterly).Values())
}

func TestAlignQuarterly_NoQuarterEnds(t *testing.T) {
	s := monthlySeries("accountants_employed", jan(2024), 10, 11)

	aligned := AlignQuarterly(s)
	assert.Equal(t, 0, aligned.Len())

	changes, err := Changes(aligned, models.AllWindows())
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestAlignQuarterly_Idempotent(t *testing.T) {
	inputs := []*models.Series{
		monthlySeries("m", jan(2020), 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15),
		quarterlySeries("q", jan(2020), 1, 2, 3, 4, 5),
		models.NewSeries("u", models.FrequencyUnknown, []models.Observation{
			{Date: time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC), Value: 1},
			{Date: time.Date(2021, time.April, 1, 0, 0, 0, 0, time.UTC), Value: 2},
			{Date: time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC), Value: 3},
		}),
		models.NewSeries("empty", models.FrequencyMonthly, nil),
	}

	for _, s := range inputs {
		once := AlignQuarterly(s)
		twice := AlignQuarterly(once)
		assert.Equal(t, once.Values(), twice.Values(), "series %s", s.Metric)
	}
}

func TestAlignQuarterly_Nil(t *testing.T) {
	assert.Nil(t, AlignQuarterly(nil))
}
