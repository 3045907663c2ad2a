package storage

import (
	"context"
	"testing"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/config"
	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionString(t *testing.T) {
	dsn := ConnectionString(config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "tracker",
		Password: "secret",
		Database: "displacement_tracker",
		SSLMode:  "require",
	})

	assert.Equal(t, "host=db port=5433 user=tracker password=secret dbname=displacement_tracker sslmode=require", dsn)
}

// Note: Full integration tests for TimescaleDB client would require a real database.
// The in-memory stores below share the same contract and back the service tests.

func quarter(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

func TestMockSeriesStorage_UpsertAndTail(t *testing.T) {
	ctx := context.Background()
	store := NewMockSeriesStorage()

	require.NoError(t, store.WriteSeries(ctx, models.NewSeries("labor_share", models.FrequencyQuarterly, []models.Observation{
		{Date: quarter(2024, time.January), Value: 100},
		{Date: quarter(2024, time.April), Value: 101},
	})))
	require.NoError(t, store.WriteSeries(ctx, models.NewSeries("labor_share", models.FrequencyQuarterly, []models.Observation{
		{Date: quarter(2024, time.April), Value: 102},
		{Date: quarter(2024, time.July), Value: 103},
	})))

	series, err := store.GetSeries(ctx, "labor_share", 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 102, 103}, series.Values(), "later writes replace the same date")

	tail, err := store.GetSeries(ctx, "labor_share", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{102, 103}, tail.Values())

	missing, err := store.GetSeries(ctx, "unknown", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, missing.Len())

	metrics, err := store.ListMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"labor_share"}, metrics)
}

func TestMockReportStorage_NewestFirst(t *testing.T) {
	ctx := context.Background()
	store := &MockReportStorage{}
	base := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.WriteReport(ctx, &models.Report{RunID: id, GeneratedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	reports, err := store.GetReports(ctx, ReportFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "c", reports[0].RunID)
	assert.Equal(t, "b", reports[1].RunID)

	since, err := store.GetReports(ctx, ReportFilter{Since: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "c", since[0].RunID)

	_, err = store.GetReport(ctx, "missing")
	assert.ErrorIs(t, err, ErrReportNotFound)
}
