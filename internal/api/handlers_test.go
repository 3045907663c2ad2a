package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/data"
	"github.com/mohamedkhairy/displacement-tracker/internal/export"
	"github.com/mohamedkhairy/displacement-tracker/internal/ingest"
	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/mohamedkhairy/displacement-tracker/internal/pubsub"
	"github.com/mohamedkhairy/displacement-tracker/internal/storage"
	"github.com/mohamedkhairy/displacement-tracker/internal/tracker"
	"github.com/mohamedkhairy/displacement-tracker/internal/wsgateway"
	"github.com/mohamedkhairy/displacement-tracker/pkg/indicator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubScorer struct {
	report *models.Report
	err    error
	calls  int
}

func (s *stubScorer) Compute(ctx context.Context) (*models.Report, error) {
	s.calls++
	return s.report, s.err
}

type stubRefresher struct {
	report *models.Report
	err    error
	force  bool
}

func (s *stubRefresher) Refresh(ctx context.Context, force bool) (*models.Report, error) {
	s.force = force
	return s.report, s.err
}

func testReport(runID string, generatedAt time.Time) *models.Report {
	return &models.Report{
		RunID:       runID,
		GeneratedAt: generatedAt,
		Scores: map[models.Window]models.WindowScore{
			models.Window1Year: {Window: models.Window1Year, Score: 55, Level: models.SignalModerate, WeightSet: "full"},
		},
		Metrics: map[string]models.MetricReport{},
	}
}

type testServer struct {
	router    http.Handler
	scorer    *stubScorer
	refresher *stubRefresher
	reports   *storage.MockReportStorage
	series    *storage.MockSeriesStorage
	auth      *wsgateway.AuthManager
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	ts := &testServer{
		scorer:    &stubScorer{report: testReport("run-now", now)},
		refresher: &stubRefresher{report: testReport("run-refresh", now)},
		reports:   &storage.MockReportStorage{},
		series:    storage.NewMockSeriesStorage(),
		auth:      wsgateway.NewAuthManager(secret),
	}

	pipeline, err := indicator.NewPipeline(models.DefaultScoringConfig())
	require.NoError(t, err)

	ts.router = NewRouter(RouterConfig{
		Scores:  NewScoreHandler(ts.scorer, ts.reports, ts.refresher),
		Metrics: NewMetricHandler(pipeline, ts.series),
		Health: NewHealthHandler(map[string]ReadinessCheck{
			"noop": func(ctx context.Context) error { return nil },
		}),
		Auth: AuthMiddleware(ts.auth),
	})
	return ts
}

func (ts *testServer) do(method, target string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return response
}

func TestScoreHandler_GetScore(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(http.MethodGet, "/api/v1/score", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "run-now", report.RunID)
	assert.Equal(t, 55.0, report.Scores[models.Window1Year].Score)
	assert.Equal(t, 1, ts.scorer.calls)
}

func TestScoreHandler_GetScore_Window(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(http.MethodGet, "/api/v1/score?window=1_year", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, true, response["available"])

	w = ts.do(http.MethodGet, "/api/v1/score?window=3_year", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	response = decode(t, w)
	assert.Equal(t, false, response["available"])

	w = ts.do(http.MethodGet, "/api/v1/score?window=5_year", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScoreHandler_GetScore_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"degenerate denominator", fmt.Errorf("scoring failed: %w", models.ErrDegenerateDenominator), http.StatusUnprocessableEntity},
		{"timeout", fmt.Errorf("load labor_share: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"upstream", errors.New("fred unavailable"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, "")
			ts.scorer.err = tt.err

			w := ts.do(http.MethodGet, "/api/v1/score", nil, nil)
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestScoreHandler_GetHistory(t *testing.T) {
	ts := newTestServer(t, "")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts.reports.WriteReport(context.Background(), testReport(fmt.Sprintf("run-%d", i), base.AddDate(0, 0, i)))
	}

	w := ts.do(http.MethodGet, "/api/v1/score/history?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Reports []models.Report `json:"reports"`
		Count   int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Equal(t, 2, response.Count)
	assert.Equal(t, "run-4", response.Reports[0].RunID, "newest first")
	assert.Equal(t, "run-3", response.Reports[1].RunID)

	w = ts.do(http.MethodGet, "/api/v1/score/history?since=2025-01-04T00:00:00Z", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Count)
}

func TestScoreHandler_GetHistory_InvalidParams(t *testing.T) {
	ts := newTestServer(t, "")

	for _, target := range []string{
		"/api/v1/score/history?limit=0",
		"/api/v1/score/history?limit=abc",
		"/api/v1/score/history?limit=5000",
		"/api/v1/score/history?since=yesterday",
	} {
		w := ts.do(http.MethodGet, target, nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestScoreHandler_GetReport(t *testing.T) {
	ts := newTestServer(t, "")
	ts.reports.WriteReport(context.Background(), testReport("run-a", time.Now()))

	w := ts.do(http.MethodGet, "/api/v1/score/history/run-a", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run-a", decode(t, w)["run_id"])

	w = ts.do(http.MethodGet, "/api/v1/score/history/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScoreHandler_ExportXLSX(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(http.MethodGet, "/api/v1/export.xlsx", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "displacement-20250115-090000.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), export.SheetScores)
}

func TestScoreHandler_Refresh(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(http.MethodPost, "/api/v1/refresh", []byte(`{"force":true}`), map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run-refresh", decode(t, w)["run_id"])
	assert.True(t, ts.refresher.force)

	w = ts.do(http.MethodPost, "/api/v1/refresh", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, ts.refresher.force)

	w = ts.do(http.MethodPost, "/api/v1/refresh?force=true", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, ts.refresher.force)
}

func TestScoreHandler_Refresh_Errors(t *testing.T) {
	ts := newTestServer(t, "")

	ts.refresher.err = ingest.ErrRefreshInProgress
	w := ts.do(http.MethodPost, "/api/v1/refresh", nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	ts.refresher.err = errors.New("ingest: load labor_share: boom")
	w = ts.do(http.MethodPost, "/api/v1/refresh", nil, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	ts.refresher.err = nil
	w = ts.do(http.MethodPost, "/api/v1/refresh", []byte("{not json"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScoreHandler_Refresh_RequiresToken(t *testing.T) {
	ts := newTestServer(t, "refresh-secret")

	w := ts.do(http.MethodPost, "/api/v1/refresh", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/refresh", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := ts.auth.IssueToken("operator", time.Hour)
	require.NoError(t, err)
	w = ts.do(http.MethodPost, "/api/v1/refresh", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)

	// read endpoints stay public
	w = ts.do(http.MethodGet, "/api/v1/score", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestScoreHandler_NotConfigured(t *testing.T) {
	handler := NewScoreHandler(&stubScorer{}, nil, nil)

	w := httptest.NewRecorder()
	handler.GetHistory(w, httptest.NewRequest(http.MethodGet, "/api/v1/score/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	handler.Refresh(w, httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricHandler_ListMetrics(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(http.MethodGet, "/api/v1/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.Equal(t, float64(4), response["count"])
	assert.Equal(t, []interface{}{
		models.MetricLaborShare, models.MetricRealGDPPerCapita, models.MetricAccountantsEmployed,
	}, response["required"])
	windows, ok := response["windows"].([]interface{})
	require.True(t, ok)
	assert.Len(t, windows, 3)

	weights, ok := response["weights"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "full", weights["name"])
}

func TestMetricHandler_GetSeries(t *testing.T) {
	ts := newTestServer(t, "")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	observations := []models.Observation{
		{Date: start, Value: 100},
		{Date: start.AddDate(0, 3, 0), Value: 101},
		{Date: start.AddDate(0, 6, 0), Value: 102},
	}
	require.NoError(t, ts.series.WriteSeries(context.Background(),
		models.NewSeries(models.MetricLaborShare, models.FrequencyQuarterly, observations)))

	w := ts.do(http.MethodGet, "/api/v1/series/labor_share?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, "labor_share", response["metric"])
	assert.Equal(t, "quarterly", response["frequency"])
	assert.Equal(t, float64(2), response["count"])

	w = ts.do(http.MethodGet, "/api/v1/series/graduate_unemployment_rate", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["count"])

	w = ts.do(http.MethodGet, "/api/v1/series/bitcoin", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/series/labor_share?limit=-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthHandler(t *testing.T) {
	handler := NewHealthHandler(map[string]ReadinessCheck{
		"database": func(ctx context.Context) error { return nil },
	})

	w := httptest.NewRecorder()
	handler.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.Live(w, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	failing := NewHealthHandler(map[string]ReadinessCheck{
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	})
	w = httptest.NewRecorder()
	failing.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "connection refused"))
}

func flatSeries(metric string, frequency models.Frequency, n int, value float64) *models.Series {
	step := 1
	if frequency == models.FrequencyQuarterly {
		step = 3
	}
	start := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	observations := make([]models.Observation, n)
	for i := range observations {
		observations[i] = models.Observation{Date: start.AddDate(0, step*i, 0), Value: value}
	}
	return models.NewSeries(metric, frequency, observations)
}

func TestScoreHandler_ReadsHaveNoSideEffects(t *testing.T) {
	pipeline, err := indicator.NewPipeline(models.DefaultScoringConfig())
	require.NoError(t, err)

	reports := &storage.MockReportStorage{}
	redis := storage.NewMockRedisClient()
	service := tracker.NewService(pipeline,
		data.NewStaticSource("static",
			flatSeries(models.MetricLaborShare, models.FrequencyQuarterly, 14, 100),
			flatSeries(models.MetricRealGDPPerCapita, models.FrequencyQuarterly, 14, 68000),
			flatSeries(models.MetricAccountantsEmployed, models.FrequencyMonthly, 42, 1500),
		),
		tracker.WithReportStorage(reports),
		tracker.WithPublisher(pubsub.NewReportPublisher(redis, pubsub.DefaultReportPublisherConfig("scores.updates"))),
	)

	router := NewRouter(RouterConfig{
		Scores:  NewScoreHandler(service, reports, nil),
		Metrics: NewMetricHandler(pipeline, storage.NewMockSeriesStorage()),
		Health:  NewHealthHandler(nil),
	})

	for _, target := range []string{"/api/v1/score", "/api/v1/score?window=2_year", "/api/v1/export.xlsx"} {
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
			require.Equal(t, http.StatusOK, w.Code, target)
		}
	}

	assert.Empty(t, reports.Reports)
	assert.Empty(t, redis.PublishedOn("scores.updates"))
	assert.Nil(t, service.Latest())
}
