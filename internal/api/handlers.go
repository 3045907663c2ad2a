package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/displacement-tracker/internal/export"
	"github.com/mohamedkhairy/displacement-tracker/internal/ingest"
	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/mohamedkhairy/displacement-tracker/internal/storage"
	"github.com/mohamedkhairy/displacement-tracker/pkg/indicator"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 1000
)

// Scorer computes a fresh report without storing or publishing it
type Scorer interface {
	Compute(ctx context.Context) (*models.Report, error)
}

// Refresher ingests fresh data and rescores
type Refresher interface {
	Refresh(ctx context.Context, force bool) (*models.Report, error)
}

// ScoreHandler serves composite scores
type ScoreHandler struct {
	scorer    Scorer
	reports   storage.ReportStorage
	refresher Refresher
}

// NewScoreHandler creates a new score handler. reports and refresher may be
// nil, in which case history and refresh answer 503.
func NewScoreHandler(scorer Scorer, reports storage.ReportStorage, refresher Refresher) *ScoreHandler {
	return &ScoreHandler{
		scorer:    scorer,
		reports:   reports,
		refresher: refresher,
	}
}

// GetScore handles GET /api/v1/score. The optional window parameter limits
// the response to one window.
func (h *ScoreHandler) GetScore(w http.ResponseWriter, r *http.Request) {
	var window models.Window
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := models.ParseWindow(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		window = parsed
	}

	report, ok := h.compute(w, r)
	if !ok {
		return
	}

	if window == "" {
		respondWithJSON(w, http.StatusOK, report)
		return
	}

	score, ok := report.Score(window)
	if !ok {
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"run_id":          report.RunID,
			"window":          window,
			"available":       false,
			"missing_metrics": report.MissingMetrics,
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":    report.RunID,
		"window":    window,
		"available": true,
		"score":     score,
	})
}

// GetHistory handles GET /api/v1/score/history
func (h *ScoreHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Report history not configured")
		return
	}

	filter := storage.ReportFilter{Limit: defaultHistoryLimit}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 || limit > maxHistoryLimit {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		filter.Limit = limit
	}

	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = since
	}

	reports, err := h.reports.GetReports(r.Context(), filter)
	if err != nil {
		logger.WithContext(r.Context()).Error("Failed to retrieve report history", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve report history")
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
		"limit":   filter.Limit,
	})
}

// GetReport handles GET /api/v1/score/history/{run_id}
func (h *ScoreHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Report history not configured")
		return
	}

	runID := mux.Vars(r)["run_id"]
	report, err := h.reports.GetReport(r.Context(), runID)
	if errors.Is(err, storage.ErrReportNotFound) {
		respondWithError(w, http.StatusNotFound, "Report not found")
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve report")
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

// ExportXLSX handles GET /api/v1/export.xlsx
func (h *ScoreHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	report, ok := h.compute(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := export.WriteReport(&buf, report); err != nil {
		logger.WithContext(r.Context()).Error("Failed to render workbook", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to render workbook")
		return
	}

	filename := fmt.Sprintf("displacement-%s.xlsx", report.GeneratedAt.UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

type refreshRequest struct {
	Force bool `json:"force"`
}

// Refresh handles POST /api/v1/refresh
func (h *ScoreHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Refresh not configured")
		return
	}

	var req refreshRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if force, err := strconv.ParseBool(r.URL.Query().Get("force")); err == nil && force {
		req.Force = true
	}

	log := logger.WithContext(r.Context())
	report, err := h.refresher.Refresh(r.Context(), req.Force)
	if errors.Is(err, ingest.ErrRefreshInProgress) {
		respondWithError(w, http.StatusConflict, "Refresh already in progress")
		return
	}
	if err != nil {
		logger.ErrorsTotal.WithLabelValues("api", "refresh").Inc()
		log.Error("Refresh failed", logger.ErrorField(err))
		respondWithError(w, http.StatusBadGateway, "Refresh failed: "+err.Error())
		return
	}

	log.Info("Refresh completed",
		logger.String("run_id", report.RunID),
		logger.String("user_id", UserID(r.Context())),
		logger.Bool("force", req.Force),
	)
	respondWithJSON(w, http.StatusOK, report)
}

func (h *ScoreHandler) compute(w http.ResponseWriter, r *http.Request) (*models.Report, bool) {
	report, err := h.scorer.Compute(r.Context())
	if err == nil {
		return report, true
	}

	logger.WithContext(r.Context()).Error("Scoring failed", logger.ErrorField(err))
	switch {
	case errors.Is(err, models.ErrDegenerateDenominator):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusGatewayTimeout, "Scoring timed out")
	default:
		respondWithError(w, http.StatusBadGateway, "Failed to compute score")
	}
	return nil, false
}

// MetricHandler serves metric definitions and stored series
type MetricHandler struct {
	config   models.ScoringConfig
	registry *indicator.Registry
	series   storage.SeriesStorage
}

// NewMetricHandler creates a new metric handler over the scoring
// pipeline's metrics. series may be nil.
func NewMetricHandler(pipeline *indicator.Pipeline, series storage.SeriesStorage) *MetricHandler {
	return &MetricHandler{
		config:   pipeline.Config(),
		registry: pipeline.Registry(),
		series:   series,
	}
}

// ListMetrics handles GET /api/v1/metrics
func (h *MetricHandler) ListMetrics(w http.ResponseWriter, r *http.Request) {
	windows := make([]map[string]interface{}, 0, len(models.AllWindows()))
	for _, window := range models.AllWindows() {
		windows = append(windows, map[string]interface{}{
			"window":  window,
			"label":   window.Label(),
			"periods": window.Periods(),
		})
	}

	metrics := h.registry.List()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"metrics":          metrics,
		"required":         h.registry.Required(),
		"weights":          h.config.Weights,
		"fallback_weights": h.config.FallbackWeights,
		"windows":          windows,
		"count":            len(metrics),
	})
}

// GetSeries handles GET /api/v1/series/{metric}
func (h *MetricHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	if h.series == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Series storage not configured")
		return
	}

	metric := mux.Vars(r)["metric"]
	def, err := h.registry.Get(metric)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Metric not found")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	series, err := h.series.GetSeries(r.Context(), metric, limit)
	if err != nil {
		logger.WithContext(r.Context()).Error("Failed to retrieve series",
			logger.String("metric", metric),
			logger.ErrorField(err),
		)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve series")
		return
	}

	observations := series.Observations
	if observations == nil {
		observations = []models.Observation{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"metric":       def.Name,
		"label":        def.Label,
		"frequency":    def.Frequency,
		"observations": observations,
		"count":        len(observations),
	})
}

// ReadinessCheck reports whether a dependency is usable
type ReadinessCheck func(ctx context.Context) error

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	checks map[string]ReadinessCheck
}

// NewHealthHandler creates a health handler with named readiness checks
func NewHealthHandler(checks map[string]ReadinessCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Live handles GET /live
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not ready",
			"checks": failed,
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// RouterConfig holds everything needed to build the API router
type RouterConfig struct {
	Scores      *ScoreHandler
	Metrics     *MetricHandler
	Health      *HealthHandler
	Auth        Middleware
	MetricsPage http.Handler
}

// NewRouter registers every route
func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/score", cfg.Scores.GetScore).Methods(http.MethodGet)
	v1.HandleFunc("/score/history", cfg.Scores.GetHistory).Methods(http.MethodGet)
	v1.HandleFunc("/score/history/{run_id}", cfg.Scores.GetReport).Methods(http.MethodGet)
	v1.HandleFunc("/export.xlsx", cfg.Scores.ExportXLSX).Methods(http.MethodGet)
	v1.HandleFunc("/metrics", cfg.Metrics.ListMetrics).Methods(http.MethodGet)
	v1.HandleFunc("/series/{metric}", cfg.Metrics.GetSeries).Methods(http.MethodGet)

	var refresh http.Handler = http.HandlerFunc(cfg.Scores.Refresh)
	if cfg.Auth != nil {
		refresh = cfg.Auth(refresh)
	}
	v1.Handle("/refresh", refresh).Methods(http.MethodPost)

	router.HandleFunc("/health", cfg.Health.Health).Methods(http.MethodGet)
	router.HandleFunc("/ready", cfg.Health.Ready).Methods(http.MethodGet)
	router.HandleFunc("/live", cfg.Health.Live).Methods(http.MethodGet)
	if cfg.MetricsPage != nil {
		router.Handle("/metrics", cfg.MetricsPage)
	}

	return router
}
