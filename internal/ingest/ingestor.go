package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/data"
	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/mohamedkhairy/displacement-tracker/internal/storage"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrRefreshInProgress is returned when a refresh is already running
var ErrRefreshInProgress = errors.New("refresh already in progress")

var (
	ingestObservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_observations_total",
			Help: "Observations written by ingestion",
		},
		[]string{"metric"},
	)

	ingestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_failures_total",
			Help: "Metric ingestion failures",
		},
		[]string{"metric", "reason"},
	)

	lastIngest = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_last_success_timestamp_seconds",
			Help: "Unix time of the last ingestion without failures",
		},
	)
)

// Result summarizes one ingestion pass
type Result struct {
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Written   map[string]int `json:"written"`
	Missing   []string       `json:"missing,omitempty"`
}

// Ingestor copies metrics from a source into series storage
type Ingestor struct {
	source  data.Source
	store   storage.SeriesStorage
	metrics []string
}

// NewIngestor creates an ingestor for the given metrics
func NewIngestor(source data.Source, store storage.SeriesStorage, metrics []string) *Ingestor {
	return &Ingestor{source: source, store: store, metrics: metrics}
}

// Run loads and stores every metric. Metrics without data are reported as
// missing; other failures are collected and returned after all metrics ran.
func (i *Ingestor) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		StartedAt: time.Now().UTC(),
		Written:   make(map[string]int, len(i.metrics)),
	}

	var errs []error
	for _, metric := range i.metrics {
		series, err := i.source.Load(ctx, metric)
		if errors.Is(err, data.ErrNoData) || errors.Is(err, data.ErrUnknownMetric) {
			ingestFailures.WithLabelValues(metric, "no_data").Inc()
			result.Missing = append(result.Missing, metric)
			logger.Warn("No data to ingest",
				logger.String("metric", metric),
				logger.ErrorField(err),
			)
			continue
		}
		if err != nil {
			ingestFailures.WithLabelValues(metric, "load").Inc()
			errs = append(errs, fmt.Errorf("load %s: %w", metric, err))
			continue
		}

		cleaned := series.Clean()
		if err := i.store.WriteSeries(ctx, cleaned); err != nil {
			ingestFailures.WithLabelValues(metric, "store").Inc()
			errs = append(errs, fmt.Errorf("store %s: %w", metric, err))
			continue
		}

		result.Written[metric] = cleaned.Len()
		ingestObservations.WithLabelValues(metric).Add(float64(cleaned.Len()))
	}
	result.Duration = time.Since(result.StartedAt)

	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}

	lastIngest.SetToCurrentTime()
	logger.Info("Ingestion completed",
		logger.Any("written", result.Written),
		logger.Strings("missing", result.Missing),
		logger.Duration("duration", result.Duration),
	)
	return result, nil
}

// Scorer runs a scoring pass
type Scorer interface {
	Score(ctx context.Context) (*models.Report, error)
}

// Invalidator drops cached upstream data
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Refresher ingests fresh data and rescores. Only one refresh runs at a time.
type Refresher struct {
	ingestor    *Ingestor
	scorer      Scorer
	invalidator Invalidator
	mu          sync.Mutex
}

// NewRefresher creates a refresher. invalidator may be nil.
func NewRefresher(ingestor *Ingestor, scorer Scorer, invalidator Invalidator) *Refresher {
	return &Refresher{ingestor: ingestor, scorer: scorer, invalidator: invalidator}
}

// Refresh runs ingestion followed by scoring. force bypasses cached
// upstream downloads.
func (r *Refresher) Refresh(ctx context.Context, force bool) (*models.Report, error) {
	if !r.mu.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer r.mu.Unlock()

	if force && r.invalidator != nil {
		if err := r.invalidator.Invalidate(ctx); err != nil {
			logger.Warn("Failed to invalidate cached downloads", logger.ErrorField(err))
		}
	}

	if _, err := r.ingestor.Run(ctx); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	return r.scorer.Score(ctx)
}
