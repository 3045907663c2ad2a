package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/data"
	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/mohamedkhairy/displacement-tracker/internal/storage"
	"github.com/mohamedkhairy/displacement-tracker/pkg/indicator"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	scoreRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "score_runs_total",
			Help: "Total number of scoring runs",
		},
		[]string{"status"},
	)

	scoreRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "score_run_duration_seconds",
			Help:    "Duration of a scoring run including data loads",
			Buckets: prometheus.DefBuckets,
		},
	)

	compositeScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "displacement_score",
			Help: "Latest composite displacement score per window",
		},
		[]string{"window"},
	)

	metricMissing = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "displacement_metric_missing",
			Help: "1 when a metric was missing from the latest run",
		},
		[]string{"metric"},
	)
)

// Publisher fans out finished reports
type Publisher interface {
	Publish(ctx context.Context, report *models.Report) error
}

// Service loads every metric, runs the scoring pipeline and hands the
// report to storage and subscribers
type Service struct {
	pipeline  *indicator.Pipeline
	source    data.Source
	reports   storage.ReportStorage
	publisher Publisher
	timeout   time.Duration

	mu     sync.RWMutex
	latest *models.Report
}

// Option configures the Service
type Option func(*Service)

// WithReportStorage records every Score report in the audit history
func WithReportStorage(reports storage.ReportStorage) Option {
	return func(s *Service) {
		s.reports = reports
	}
}

// WithPublisher publishes every Score report
func WithPublisher(publisher Publisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithTimeout bounds the data loading step of a run
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.timeout = timeout
	}
}

// NewService creates a scoring service
func NewService(pipeline *indicator.Pipeline, source data.Source, opts ...Option) *Service {
	s := &Service{
		pipeline: pipeline,
		source:   source,
		timeout:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the scoring model of the service
func (s *Service) Config() models.ScoringConfig {
	return s.pipeline.Config()
}

// LoadInputs loads every configured metric concurrently. Metrics the source
// has no data for are left out so the pipeline can apply its missing-metric
// rules; any other load failure aborts the run.
func (s *Service) LoadInputs(ctx context.Context) (map[string]*models.Series, error) {
	definitions := s.pipeline.Registry().List()

	loadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var mu sync.Mutex
	inputs := make(map[string]*models.Series, len(definitions))

	g, gctx := errgroup.WithContext(loadCtx)
	for _, def := range definitions {
		def := def
		g.Go(func() error {
			series, err := s.source.Load(gctx, def.Name)
			if errors.Is(err, data.ErrNoData) || errors.Is(err, data.ErrUnknownMetric) {
				logger.WithContext(ctx).Warn("Metric unavailable",
					logger.String("metric", def.Name),
					logger.Bool("optional", def.Optional),
					logger.ErrorField(err),
				)
				return nil
			}
			if err != nil {
				return fmt.Errorf("load %s: %w", def.Name, err)
			}

			mu.Lock()
			inputs[def.Name] = series
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inputs, nil
}

// Compute loads every metric and runs the pipeline. The report is neither
// recorded, stored nor published.
func (s *Service) Compute(ctx context.Context) (*models.Report, error) {
	startTime := time.Now()
	defer func() {
		scoreRunDuration.Observe(time.Since(startTime).Seconds())
	}()

	inputs, err := s.LoadInputs(ctx)
	if err != nil {
		scoreRunsTotal.WithLabelValues("load_error").Inc()
		return nil, err
	}

	report, err := s.pipeline.Run(inputs)
	if err != nil {
		scoreRunsTotal.WithLabelValues("score_error").Inc()
		return nil, fmt.Errorf("scoring failed: %w", err)
	}

	scoreRunsTotal.WithLabelValues("success").Inc()
	return report, nil
}

// Score runs one full scoring pass: the report becomes the latest one, is
// appended to the audit history and is published to subscribers
func (s *Service) Score(ctx context.Context) (*models.Report, error) {
	startTime := time.Now()

	report, err := s.Compute(ctx)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithRunID(ctx, report.RunID)
	log := logger.WithContext(ctx)

	s.record(report)

	if s.reports != nil {
		if err := s.reports.WriteReport(ctx, report); err != nil {
			logger.ErrorsTotal.WithLabelValues("tracker", "report_storage").Inc()
			log.Error("Failed to store report", logger.ErrorField(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, report); err != nil {
			logger.ErrorsTotal.WithLabelValues("tracker", "report_publish").Inc()
			log.Error("Failed to publish report", logger.ErrorField(err))
		}
	}

	fields := []zap.Field{
		logger.Int("windows", len(report.Scores)),
		logger.Strings("missing_metrics", report.MissingMetrics),
		logger.Duration("duration", time.Since(startTime)),
	}
	for _, w := range models.AllWindows() {
		if score, ok := report.Score(w); ok {
			fields = append(fields, logger.Float64("score_"+string(w), score.Score))
		}
	}
	log.Info("Scoring run completed", fields...)

	return report, nil
}

// Latest returns the most recent report computed by this service, if any
func (s *Service) Latest() *models.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *Service) record(report *models.Report) {
	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()

	for _, w := range models.AllWindows() {
		if score, ok := report.Score(w); ok {
			compositeScore.WithLabelValues(string(w)).Set(score.Score)
		} else {
			compositeScore.DeleteLabelValues(string(w))
		}
	}

	missing := make(map[string]bool, len(report.MissingMetrics))
	for _, metric := range report.MissingMetrics {
		missing[metric] = true
	}
	for _, def := range s.pipeline.Config().Metrics {
		value := 0.0
		if missing[def.Name] {
			value = 1
		}
		metricMissing.WithLabelValues(def.Name).Set(value)
	}
}
