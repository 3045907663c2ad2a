package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/mohamedkhairy/displacement-tracker/internal/storage"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_publish_total",
			Help: "Total number of score reports published",
		},
		[]string{"status"},
	)

	publishLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "report_publish_latency_seconds",
			Help:    "Report publish latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
	)
)

// ReportPublisherConfig holds configuration for the report publisher
type ReportPublisherConfig struct {
	Channel       string // pub/sub channel for live updates
	HistoryStream string // capped stream of recent reports, empty disables it
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultReportPublisherConfig returns default configuration
func DefaultReportPublisherConfig(channel string) ReportPublisherConfig {
	return ReportPublisherConfig{
		Channel:       channel,
		HistoryStream: "scores.reports",
		RetryAttempts: 3,
		RetryDelay:    100 * time.Millisecond,
	}
}

// ReportPublisher fans score reports out over Redis
type ReportPublisher struct {
	config ReportPublisherConfig
	redis  storage.RedisClient
}

// NewReportPublisher creates a new report publisher
func NewReportPublisher(redis storage.RedisClient, config ReportPublisherConfig) *ReportPublisher {
	return &ReportPublisher{
		config: config,
		redis:  redis,
	}
}

// Publish sends a report to the update channel and the history stream
func (p *ReportPublisher) Publish(ctx context.Context, report *models.Report) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	startTime := time.Now()
	defer func() {
		publishLatency.Observe(time.Since(startTime).Seconds())
	}()

	err := p.withRetry(ctx, func() error {
		return p.redis.Publish(ctx, p.config.Channel, report)
	})
	if err != nil {
		publishTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish report %s: %w", report.RunID, err)
	}

	if p.config.HistoryStream != "" {
		err := p.withRetry(ctx, func() error {
			return p.redis.PublishToStream(ctx, p.config.HistoryStream, "report", report)
		})
		if err != nil {
			// Live subscribers already have the report
			logger.Warn("Failed to append report to history stream",
				logger.ErrorField(err),
				logger.String("stream", p.config.HistoryStream),
				logger.String("run_id", report.RunID),
			)
		}
	}

	publishTotal.WithLabelValues("success").Inc()
	logger.Debug("Published score report",
		logger.String("channel", p.config.Channel),
		logger.String("run_id", report.RunID),
	)
	return nil
}

func (p *ReportPublisher) withRetry(ctx context.Context, fn func() error) error {
	attempts := p.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < attempts-1 {
			delay := p.config.RetryDelay * time.Duration(1<<uint(attempt)) // Exponential backoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}

// DecodeReport parses a report published on the update channel
func DecodeReport(message string) (*models.Report, error) {
	var report models.Report
	if err := json.Unmarshal([]byte(message), &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	if report.RunID == "" {
		return nil, fmt.Errorf("failed to decode report: missing run_id")
	}
	return &report, nil
}
