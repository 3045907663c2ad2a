package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
)

// ErrReportNotFound is returned when a stored report does not exist
var ErrReportNotFound = errors.New("report not found")

// SeriesStorage defines the interface for observation storage operations
type SeriesStorage interface {
	// WriteSeries upserts the observations of a series, keyed by metric and date
	WriteSeries(ctx context.Context, series *models.Series) error

	// GetSeries retrieves the latest limit observations of a metric in
	// chronological order. A limit of zero returns the full history.
	GetSeries(ctx context.Context, metric string, limit int) (*models.Series, error)

	// ListMetrics returns the metrics that have stored observations
	ListMetrics(ctx context.Context) ([]string, error)

	// Close closes the storage connection
	Close() error
}

// ReportStorage defines the interface for score report storage.
// Stored reports are an audit log; scoring never reads them back.
type ReportStorage interface {
	// WriteReport appends a report to the history
	WriteReport(ctx context.Context, report *models.Report) error

	// GetReports retrieves the most recent reports, newest first
	GetReports(ctx context.Context, filter ReportFilter) ([]*models.Report, error)

	// GetReport retrieves a single report by run ID
	GetReport(ctx context.Context, runID string) (*models.Report, error)

	// Close closes the storage connection
	Close() error
}

// ReportFilter defines filtering options for report queries
type ReportFilter struct {
	Since time.Time
	Limit int
}

// RedisClient defines the interface for Redis operations
type RedisClient interface {
	// Stream operations
	PublishToStream(ctx context.Context, stream string, key string, value interface{}) error

	// Key-value operations
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error

	// Pub/Sub operations
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error)

	// Ping checks the connection
	Ping(ctx context.Context) error

	// Close closes the Redis connection
	Close() error
}

// PubSubMessage represents a message from Redis pub/sub
type PubSubMessage struct {
	Channel string
	Message string
}
