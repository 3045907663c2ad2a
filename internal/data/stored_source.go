package data

import (
	"context"
	"fmt"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/mohamedkhairy/displacement-tracker/internal/storage"
)

// StoredSource serves metrics from previously ingested observations
type StoredSource struct {
	store   storage.SeriesStorage
	metrics []string
	limit   int
}

// NewStoredSource creates a source over a series store. limit caps the
// observations read per metric (0 reads the full history).
func NewStoredSource(store storage.SeriesStorage, metrics []string, limit int) *StoredSource {
	return &StoredSource{store: store, metrics: metrics, limit: limit}
}

// Load reads a metric from storage
func (s *StoredSource) Load(ctx context.Context, metric string) (*models.Series, error) {
	series, err := s.store.GetSeries(ctx, metric, s.limit)
	if err != nil {
		return nil, fmt.Errorf("load stored %s: %w", metric, err)
	}
	if series.Len() == 0 {
		return nil, fmt.Errorf("%w: %s has not been ingested", ErrNoData, metric)
	}
	return series, nil
}

// Metrics returns the served metrics
func (s *StoredSource) Metrics() []string {
	return s.metrics
}

// GetName returns the source name
func (s *StoredSource) GetName() string {
	return "storage"
}
