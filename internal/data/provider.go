package data

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
)

var (
	// ErrUnknownMetric is returned when a source does not serve a metric
	ErrUnknownMetric = errors.New("metric not served by source")
	// ErrNoData is returned when a source yields no usable observations
	ErrNoData = errors.New("no observations available")
	// ErrSourceAlreadyRegistered is returned when a metric is routed twice
	ErrSourceAlreadyRegistered = errors.New("source already registered for metric")
)

// Source defines the interface for indicator data sources
type Source interface {
	// Load returns the observations of one metric in chronological order
	Load(ctx context.Context, metric string) (*models.Series, error)

	// Metrics returns the metric names this source serves
	Metrics() []string

	// GetName returns the name/type of the source (e.g., "fred", "cps")
	GetName() string
}

// Router dispatches metric loads to the source registered for each metric
type Router struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRouter creates a router over the given sources. Each source is
// registered for every metric it reports.
func NewRouter(sources ...Source) (*Router, error) {
	r := &Router{sources: make(map[string]Source)}
	for _, source := range sources {
		for _, metric := range source.Metrics() {
			if err := r.Register(metric, source); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// Register routes a metric to a source
func (r *Router) Register(metric string, source Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.sources[metric]; exists {
		return fmt.Errorf("%w: %s (%s)", ErrSourceAlreadyRegistered, metric, existing.GetName())
	}
	r.sources[metric] = source
	return nil
}

// Load loads a metric from its registered source
func (r *Router) Load(ctx context.Context, metric string) (*models.Series, error) {
	r.mu.RLock()
	source, exists := r.sources[metric]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	return source.Load(ctx, metric)
}

// Metrics returns all routed metrics, sorted
func (r *Router) Metrics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metrics := make([]string, 0, len(r.sources))
	for metric := range r.sources {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)
	return metrics
}

// GetName returns the source name
func (r *Router) GetName() string {
	return "router"
}

// StaticSource serves fixed in-memory series, mainly for tests
type StaticSource struct {
	name   string
	series map[string]*models.Series
	errs   map[string]error
}

// NewStaticSource creates a static source from the given series
func NewStaticSource(name string, series ...*models.Series) *StaticSource {
	s := &StaticSource{
		name:   name,
		series: make(map[string]*models.Series, len(series)),
		errs:   make(map[string]error),
	}
	for _, ser := range series {
		s.series[ser.Metric] = ser
	}
	return s
}

// FailWith makes loads of a metric return err
func (s *StaticSource) FailWith(metric string, err error) *StaticSource {
	s.errs[metric] = err
	return s
}

// Load returns a copy of the stored series
func (s *StaticSource) Load(ctx context.Context, metric string) (*models.Series, error) {
	if err, ok := s.errs[metric]; ok {
		return nil, err
	}
	series, ok := s.series[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	return series.Clone(), nil
}

// Metrics returns the served metrics, sorted
func (s *StaticSource) Metrics() []string {
	metrics := make([]string, 0, len(s.series)+len(s.errs))
	for metric := range s.series {
		metrics = append(metrics, metric)
	}
	for metric := range s.errs {
		if _, ok := s.series[metric]; !ok {
			metrics = append(metrics, metric)
		}
	}
	sort.Strings(metrics)
	return metrics
}

// GetName returns the source name
func (s *StaticSource) GetName() string {
	return s.name
}
