package data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
)

// CSVSource reads processed series from <dir>/<metric>.csv. Files carry
// either a date column or year and month columns plus one value column.
type CSVSource struct {
	dir     string
	metrics map[string]models.Frequency
}

// NewCSVSource creates a source for the given metrics and their frequencies
func NewCSVSource(dir string, metrics map[string]models.Frequency) *CSVSource {
	return &CSVSource{dir: dir, metrics: metrics}
}

// NewCSVSourceFromConfig serves every metric of a scoring model
func NewCSVSourceFromConfig(dir string, cfg models.ScoringConfig) *CSVSource {
	metrics := make(map[string]models.Frequency, len(cfg.Metrics))
	for _, def := range cfg.Metrics {
		metrics[def.Name] = def.Frequency
	}
	return NewCSVSource(dir, metrics)
}

// Path returns the file a metric is read from
func (s *CSVSource) Path(metric string) string {
	return filepath.Join(s.dir, metric+".csv")
}

// Load reads a metric file. A missing file yields ErrNoData so optional
// metrics can simply be left out of the directory.
func (s *CSVSource) Load(ctx context.Context, metric string) (*models.Series, error) {
	frequency, ok := s.metrics[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.Path(metric)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoData, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, path)
	}

	observations, err := NewNormalizer("csv:"+metric, "value").Normalize(rows[0], rows[1:])
	if err != nil {
		return nil, err
	}
	return models.NewSeries(metric, frequency, observations), nil
}

// Metrics returns the served metrics, sorted
func (s *CSVSource) Metrics() []string {
	metrics := make([]string, 0, len(s.metrics))
	for metric := range s.metrics {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)
	return metrics
}

// GetName returns the source name
func (s *CSVSource) GetName() string {
	return "csv"
}
