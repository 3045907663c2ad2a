package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
)

// MockSeriesStorage is an in-memory SeriesStorage for testing
type MockSeriesStorage struct {
	mu       sync.Mutex
	Series   map[string]*models.Series
	WriteErr error
	GetErr   error
}

// NewMockSeriesStorage creates an empty in-memory series store
func NewMockSeriesStorage() *MockSeriesStorage {
	return &MockSeriesStorage{Series: make(map[string]*models.Series)}
}

func (m *MockSeriesStorage) WriteSeries(ctx context.Context, series *models.Series) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}

	merged := series.Clone()
	if existing, ok := m.Series[series.Metric]; ok {
		merged.Observations = append(existing.Clone().Observations, series.Observations...)
	}
	m.Series[series.Metric] = merged.Clean()
	return nil
}

func (m *MockSeriesStorage) GetSeries(ctx context.Context, metric string, limit int) (*models.Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	series, ok := m.Series[metric]
	if !ok {
		return models.NewSeries(metric, models.FrequencyUnknown, nil), nil
	}
	return series.Tail(limit), nil
}

func (m *MockSeriesStorage) ListMetrics(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	metrics := make([]string, 0, len(m.Series))
	for metric := range m.Series {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)
	return metrics, nil
}

func (m *MockSeriesStorage) Close() error {
	return nil
}

// MockReportStorage is an in-memory ReportStorage for testing
type MockReportStorage struct {
	mu       sync.Mutex
	Reports  []*models.Report
	WriteErr error
	GetErr   error
}

func (m *MockReportStorage) WriteReport(ctx context.Context, report *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Reports = append(m.Reports, report)
	return nil
}

func (m *MockReportStorage) GetReports(ctx context.Context, filter ReportFilter) ([]*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	var result []*models.Report
	for i := len(m.Reports) - 1; i >= 0; i-- {
		report := m.Reports[i]
		if !filter.Since.IsZero() && report.GeneratedAt.Before(filter.Since) {
			continue
		}
		result = append(result, report)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

func (m *MockReportStorage) GetReport(ctx context.Context, runID string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	for _, report := range m.Reports {
		if report.RunID == runID {
			return report, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrReportNotFound, runID)
}

func (m *MockReportStorage) Close() error {
	return nil
}

var _ RedisClient = (*MockRedisClient)(nil)

// MockRedisClient is a mock implementation of RedisClient for testing
type MockRedisClient struct {
	mu           sync.Mutex
	Data         map[string]string
	TTLs         map[string]time.Duration
	StreamData   map[string][]string
	Published    []PubSubMessage
	PubSubData   []PubSubMessage
	PublishErr   error
	GetErr       error
	SetErr       error
	SubscribeErr error
	PingErr      error
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		Data:       make(map[string]string),
		TTLs:       make(map[string]time.Duration),
		StreamData: make(map[string][]string),
	}
}

func (m *MockRedisClient) PublishToStream(ctx context.Context, stream string, key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.StreamData[stream] = append(m.StreamData[stream], string(jsonData))
	return nil
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	// Marshal to JSON like the real implementation
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.Data[key] = string(jsonData)
	m.TTLs[key] = ttl
	return nil
}

func (m *MockRedisClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", m.GetErr
	}
	return m.Data[key], nil
}

func (m *MockRedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return m.GetErr
	}
	value, exists := m.Data[key]
	if !exists {
		return nil // Return nil if key doesn't exist (like real implementation)
	}
	return json.Unmarshal([]byte(value), dest)
}

func (m *MockRedisClient) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Data, key)
	delete(m.TTLs, key)
	return nil
}

func (m *MockRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	jsonData, err := json.Marshal(message)
	if err != nil {
		return err
	}
	m.Published = append(m.Published, PubSubMessage{Channel: channel, Message: string(jsonData)})
	return nil
}

func (m *MockRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	ch := make(chan PubSubMessage, len(m.PubSubData))
	for _, msg := range m.PubSubData {
		ch <- msg
	}
	close(ch)
	return ch, nil
}

func (m *MockRedisClient) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockRedisClient) Close() error {
	return nil
}

// PublishedOn returns the messages published to a channel
func (m *MockRedisClient) PublishedOn(channel string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var messages []string
	for _, msg := range m.Published {
		if msg.Channel == channel {
			messages = append(messages, msg.Message)
		}
	}
	return messages
}
