package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/config"
	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

const (
	// DefaultFREDBaseURL is the FRED graph CSV download endpoint
	DefaultFREDBaseURL = "https://fred.stlouisfed.org/graph/fredgraph.csv"

	// DefaultFREDTimeout is the default HTTP timeout
	DefaultFREDTimeout = 30 * time.Second

	// DefaultFREDRateLimit is the default rate limit (requests per second)
	DefaultFREDRateLimit = 2

	// fredStartDate is the first date requested from FRED
	fredStartDate = "1947-01-01"
)

var (
	fredRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fred_requests_total",
			Help: "Total number of FRED downloads",
		},
		[]string{"series", "status"},
	)

	fredRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fred_request_latency_seconds",
			Help:    "FRED download latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"series"},
	)
)

// APIError represents a non-200 response from an upstream data API
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("data API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// FREDClient downloads series from FRED as CSV
type FREDClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// FREDOption configures the FREDClient
type FREDOption func(*FREDClient)

// WithBaseURL sets a custom base URL
func WithBaseURL(baseURL string) FREDOption {
	return func(c *FREDClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) FREDOption {
	return func(c *FREDClient) {
		c.httpClient = httpClient
	}
}

// WithRateLimit sets a custom rate limit
func WithRateLimit(requestsPerSecond int) FREDOption {
	return func(c *FREDClient) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewFREDClient creates a new FRED client
func NewFREDClient(opts ...FREDOption) *FREDClient {
	c := &FREDClient{
		baseURL: DefaultFREDBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultFREDTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultFREDRateLimit), DefaultFREDRateLimit),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchSeries downloads the full history of a FRED series
func (c *FREDClient) FetchSeries(ctx context.Context, seriesID string, frequency models.Frequency) ([]models.Observation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	today := c.now().UTC().Format("2006-01-02")
	params := url.Values{}
	params.Set("id", seriesID)
	params.Set("cosd", fredStartDate)
	params.Set("coed", today)
	params.Set("fam", "avg")
	switch frequency {
	case models.FrequencyQuarterly:
		params.Set("fq", "Quarterly")
	case models.FrequencyMonthly:
		params.Set("fq", "Monthly")
	}

	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	logger.Debug("FRED request",
		logger.String("series", seriesID),
		logger.String("url", c.baseURL),
	)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	fredRequestLatency.WithLabelValues(seriesID).Observe(time.Since(startTime).Seconds())
	if err != nil {
		fredRequestsTotal.WithLabelValues(seriesID, "error").Inc()
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fredRequestsTotal.WithLabelValues(seriesID, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   seriesID,
		}
	}

	observations, err := parseFREDCSV(resp.Body, seriesID)
	if err != nil {
		fredRequestsTotal.WithLabelValues(seriesID, "error").Inc()
		return nil, err
	}

	fredRequestsTotal.WithLabelValues(seriesID, "success").Inc()
	return observations, nil
}

func parseFREDCSV(r io.Reader, seriesID string) ([]models.Observation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s has no header: %v", ErrUnsupportedFormat, seriesID, err)
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s csv: %w", seriesID, err)
	}

	return NewNormalizer("fred:"+seriesID, seriesID).Normalize(header, records)
}

// FREDSeries maps a metric to a FRED series
type FREDSeries struct {
	ID        string
	Frequency models.Frequency
	// History is the number of most recent observations kept (0 keeps all)
	History int
}

// FREDSource serves metrics backed by FRED series
type FREDSource struct {
	client *FREDClient
	series map[string]FREDSeries
}

// NewFREDSource creates a source over the given metric to series mapping
func NewFREDSource(client *FREDClient, series map[string]FREDSeries) *FREDSource {
	return &FREDSource{client: client, series: series}
}

// NewFREDSourceFromConfig wires the tracked FRED metrics from configuration
func NewFREDSourceFromConfig(cfg config.FREDConfig) *FREDSource {
	client := NewFREDClient(
		WithBaseURL(cfg.BaseURL),
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		WithRateLimit(cfg.RateLimitRPS),
	)
	return NewFREDSource(client, map[string]FREDSeries{
		models.MetricLaborShare: {
			ID:        cfg.LaborShareID,
			Frequency: models.FrequencyQuarterly,
			History:   cfg.QuarterlyHistory,
		},
		models.MetricRealGDPPerCapita: {
			ID:        cfg.GDPPerCapitaID,
			Frequency: models.FrequencyQuarterly,
			History:   cfg.QuarterlyHistory,
		},
		models.MetricUnemploymentRate: {
			ID:        cfg.UnemploymentID,
			Frequency: models.FrequencyMonthly,
			History:   cfg.MonthlyHistory,
		},
	})
}

// Load downloads a metric and trims it to its configured history
func (s *FREDSource) Load(ctx context.Context, metric string) (*models.Series, error) {
	fs, ok := s.series[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}

	observations, err := s.client.FetchSeries(ctx, fs.ID, fs.Frequency)
	if err != nil {
		return nil, fmt.Errorf("fetch %s (%s): %w", metric, fs.ID, err)
	}

	series := models.NewSeries(metric, fs.Frequency, observations).Clean().Tail(fs.History)
	if series.Len() == 0 {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNoData, metric, fs.ID)
	}

	latest, _ := series.Latest()
	logger.Info("Loaded FRED series",
		logger.String("metric", metric),
		logger.String("series", fs.ID),
		logger.Int("observations", series.Len()),
		logger.Time("latest_date", latest.Date),
		logger.Float64("latest_value", latest.Value),
	)
	return series, nil
}

// Metrics returns the served metrics, sorted
func (s *FREDSource) Metrics() []string {
	metrics := make([]string, 0, len(s.series))
	for metric := range s.series {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)
	return metrics
}

// GetName returns the source name
func (s *FREDSource) GetName() string {
	return "fred"
}
