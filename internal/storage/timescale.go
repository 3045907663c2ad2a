package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/mohamedkhairy/displacement-tracker/internal/config"
	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Metrics for TimescaleDB operations
	timescaleWriteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timescale_write_total",
			Help: "Total number of rows written to TimescaleDB",
		},
		[]string{"table", "status"},
	)

	timescaleQueryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timescale_query_latency_seconds",
			Help:    "Latency of TimescaleDB operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		},
		[]string{"operation"},
	)
)

const schema = `
CREATE TABLE IF NOT EXISTS observations (
	metric      TEXT             NOT NULL,
	frequency   TEXT             NOT NULL,
	observed_at TIMESTAMPTZ      NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	updated_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
	PRIMARY KEY (metric, observed_at)
);

CREATE TABLE IF NOT EXISTS score_reports (
	run_id       TEXT        PRIMARY KEY,
	generated_at TIMESTAMPTZ NOT NULL,
	payload      JSONB       NOT NULL
);

CREATE INDEX IF NOT EXISTS score_reports_generated_at_idx ON score_reports (generated_at DESC);
`

// TimescaleDBClient implements SeriesStorage and ReportStorage for TimescaleDB
type TimescaleDBClient struct {
	db       *sql.DB
	dbConfig config.DatabaseConfig
}

// ConnectionString builds the lib/pq DSN for a database config
func ConnectionString(dbConfig config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Database,
		dbConfig.SSLMode,
	)
}

// NewTimescaleDBClient creates a new TimescaleDB client and ensures the schema exists
func NewTimescaleDBClient(dbConfig config.DatabaseConfig) (*TimescaleDBClient, error) {
	db, err := sql.Open("postgres", ConnectionString(dbConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info("Connected to TimescaleDB",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)

	return &TimescaleDBClient{db: db, dbConfig: dbConfig}, nil
}

// Ping checks the database connection
func (t *TimescaleDBClient) Ping(ctx context.Context) error {
	return t.db.PingContext(ctx)
}

// WriteSeries upserts a series in a single transaction
func (t *TimescaleDBClient) WriteSeries(ctx context.Context, series *models.Series) error {
	if series.Len() == 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		timescaleQueryLatency.WithLabelValues("write_series").Observe(time.Since(start).Seconds())
	}()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (metric, frequency, observed_at, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (metric, observed_at) DO UPDATE SET
			frequency = EXCLUDED.frequency,
			value = EXCLUDED.value,
			updated_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, obs := range series.Observations {
		if !obs.IsValid() {
			continue
		}
		if _, err := stmt.ExecContext(ctx, series.Metric, string(series.Frequency), obs.Date, obs.Value); err != nil {
			timescaleWriteTotal.WithLabelValues("observations", "error").Inc()
			return fmt.Errorf("failed to insert observation for %s: %w", series.Metric, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		timescaleWriteTotal.WithLabelValues("observations", "error").Inc()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	timescaleWriteTotal.WithLabelValues("observations", "success").Add(float64(written))
	logger.Debug("Wrote observations to TimescaleDB",
		logger.String("metric", series.Metric),
		logger.Int("count", written),
		logger.Duration("latency", time.Since(start)),
	)
	return nil
}

// GetSeries retrieves the latest limit observations of a metric
func (t *TimescaleDBClient) GetSeries(ctx context.Context, metric string, limit int) (*models.Series, error) {
	start := time.Now()
	defer func() {
		timescaleQueryLatency.WithLabelValues("get_series").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT frequency, observed_at, value
		FROM observations
		WHERE metric = $1
		ORDER BY observed_at DESC
	`
	args := []interface{}{metric}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	series := models.NewSeries(metric, models.FrequencyUnknown, nil)
	for rows.Next() {
		var (
			frequency string
			obs       models.Observation
		)
		if err := rows.Scan(&frequency, &obs.Date, &obs.Value); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		series.Frequency = models.ParseFrequency(frequency)
		obs.Date = obs.Date.UTC()
		series.Observations = append(series.Observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	// Reverse to get chronological order
	obs := series.Observations
	for i, j := 0, len(obs)-1; i < j; i, j = i+1, j-1 {
		obs[i], obs[j] = obs[j], obs[i]
	}

	return series, nil
}

// ListMetrics returns the distinct stored metrics
func (t *TimescaleDBClient) ListMetrics(ctx context.Context) ([]string, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT DISTINCT metric FROM observations ORDER BY metric`)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []string
	for rows.Next() {
		var metric string
		if err := rows.Scan(&metric); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, metric)
	}
	return metrics, rows.Err()
}

// WriteReport appends a report to the audit history
func (t *TimescaleDBClient) WriteReport(ctx context.Context, report *models.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	start := time.Now()
	_, err = t.db.ExecContext(ctx, `
		INSERT INTO score_reports (run_id, generated_at, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO NOTHING
	`, report.RunID, report.GeneratedAt, payload)
	timescaleQueryLatency.WithLabelValues("write_report").Observe(time.Since(start).Seconds())
	if err != nil {
		timescaleWriteTotal.WithLabelValues("score_reports", "error").Inc()
		return fmt.Errorf("failed to insert report: %w", err)
	}

	timescaleWriteTotal.WithLabelValues("score_reports", "success").Inc()
	return nil
}

// GetReports retrieves the most recent reports, newest first
func (t *TimescaleDBClient) GetReports(ctx context.Context, filter ReportFilter) ([]*models.Report, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT payload
		FROM score_reports
		WHERE generated_at >= $1
		ORDER BY generated_at DESC
		LIMIT $2
	`, filter.Since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.Report
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		var report models.Report
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("failed to decode report: %w", err)
		}
		reports = append(reports, &report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return reports, nil
}

// GetReport retrieves a single report by run ID
func (t *TimescaleDBClient) GetReport(ctx context.Context, runID string) (*models.Report, error) {
	var payload []byte
	err := t.db.QueryRowContext(ctx, `SELECT payload FROM score_reports WHERE run_id = $1`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report: %w", err)
	}

	var report models.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// Close closes the database connection
func (t *TimescaleDBClient) Close() error {
	if err := t.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	logger.Info("TimescaleDB client closed")
	return nil
}
