package data

import (
	"context"
	"fmt"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/mohamedkhairy/displacement-tracker/internal/storage"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheLookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "series_cache_lookups_total",
		Help: "Series cache lookups by result",
	},
	[]string{"source", "result"},
)

// CachedSource keeps downloaded series in Redis for a TTL so repeated
// scoring runs do not hit the upstream source
type CachedSource struct {
	source Source
	redis  storage.RedisClient
	ttl    time.Duration
	prefix string
}

// NewCachedSource wraps a source with a Redis cache
func NewCachedSource(source Source, redis storage.RedisClient, ttl time.Duration) *CachedSource {
	return &CachedSource{
		source: source,
		redis:  redis,
		ttl:    ttl,
		prefix: "series:" + source.GetName() + ":",
	}
}

// Key returns the cache key of a metric
func (c *CachedSource) Key(metric string) string {
	return c.prefix + metric
}

// Load returns the cached series or loads and caches it. Cache failures
// are logged and fall through to the wrapped source.
func (c *CachedSource) Load(ctx context.Context, metric string) (*models.Series, error) {
	key := c.Key(metric)

	var cached models.Series
	if err := c.redis.GetJSON(ctx, key, &cached); err != nil {
		logger.Warn("Series cache read failed",
			logger.ErrorField(err),
			logger.String("key", key),
		)
	} else if cached.Len() > 0 {
		cacheLookups.WithLabelValues(c.source.GetName(), "hit").Inc()
		return &cached, nil
	}
	cacheLookups.WithLabelValues(c.source.GetName(), "miss").Inc()

	series, err := c.source.Load(ctx, metric)
	if err != nil {
		return nil, err
	}

	if err := c.redis.Set(ctx, key, series, c.ttl); err != nil {
		logger.Warn("Series cache write failed",
			logger.ErrorField(err),
			logger.String("key", key),
		)
	}
	return series, nil
}

// Invalidate drops the cached copy of every served metric
func (c *CachedSource) Invalidate(ctx context.Context) error {
	for _, metric := range c.source.Metrics() {
		if err := c.redis.Delete(ctx, c.Key(metric)); err != nil {
			return fmt.Errorf("invalidate %s: %w", metric, err)
		}
	}
	return nil
}

// Metrics returns the metrics of the wrapped source
func (c *CachedSource) Metrics() []string {
	return c.source.Metrics()
}

// GetName returns the wrapped source name
func (c *CachedSource) GetName() string {
	return c.source.GetName()
}
