package data

import (
	"fmt"

	"github.com/mohamedkhairy/displacement-tracker/internal/config"
	"github.com/mohamedkhairy/displacement-tracker/internal/storage"
)

// NewUpstream builds the source ingestion reads from. With the "fred"
// source, FRED series are cached in Redis when redis is non-nil and the
// accountants series comes from CPS files. The returned cache is nil when
// nothing is cached.
func NewUpstream(cfg *config.Config, redis storage.RedisClient) (Source, *CachedSource, error) {
	switch cfg.Ingest.Source {
	case "csv":
		return NewCSVSourceFromConfig(cfg.Ingest.CSVDir, cfg.Scoring.Model), nil, nil

	case "fred":
		var fred Source = NewFREDSourceFromConfig(cfg.FRED)
		var cache *CachedSource
		if redis != nil && cfg.FRED.CacheTTL > 0 {
			cache = NewCachedSource(fred, redis, cfg.FRED.CacheTTL)
			fred = cache
		}

		router, err := NewRouter(fred, NewCPSSource(cfg.CPS.DataDir))
		if err != nil {
			return nil, nil, err
		}
		return router, cache, nil

	default:
		return nil, nil, fmt.Errorf("unsupported ingest source %q", cfg.Ingest.Source)
	}
}
