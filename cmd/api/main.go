package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/api"
	"github.com/mohamedkhairy/displacement-tracker/internal/config"
	"github.com/mohamedkhairy/displacement-tracker/internal/data"
	"github.com/mohamedkhairy/displacement-tracker/internal/ingest"
	"github.com/mohamedkhairy/displacement-tracker/internal/pubsub"
	"github.com/mohamedkhairy/displacement-tracker/internal/storage"
	"github.com/mohamedkhairy/displacement-tracker/internal/tracker"
	"github.com/mohamedkhairy/displacement-tracker/internal/wsgateway"
	"github.com/mohamedkhairy/displacement-tracker/pkg/indicator"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting REST API service",
		logger.Int("port", cfg.API.Port),
		logger.Int("rate_limit_rps", cfg.API.RateLimitRPS),
		logger.String("ingest_source", cfg.Ingest.Source),
		logger.Bool("refresh_auth", cfg.API.JWTSecret != ""),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client",
			logger.ErrorField(err),
		)
	}
	defer redisClient.Close()

	db, err := storage.NewTimescaleDBClient(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize TimescaleDB client",
			logger.ErrorField(err),
		)
	}
	defer db.Close()

	pipeline, err := indicator.NewPipeline(cfg.Scoring.Model)
	if err != nil {
		logger.Fatal("Failed to build scoring pipeline",
			logger.ErrorField(err),
		)
	}

	metrics := cfg.Scoring.Model.MetricNames()

	publisher := pubsub.NewReportPublisher(redisClient, pubsub.DefaultReportPublisherConfig(cfg.WSGateway.UpdateChannel))
	service := tracker.NewService(pipeline, data.NewStoredSource(db, metrics, 0),
		tracker.WithReportStorage(db),
		tracker.WithPublisher(publisher),
		tracker.WithTimeout(cfg.API.RequestTimeout),
	)

	upstream, cache, err := data.NewUpstream(cfg, redisClient)
	if err != nil {
		logger.Fatal("Failed to build upstream source",
			logger.ErrorField(err),
		)
	}
	var invalidator ingest.Invalidator
	if cache != nil {
		invalidator = cache
	}
	refresher := ingest.NewRefresher(ingest.NewIngestor(upstream, db, metrics), service, invalidator)

	rateLimiter := api.NewRateLimiter(cfg.API.RateLimitRPS)
	go rateLimiter.Run(ctx)

	router := api.NewRouter(api.RouterConfig{
		Scores:  api.NewScoreHandler(service, db, refresher),
		Metrics: api.NewMetricHandler(pipeline, db),
		Health: api.NewHealthHandler(map[string]api.ReadinessCheck{
			"database": db.Ping,
			"redis":    redisClient.Ping,
		}),
		Auth:        api.AuthMiddleware(wsgateway.NewAuthManager(cfg.API.JWTSecret)),
		MetricsPage: promhttp.Handler(),
	})

	middlewares := api.ChainMiddleware(
		api.CORSMiddleware(),
		api.LoggingMiddleware(),
		api.ErrorHandlingMiddleware(),
		api.RateLimitMiddleware(rateLimiter),
		api.TimeoutMiddleware(cfg.API.RequestTimeout),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           middlewares(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down REST API service")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	logger.Info("REST API service stopped")
}
