package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/displacement-tracker/internal/config"
	"github.com/mohamedkhairy/displacement-tracker/internal/data"
	"github.com/mohamedkhairy/displacement-tracker/internal/ingest"
	"github.com/mohamedkhairy/displacement-tracker/internal/pubsub"
	"github.com/mohamedkhairy/displacement-tracker/internal/storage"
	"github.com/mohamedkhairy/displacement-tracker/internal/tracker"
	"github.com/mohamedkhairy/displacement-tracker/pkg/indicator"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting ingest service",
		logger.String("source", cfg.Ingest.Source),
		logger.String("schedule", cfg.Ingest.Schedule),
		logger.Int("health_port", cfg.Ingest.HealthPort),
	)

	// Initialize Redis client
	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client",
			logger.ErrorField(err),
		)
	}
	defer redisClient.Close()

	// Initialize TimescaleDB client
	db, err := storage.NewTimescaleDBClient(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize TimescaleDB client",
			logger.ErrorField(err),
		)
	}
	defer db.Close()

	upstream, cache, err := data.NewUpstream(cfg, redisClient)
	if err != nil {
		logger.Fatal("Failed to build upstream source",
			logger.ErrorField(err),
		)
	}

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
	)

	var invalidator ingest.Invalidator
	if cache != nil {
		invalidator = cache
	}
	refresher := ingest.NewRefresher(ingest.NewIngestor(upstream, db, metrics), service, invalidator)

	// Without a schedule, refresh once and exit
	if cfg.Ingest.Schedule == "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Ingest.Timeout)
		defer cancel()

		report, err := refresher.Refresh(ctx, true)
		if err != nil {
			logger.Fatal("Refresh failed",
				logger.ErrorField(err),
			)
		}
		logger.Info("Refresh completed",
			logger.String("run_id", report.RunID),
			logger.Strings("missing_metrics", report.MissingMetrics),
		)
		return
	}

	scheduler := ingest.NewScheduler(refresher, cfg.Ingest.Timeout)
	if err := scheduler.Start(cfg.Ingest.Schedule); err != nil {
		logger.Fatal("Failed to start scheduler",
			logger.ErrorField(err),
			logger.String("schedule", cfg.Ingest.Schedule),
		)
	}
	if cfg.Ingest.RunOnStart {
		scheduler.RunNow()
	}

	// Start health check server
	healthServer := startHealthServer(cfg.Ingest.HealthPort, service, db, redisClient)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down ingest service")

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server",
			logger.ErrorField(err),
		)
	}

	logger.Info("Ingest service stopped")
}

// startHealthServer serves liveness, readiness with the last run, and metrics
func startHealthServer(port int, service *tracker.Service, db *storage.TimescaleDBClient, redis storage.RedisClient) *http.Server {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}).Methods("GET")

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := map[string]string{"database": "ok", "redis": "ok"}
		if err := db.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := redis.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}

		body := map[string]interface{}{"checks": checks}
		if latest := service.Latest(); latest != nil {
			body["last_run_id"] = latest.RunID
			body["last_run_at"] = latest.GeneratedAt
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting health check server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health check server failed",
				logger.ErrorField(err),
			)
		}
	}()

	return server
}
