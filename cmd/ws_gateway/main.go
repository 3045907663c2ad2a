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
	"github.com/mohamedkhairy/displacement-tracker/internal/pubsub"
	"github.com/mohamedkhairy/displacement-tracker/internal/storage"
	"github.com/mohamedkhairy/displacement-tracker/internal/wsgateway"
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

	logger.Info("Starting WebSocket gateway service",
		logger.Int("port", cfg.WSGateway.Port),
		logger.Int("max_connections", cfg.WSGateway.MaxConnections),
		logger.String("update_channel", cfg.WSGateway.UpdateChannel),
	)

	// Initialize Redis client
	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client",
			logger.ErrorField(err),
		)
	}
	defer redisClient.Close()

	// The database only seeds the snapshot for new clients
	var reports storage.ReportStorage
	db, err := storage.NewTimescaleDBClient(cfg.Database)
	if err != nil {
		logger.Warn("TimescaleDB unavailable, starting without a snapshot",
			logger.ErrorField(err),
		)
	} else {
		defer db.Close()
		reports = db
	}

	authManager := wsgateway.NewAuthManager(cfg.WSGateway.JWTSecret)

	hub := wsgateway.NewHub(cfg.WSGateway, redisClient, reports)
	if err := hub.Start(); err != nil {
		logger.Fatal("Failed to start WebSocket hub",
			logger.ErrorField(err),
		)
	}
	defer hub.Stop()

	router := mux.NewRouter()
	router.HandleFunc("/ws", wsgateway.Handler(hub, authManager))

	// Health check endpoints
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := redisClient.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	router.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	})

	router.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.GetStats())
	})

	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WSGateway.Port),
		Handler:           router,
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

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down WebSocket gateway service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	logger.Info("WebSocket gateway service stopped")
}
