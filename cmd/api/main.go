package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gbr-server/cmd"
	"gbr-server/internal/api"
	"gbr-server/internal/artifact"
	"gbr-server/internal/config"
	"gbr-server/internal/database"
	"gbr-server/internal/logging"
	"gbr-server/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	log.Println("Starting prediction server...")

	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}

	logging.InitLogger(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, os.Stderr)

	var (
		observers []artifact.Observer
		history   api.LoadHistory
		observer  api.PredictObserver
		collector *metrics.Collectors
	)

	if cfg.MetricsEnabled {
		collector = metrics.New()
		observers = append(observers, collector)
		observer = collector
	}

	if cfg.LedgerDSN != "" {
		db, err := database.Open(cfg.LedgerDSN)
		if err != nil {
			log.Fatalf("Failed to open load ledger: %v", err)
		}
		ledger := database.NewLedger(db)
		observers = append(observers, ledger)
		history = ledger
	}

	loader, err := cmd.NewLoader(context.Background(), cfg, observers...)
	if err != nil {
		log.Fatalf("Failed to configure model source: %v", err)
	}

	if cfg.PreloadModel {
		// The server stays up on failure; /predict retries the load.
		if _, err := loader.Get(context.Background()); err != nil {
			slog.Error("model preload failed", "error", err)
		}
	}

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CorsAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	service := api.NewPredictionService(loader, history, observer, cfg.MaxBodyBytes)
	service.AddRoutes(r)

	if collector != nil {
		r.Handle("/metrics", collector.Handler())
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("prediction server listening", "port", cfg.Port, "source", loader.Status().Source)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.Port, err)
	}

	log.Println("Server stopped.")
}
