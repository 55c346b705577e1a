package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-perimeter-risk/internal/analysis"
	"github.com/mr1hm/go-perimeter-risk/internal/api"
	"github.com/mr1hm/go-perimeter-risk/internal/config"
	"github.com/mr1hm/go-perimeter-risk/internal/evaluator"
	"github.com/mr1hm/go-perimeter-risk/internal/events"
	"github.com/mr1hm/go-perimeter-risk/internal/logging"
	"github.com/mr1hm/go-perimeter-risk/internal/metrics"
	"github.com/mr1hm/go-perimeter-risk/internal/places"
	"github.com/mr1hm/go-perimeter-risk/internal/report"
	"github.com/mr1hm/go-perimeter-risk/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "store", cfg.Store.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		logging.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	repo := repository.NewOffices(store)
	m := metrics.New()
	broadcaster := events.NewBroadcaster()

	client := analysis.NewClient(cfg.Analysis.URL, cfg.Analysis.Timeout)
	assembler := report.NewAssembler(repo, client, broadcaster, m)

	var finder api.NearbyFinder
	if f, err := places.NewFinder(cfg.Places.APIKey, uint(cfg.Places.Radius), cfg.Places.MaxPages); err == nil {
		finder = f
	} else {
		slog.Warn("nearby search disabled", "error", err)
	}

	var mgr *evaluator.Manager
	if cfg.Evaluator.Enabled {
		mgr = evaluator.NewManager(cfg, repo, assembler, m)
		if err := mgr.Start(ctx); err != nil {
			logging.Fatalf("Failed to start evaluator: %v", err)
		}
	}

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.Origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))

	handler := api.NewHandler(repo, assembler, finder, broadcaster, m)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	if mgr != nil {
		mgr.Stop()
	}
	broadcaster.Close() // Ends open event streams

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg config.StoreConfig) (repository.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return repository.NewSQLiteStore(cfg.Path)
	case "dynamodb":
		return repository.NewDynamoStore(ctx, cfg.DynamoTable, cfg.DynamoRegion)
	default:
		return nil, errors.New("unknown store driver: " + cfg.Driver)
	}
}
