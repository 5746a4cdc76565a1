package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/beside/server/internal/auth"
	"github.com/beside/server/internal/config"
	"github.com/beside/server/internal/db"
	httphandler "github.com/beside/server/internal/http"
	"github.com/beside/server/internal/http/handlers"
	"github.com/beside/server/internal/ledger"
	"github.com/beside/server/internal/proximity"
	"github.com/beside/server/internal/repo"
	signalsvc "github.com/beside/server/internal/signal"
	"github.com/beside/server/internal/stats"
)

func main() {
	_ = godotenv.Load(".env")

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Redis is optional: without it proximity queries fall back to SQL.
	var redisConn *redis.Client
	if cfg.RedisURL != "" {
		redisConn, err = db.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warnf("Redis unavailable, proximity queries use SQL fallback: %v", err)
			redisConn = nil
		}
	}

	userRepo := repo.NewUserRepo(database)
	signalRepo := repo.NewSignalRepo(database)
	responseRepo := repo.NewResponseRepo(database)
	statsRepo := repo.NewStatsRepo(database)

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL)
	authService := auth.NewService(userRepo, jwtService, logger)

	engine := proximity.NewEngine(signalRepo, userRepo, responseRepo, redisConn, logger)
	signalService := signalsvc.NewService(signalRepo, userRepo, responseRepo, engine, cfg.SignalTTL, logger)
	ledgerService := ledger.NewService(responseRepo, signalRepo, engine, logger)
	statsService := stats.NewService(statsRepo)

	authHandler := handlers.NewAuthHandler(authService, logger)
	signalHandler := handlers.NewSignalHandler(
		signalService, ledgerService, engine, statsService,
		cfg.DefaultRadiusKM, cfg.MaxRadiusKM, logger,
	)
	healthHandler := handlers.NewHealthHandler(database, redisConn)

	router := httphandler.NewRouter(httphandler.RouterDeps{
		Auth:           authHandler,
		Signals:        signalHandler,
		Health:         healthHandler,
		JWT:            jwtService,
		Users:          userRepo,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	// Background expiry sweep; reads also filter lazily so signals never
	// outlive their TTL observably.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	sweeper := signalsvc.NewSweeper(signalService, cfg.SweepInterval, logger)
	go sweeper.Run(sweepCtx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	if redisConn != nil {
		_ = redisConn.Close()
	}

	logger.Info("Server exited")
}

// runMigrations runs database migrations using goose.
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
