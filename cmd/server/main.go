package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gridpicks/engine/internal/api"
	"gridpicks/engine/internal/cache"
	"gridpicks/engine/internal/calendar"
	"gridpicks/engine/internal/client"
	"gridpicks/engine/internal/clock"
	"gridpicks/engine/internal/config"
	"gridpicks/engine/internal/gate"
	"gridpicks/engine/internal/leaderboard"
	"gridpicks/engine/internal/metrics"
	"gridpicks/engine/internal/predictions"
	"gridpicks/engine/internal/repository"
	"gridpicks/engine/internal/resolver"
	"gridpicks/engine/internal/scoring"
	"gridpicks/engine/internal/season"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Setup logger
	setupLogger()

	log.Info().Msg("Starting GridPicks prediction engine")

	// Load configuration
	cfg := config.MustLoad()
	log.Info().
		Str("env", cfg.AppEnv).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	// Create context that listens for cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize database connection
	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Fields(db.PoolStats()).Msg("Database pool ready")

	if cfg.RunMigrations {
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	// Initialize Redis cache
	var (
		feedCache   cache.Cache = cache.Nop{}
		cacheHealth func(context.Context) error
	)
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(ctx, cache.Config{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis - continuing without cache")
		} else {
			defer redisCache.Close()
			feedCache = redisCache
			cacheHealth = redisCache.Ping
		}
	}

	feed := client.NewClient(cfg.OpenF1BaseURL, client.Options{
		Timeout:    cfg.OpenF1Timeout,
		RateLimit:  cfg.OpenF1RateLimit,
		Burst:      cfg.OpenF1Burst,
		MaxRetries: cfg.OpenF1MaxRetries,
	})
	log.Info().Str("base_url", cfg.OpenF1BaseURL).Msg("OpenF1 client initialized")

	clk := clock.Real{}

	mirror := calendar.NewMirror(feed, db.Meetings, db.Sessions).WithConcurrency(cfg.ReconcileConcurrency)
	events := resolver.New(mirror, clk)
	publicEvents := resolver.New(calendar.NewReadThrough(feed, feedCache, cfg.CalendarCacheTTL()), clk)

	availability := gate.New(mirror, feed, clk)
	scorer := scoring.NewScorer(scoring.NewCachedResults(feed, feedCache, cfg.ResultsCacheTTL()), db.Predictions)
	seasons := season.NewService(db.Predictions, db.SeasonScores, events, scorer, clk).
		WithConcurrency(cfg.ReconcileConcurrency)

	router := api.NewRouter(api.Deps{
		Feed:              feed,
		Cache:             feedCache,
		DriversTTL:        cfg.DriversCacheTTL(),
		Public:            publicEvents,
		Events:            events,
		Gate:              availability,
		Predictions:       predictions.NewService(db.Predictions, events, availability),
		SeasonPredictions: predictions.NewSeasonService(db.SeasonPredictions, mirror, clk),
		Season:            seasons,
		Leaderboards:      leaderboard.New(db.Profiles, seasons, clk, cfg.LeaderboardCandidateLimit),
		Clock:             clk,
		Health:            db.Health,
		CacheHealth:       cacheHealth,
		JWTSecret:         cfg.JWTSecret,
		RequestTimeout:    cfg.RequestTimeout,
		EnableMetrics:     cfg.EnableMetrics,
		DefaultLimit:      cfg.LeaderboardDefaultLimit,
		MaxLimit:          cfg.LeaderboardMaxLimit,
		MaxMembers:        cfg.LeaderboardMaxMembers,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Update system uptime metric
	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SystemUptime.Set(time.Since(startTime).Seconds())
				stat := db.Pool.Stat()
				metrics.UpdateDBConnectionStats(stat.AcquiredConns(), stat.IdleConns())
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	// Keep running until context is cancelled
	<-ctx.Done()
	log.Info().Msg("Received shutdown signal, gracefully shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server shutdown complete")
}

// setupLogger configures the zerolog logger
func setupLogger() {
	// Pretty console logging in development
	if os.Getenv("APP_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	level := zerolog.InfoLevel
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		parsedLevel, err := zerolog.ParseLevel(lvl)
		if err == nil {
			level = parsedLevel
		}
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}
