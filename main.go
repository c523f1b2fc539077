package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/cache"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/config"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/geo"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/handler"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/middleware"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/query"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/respond"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/storage"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}

	logger := config.NewLogger()
	defer func() { _ = logger.Sync() }()

	redisClient := redisv9.NewClient(&redisv9.Options{Addr: cfg.Redis.Addr})
	defer func() { _ = redisClient.Close() }()
	cacheStore := cache.NewRedis(redisClient, logger)

	store, err := storage.Open(cfg.SQLite.Path, cfg.IsProduction())
	if err != nil {
		logger.Fatalw("could not open database", "path", cfg.SQLite.Path, "error", err)
	}
	defer func() { _ = store.Close() }()

	locations := geo.NewResolver(cfg, store, logger)
	weatherSvc := weather.New(cfg, cacheStore, logger)
	composer := respond.NewComposer(cfg, cacheStore, logger)
	queries := query.NewService(locations, weatherSvc, composer, store, logger)
	h := handler.NewWeatherHandler(queries, locations, store, logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimiter)
	limiter.StartCleanup()

	mux := http.NewServeMux()
	mux.Handle("/api/weather/query", limiter.Middleware(http.HandlerFunc(h.HandleQuery)))
	mux.Handle("/api/weather/detect-location", limiter.Middleware(http.HandlerFunc(h.HandleDetectLocation)))
	mux.Handle("/api/weather/conversation", limiter.Middleware(http.HandlerFunc(h.HandleConversation)))
	mux.HandleFunc("/health", h.HandleHealth)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infow("weather agent listening", "port", cfg.Server.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infow("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorw("graceful shutdown failed", "error", err)
	}
}
