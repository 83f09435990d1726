package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/mood_store/mood-service/internal/detector"
	moodHttp "github.com/fjod/mood_store/mood-service/internal/http"
	"github.com/fjod/mood_store/mood-service/internal/preferences"
	"github.com/fjod/mood_store/pkg/config"
	"github.com/fjod/mood_store/pkg/httpx"
	"github.com/fjod/mood_store/pkg/logger"
	"github.com/fjod/mood_store/product-service/pkg/client"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Env             string
	LogLevel        string
	HTTPPort        string
	ProductBaseURL  string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	config.LoadDotEnv()
	return &Config{
		Env:             config.GetEnv("APP_ENV", "dev"),
		LogLevel:        config.GetEnv("LOG_LEVEL", "info"),
		HTTPPort:        config.GetEnv("HTTP_PORT", "8083"),
		ProductBaseURL:  config.GetEnv("PRODUCT_SERVICE_URL", "http://localhost:8081"),
		RedisAddr:       config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:         config.GetEnvInt("REDIS_DB", 1),
		RequestTimeout:  config.GetEnvDuration("REQUEST_TIMEOUT", 5*time.Second),
		ShutdownTimeout: config.GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func main() {
	cfg := loadConfig()
	log := logger.New(logger.Options{Service: "mood-service", Env: cfg.Env, Level: cfg.LogLevel})

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Error("redis connection failed", "err", err)
		os.Exit(1)
	}
	log.Info("redis ping succeeded", "addr", cfg.RedisAddr)

	catalog := client.New(cfg.ProductBaseURL, cfg.RequestTimeout, log)
	moodHandler := moodHttp.NewMoodHandler(
		preferences.NewRedisStore(redisClient),
		catalog,
		detector.HashDetector{},
		cfg.RequestTimeout,
		log,
	)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.Identity)
	r.Get("/health", httpx.Health)
	r.Route("/api/v1/mood", moodHandler.Routes)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("mood service listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down mood service")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", "err", err)
	}
	log.Info("mood service stopped")
}
