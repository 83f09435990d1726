package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/fjod/mood_store/api-gateway/internal/http"
	"github.com/fjod/mood_store/pkg/circuitbreaker"
	"github.com/fjod/mood_store/pkg/config"
	"github.com/fjod/mood_store/pkg/logger"
)

type Config struct {
	Env             string
	LogLevel        string
	HTTPPort        string
	Upstreams       h.Upstreams
	AuthTokens      []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	config.LoadDotEnv()
	return &Config{
		Env:      config.GetEnv("APP_ENV", "dev"),
		LogLevel: config.GetEnv("LOG_LEVEL", "info"),
		HTTPPort: config.GetEnv("HTTP_PORT", "8080"),
		Upstreams: h.Upstreams{
			Products: config.GetEnv("PRODUCT_SERVICE_URL", "http://localhost:8081"),
			Cart:     config.GetEnv("CART_SERVICE_URL", "http://localhost:8082"),
			Mood:     config.GetEnv("MOOD_SERVICE_URL", "http://localhost:8083"),
			Orders:   config.GetEnv("ORDERS_SERVICE_URL", "http://localhost:8084"),
		},
		AuthTokens:      config.GetEnvList("AUTH_TOKENS", []string{"dev-token:1"}),
		RequestTimeout:  config.GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: config.GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func main() {
	cfg := loadConfig()
	log := logger.New(logger.Options{Service: "api-gateway", Env: cfg.Env, Level: cfg.LogLevel})

	router, err := h.NewRouter(h.RouterConfig{
		Upstreams:      cfg.Upstreams,
		Sessions:       h.ParseSessions(cfg.AuthTokens),
		RequestTimeout: cfg.RequestTimeout,
		Breaker:        circuitbreaker.DefaultConfig("gateway"),
	}, log)
	if err != nil {
		log.Error("invalid upstream configuration", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api gateway listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down api gateway")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", "err", err)
	}
	log.Info("api gateway stopped")
}
