package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/mood_store/pkg/config"
	"github.com/fjod/mood_store/pkg/httpx"
	"github.com/fjod/mood_store/pkg/logger"
	h "github.com/fjod/mood_store/product-service/internal/http"
	"github.com/fjod/mood_store/product-service/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Config struct {
	Env             string
	LogLevel        string
	HTTPPort        string
	DBPath          string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	config.LoadDotEnv()
	return &Config{
		Env:             config.GetEnv("APP_ENV", "dev"),
		LogLevel:        config.GetEnv("LOG_LEVEL", "info"),
		HTTPPort:        config.GetEnv("HTTP_PORT", "8081"),
		DBPath:          config.GetEnv("DB_PATH", "./products.db"),
		RequestTimeout:  config.GetEnvDuration("REQUEST_TIMEOUT", 5*time.Second),
		ShutdownTimeout: config.GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func main() {
	cfg := loadConfig()
	log := logger.New(logger.Options{Service: "product-service", Env: cfg.Env, Level: cfg.LogLevel})

	repo, err := repository.NewRepository(cfg.DBPath)
	if err != nil {
		log.Error("failed to open catalog", "err", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		log.Error("failed to run migrations", "err", err)
		os.Exit(1)
	}
	log.Info("migrations completed", "db_path", cfg.DBPath)

	productHandler := h.NewProductHandler(repo, cfg.RequestTimeout, log)
	engagementHandler := h.NewEngagementHandler(repo, cfg.RequestTimeout, log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.Identity)
	r.Get("/health", httpx.Health)
	r.Route("/api/v1/products", func(r chi.Router) {
		productHandler.Routes(r)
		engagementHandler.ProductRoutes(r)
	})
	r.Route("/api/v1/favorites", engagementHandler.FavoriteRoutes)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("product service listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down product service")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", "err", err)
	}
	log.Info("product service stopped")
}
