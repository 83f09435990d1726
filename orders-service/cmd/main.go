package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ordersHttp "github.com/fjod/mood_store/orders-service/internal/http"
	"github.com/fjod/mood_store/orders-service/internal/invoice"
	"github.com/fjod/mood_store/orders-service/internal/mailer"
	"github.com/fjod/mood_store/orders-service/internal/publisher"
	"github.com/fjod/mood_store/orders-service/internal/repository"
	"github.com/fjod/mood_store/orders-service/internal/service"
	"github.com/fjod/mood_store/pkg/config"
	"github.com/fjod/mood_store/pkg/httpx"
	"github.com/fjod/mood_store/pkg/logger"
	"github.com/fjod/mood_store/product-service/pkg/client"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Config struct {
	Env             string
	LogLevel        string
	HTTPPort        string
	ProductBaseURL  string
	DB              repository.Credentials
	KafkaBrokers    []string
	OrderTopic      string
	OutboxTick      time.Duration
	SMTP            mailer.Config
	EmailOnCheckout bool
	CompressPDF     bool
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	config.LoadDotEnv()
	return &Config{
		Env:            config.GetEnv("APP_ENV", "dev"),
		LogLevel:       config.GetEnv("LOG_LEVEL", "info"),
		HTTPPort:       config.GetEnv("HTTP_PORT", "8084"),
		ProductBaseURL: config.GetEnv("PRODUCT_SERVICE_URL", "http://localhost:8081"),
		DB: repository.Credentials{
			Host:     config.GetEnv("DB_HOST", "localhost"),
			Port:     config.GetEnvInt("DB_PORT", 5432),
			User:     config.GetEnv("DB_USER", "postgres"),
			Password: config.GetEnv("DB_PASSWORD", "postgres"),
			DBName:   config.GetEnv("DB_NAME", "moodstore"),
		},
		KafkaBrokers: config.GetEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
		OrderTopic:   config.GetEnv("ORDER_PLACED_TOPIC", publisher.DefaultTopic),
		OutboxTick:   config.GetEnvDuration("OUTBOX_TICK", time.Second),
		SMTP: mailer.Config{
			Host:     config.GetEnv("SMTP_HOST", "localhost"),
			Port:     config.GetEnvInt("SMTP_PORT", 1025),
			Username: config.GetEnv("SMTP_USERNAME", ""),
			Password: config.GetEnv("SMTP_PASSWORD", ""),
			SSL:      config.GetEnvBool("SMTP_SSL", false),
			From:     config.GetEnv("SMTP_FROM", "orders@moodstore.local"),
			FromName: config.GetEnv("SMTP_FROM_NAME", "Mood Store"),
		},
		EmailOnCheckout: config.GetEnvBool("EMAIL_ON_CHECKOUT", false),
		CompressPDF:     config.GetEnvBool("INVOICE_COMPRESS", true),
		RequestTimeout:  config.GetEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout: config.GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func main() {
	cfg := loadConfig()
	log := logger.New(logger.Options{Service: "orders-service", Env: cfg.Env, Level: cfg.LogLevel})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := repository.NewRepository(&cfg.DB)
	if err != nil {
		log.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		log.Error("failed to run migrations", "err", err)
		os.Exit(1)
	}
	log.Info("database migrations completed", "db", cfg.DB.DBName)

	outbox := publisher.NewOutboxPoller(repo, log, publisher.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.OrderTopic,
		Tick:    cfg.OutboxTick,
	})
	defer outbox.Close()
	go outbox.Run(ctx)

	renderer := invoice.NewRenderer()
	renderer.Compress = cfg.CompressPDF
	catalog := client.New(cfg.ProductBaseURL, cfg.RequestTimeout, log)
	ordersService := service.NewOrdersService(repo, repo, catalog, renderer, mailer.New(cfg.SMTP, log), log, service.Options{
		EmailOnCheckout: cfg.EmailOnCheckout,
	})
	ordersHandler := ordersHttp.NewOrdersHandler(ordersService, cfg.RequestTimeout, log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.Identity)
	r.Get("/health", httpx.Health)
	r.Route("/api/v1", ordersHandler.Routes)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("orders service listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down orders service")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "err", err)
	}
	cancel()
	log.Info("orders service stopped")
}
