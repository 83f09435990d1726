package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cartHttp "github.com/fjod/mood_store/cart-service/internal/http"
	"github.com/fjod/mood_store/cart-service/internal/manager"
	"github.com/fjod/mood_store/cart-service/internal/mirror"
	"github.com/fjod/mood_store/cart-service/internal/poller"
	"github.com/fjod/mood_store/cart-service/internal/repository"
	"github.com/fjod/mood_store/pkg/circuitbreaker"
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
	MongoURI        string
	MongoDBName     string
	RedisAddr       string
	RedisPassword   string
	MirrorTTL       time.Duration
	KafkaBrokers    []string
	OrderTopic      string
	WatchChanges    bool
	SyncTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	config.LoadDotEnv()
	return &Config{
		Env:             config.GetEnv("APP_ENV", "dev"),
		LogLevel:        config.GetEnv("LOG_LEVEL", "info"),
		HTTPPort:        config.GetEnv("HTTP_PORT", "8082"),
		ProductBaseURL:  config.GetEnv("PRODUCT_SERVICE_URL", "http://localhost:8081"),
		MongoURI:        config.GetEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:     config.GetEnv("MONGO_DB_NAME", "cartdb"),
		RedisAddr:       config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   config.GetEnv("REDIS_PASSWORD", ""),
		MirrorTTL:       config.GetEnvDuration("CART_MIRROR_TTL", 30*24*time.Hour),
		KafkaBrokers:    config.GetEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
		OrderTopic:      config.GetEnv("ORDER_PLACED_TOPIC", poller.DefaultTopic),
		WatchChanges:    config.GetEnvBool("CART_WATCH_CHANGES", false),
		SyncTimeout:     config.GetEnvDuration("CART_SYNC_TIMEOUT", 5*time.Second),
		RequestTimeout:  config.GetEnvDuration("REQUEST_TIMEOUT", 5*time.Second),
		ShutdownTimeout: config.GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func main() {
	cfg := loadConfig()
	log := logger.New(logger.Options{Service: "cart-service", Env: cfg.Env, Level: cfg.LogLevel})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoStore, err := repository.OpenMongoStore(ctx, repository.MongoConfig{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDBName,
	}, log)
	if err != nil {
		log.Error("failed to open cart store", "err", err)
		os.Exit(1)
	}
	defer mongoStore.Close(context.Background())
	log.Info("connected to MongoDB", "db", cfg.MongoDBName)

	if cfg.WatchChanges {
		if err := mongoStore.EnablePreImages(ctx); err != nil {
			log.Warn("change stream pre-images unavailable, remote deletes will not be attributed", "err", err)
		}
	}
	store := repository.WithBreaker(mongoStore, circuitbreaker.DefaultConfig("cart-store"), log)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("redis connection failed", "err", err)
		os.Exit(1)
	}
	log.Info("redis ping succeeded", "addr", cfg.RedisAddr)

	syncErrors := manager.NewSyncErrorLog(50)
	registry := manager.NewRegistry(store, mirror.NewRedisMirror(redisClient, cfg.MirrorTTL), syncErrors, log, manager.Options{
		SyncTimeout: cfg.SyncTimeout,
		Follow:      cfg.WatchChanges,
	})
	defer registry.Close()

	orderPoller := poller.NewPoller(registry, log, poller.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.OrderTopic})
	defer orderPoller.Close()
	go orderPoller.Run(ctx)

	catalog := client.New(cfg.ProductBaseURL, cfg.RequestTimeout, log)
	cartHandler := cartHttp.NewCartHandler(registry, catalog, syncErrors, cfg.RequestTimeout, log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.Identity)
	r.Get("/health", httpx.Health)
	r.Route("/api/v1/cart", cartHandler.Routes)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("cart service listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down cart service")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "err", err)
	}
	cancel()
	log.Info("cart service stopped")
}
