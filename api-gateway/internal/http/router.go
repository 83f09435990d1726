package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/mood_store/pkg/circuitbreaker"
	"github.com/fjod/mood_store/pkg/httpx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Upstreams struct {
	Products string
	Mood     string
	Cart     string
	Orders   string
}

type RouterConfig struct {
	Upstreams      Upstreams
	Sessions       Sessions
	RequestTimeout time.Duration
	// Breaker is applied per upstream; its Name is replaced by the service name.
	Breaker circuitbreaker.Config
}

func NewRouter(cfg RouterConfig, log *slog.Logger) (http.Handler, error) {
	proxy := func(name, url string) (http.Handler, error) {
		b := cfg.Breaker
		b.Name = name
		return NewServiceProxy(name, url, b, log)
	}
	products, err := proxy("product-service", cfg.Upstreams.Products)
	if err != nil {
		return nil, err
	}
	mood, err := proxy("mood-service", cfg.Upstreams.Mood)
	if err != nil {
		return nil, err
	}
	cart, err := proxy("cart-service", cfg.Upstreams.Cart)
	if err != nil {
		return nil, err
	}
	orders, err := proxy("orders-service", cfg.Upstreams.Orders)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.Compress(5))
	r.Use(AuthMiddleware(cfg.Sessions))

	r.Get("/health", httpx.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// public
		r.Handle("/products", products)
		r.Handle("/products/*", products)
		r.Handle("/mood/*", mood)
		// the invoice endpoints order their own 400/401 answers
		r.Handle("/invoices/*", orders)

		r.Group(func(r chi.Router) {
			r.Use(httpx.RequireUser)
			r.Handle("/cart", cart)
			r.Handle("/cart/*", cart)
			r.Handle("/orders", orders)
			r.Handle("/orders/*", orders)
			r.Handle("/profile", orders)
			r.Handle("/favorites", products)
			r.Handle("/favorites/*", products)
		})
	})
	return r, nil
}
