package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/mood_store/pkg/httpx"
	"github.com/fjod/mood_store/pkg/mood"
	"github.com/fjod/mood_store/product-service/internal/domain"
	"github.com/fjod/mood_store/product-service/internal/repository"
	"github.com/go-chi/chi/v5"
)

type ProductHandler struct {
	repo    repository.RepoInterface
	timeout time.Duration
	log     *slog.Logger
}

func NewProductHandler(repo repository.RepoInterface, timeout time.Duration, log *slog.Logger) *ProductHandler {
	return &ProductHandler{
		repo:    repo,
		timeout: timeout,
		log:     log,
	}
}

type ProductsResponse struct {
	Mood     mood.Tag          `json:"mood,omitempty"`
	Products []*domain.Product `json:"products"`
}

// GET /api/v1/products?mood=&category=
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	filter := domain.Filter{
		Mood:     mood.Parse(r.URL.Query().Get("mood")),
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
	}

	products, err := h.repo.ListProducts(ctx, filter)
	if err != nil {
		httpx.Internal(w, r, h.log, "list products failed", err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, ProductsResponse{Mood: filter.Mood, Products: products})
}

// GET /api/v1/products/{product_id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "product_id")
	if id == "" {
		httpx.BadRequest(w, "missing_product_id", "product_id is required")
		return
	}

	p, err := h.repo.GetProduct(ctx, id)
	if errors.Is(err, repository.ErrProductNotFound) {
		httpx.NotFound(w, "not_found", "product not found")
		return
	}
	if err != nil {
		httpx.Internal(w, r, h.log, "get product failed", err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, p)
}

// GET /api/v1/products/{product_id}/related
func (h *ProductHandler) Related(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "product_id")
	products, err := h.repo.RelatedProducts(ctx, id, domain.RelatedLimit)
	if errors.Is(err, repository.ErrProductNotFound) {
		httpx.NotFound(w, "not_found", "product not found")
		return
	}
	if err != nil {
		httpx.Internal(w, r, h.log, "related products failed", err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, ProductsResponse{Products: products})
}

func (h *ProductHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{product_id}", h.Get)
	r.Get("/{product_id}/related", h.Related)
}
