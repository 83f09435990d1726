package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/mood_store/pkg/httpx"
	"github.com/fjod/mood_store/product-service/internal/domain"
	"github.com/fjod/mood_store/product-service/internal/repository"
	"github.com/go-chi/chi/v5"
)

// EngagementHandler serves favorites, reviews and reactions. Reads are open to
// anonymous shoppers; writes need the gateway identity.
type EngagementHandler struct {
	store   repository.EngagementStore
	timeout time.Duration
	log     *slog.Logger
}

func NewEngagementHandler(store repository.EngagementStore, timeout time.Duration, log *slog.Logger) *EngagementHandler {
	return &EngagementHandler{
		store:   store,
		timeout: timeout,
		log:     log,
	}
}

type FavoritesResponse struct {
	Products []*domain.Product `json:"products"`
}

type ReviewsResponse struct {
	Reviews []domain.Review `json:"reviews"`
}

type ReactionsResponse struct {
	ProductID string            `json:"product_id"`
	Reactions []domain.Reaction `json:"reactions"`
}

type CreateReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type ReactRequest struct {
	Emoji string `json:"emoji"`
}

// GET /api/v1/favorites
func (h *EngagementHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.store.ListFavorites(ctx, httpx.UserIDFrom(ctx))
	if err != nil {
		httpx.Internal(w, r, h.log, "list favorites failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, FavoritesResponse{Products: products})
}

// PUT /api/v1/favorites/{product_id}
func (h *EngagementHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	err := h.store.AddFavorite(ctx, httpx.UserIDFrom(ctx), chi.URLParam(r, "product_id"))
	if err != nil {
		h.respondError(w, r, "add favorite failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/favorites/{product_id}
func (h *EngagementHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.store.RemoveFavorite(ctx, httpx.UserIDFrom(ctx), chi.URLParam(r, "product_id")); err != nil {
		httpx.Internal(w, r, h.log, "remove favorite failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/products/{product_id}/reviews
func (h *EngagementHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	reviews, err := h.store.ListReviews(ctx, chi.URLParam(r, "product_id"), httpx.UserIDFrom(ctx))
	if err != nil {
		httpx.Internal(w, r, h.log, "list reviews failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, ReviewsResponse{Reviews: reviews})
}

// POST /api/v1/products/{product_id}/reviews
func (h *EngagementHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateReviewRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.BadRequest(w, "invalid_request", "invalid JSON body")
		return
	}
	review, err := domain.NewReview(httpx.UserIDFrom(ctx), chi.URLParam(r, "product_id"), req.Rating, req.Comment)
	if err != nil {
		httpx.BadRequest(w, "invalid_review", err.Error())
		return
	}

	created, err := h.store.CreateReview(ctx, review)
	if err != nil {
		h.respondError(w, r, "create review failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, created)
}

// POST /api/v1/products/{product_id}/reviews/{review_id}/helpful
func (h *EngagementHandler) ToggleHelpful(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	vote, err := h.store.ToggleHelpful(ctx, httpx.UserIDFrom(ctx), chi.URLParam(r, "review_id"))
	if err != nil {
		h.respondError(w, r, "helpful vote failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, vote)
}

// GET /api/v1/products/{product_id}/reactions
func (h *EngagementHandler) Reactions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "product_id")
	reactions, err := h.store.Reactions(ctx, id, httpx.UserIDFrom(ctx))
	if err != nil {
		h.respondError(w, r, "list reactions failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, ReactionsResponse{ProductID: id, Reactions: reactions})
}

// POST /api/v1/products/{product_id}/reactions
func (h *EngagementHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ReactRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.BadRequest(w, "invalid_request", "invalid JSON body")
		return
	}
	if !domain.IsReactionEmoji(req.Emoji) {
		httpx.BadRequest(w, "invalid_emoji", domain.ErrUnknownEmoji.Error())
		return
	}

	id := chi.URLParam(r, "product_id")
	reactions, err := h.store.ToggleReaction(ctx, httpx.UserIDFrom(ctx), id, req.Emoji)
	if err != nil {
		h.respondError(w, r, "toggle reaction failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, ReactionsResponse{ProductID: id, Reactions: reactions})
}

func (h *EngagementHandler) respondError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		httpx.NotFound(w, "not_found", "product not found")
	case errors.Is(err, repository.ErrReviewNotFound):
		httpx.NotFound(w, "not_found", "review not found")
	case errors.Is(err, repository.ErrAlreadyReviewed):
		httpx.RespondError(w, http.StatusConflict, "already_reviewed", "you have already reviewed this product")
	case errors.Is(err, domain.ErrUnknownEmoji):
		httpx.BadRequest(w, "invalid_emoji", err.Error())
	default:
		httpx.Internal(w, r, h.log, msg, err)
	}
}

// ProductRoutes mounts under /api/v1/products next to ProductHandler.Routes.
func (h *EngagementHandler) ProductRoutes(r chi.Router) {
	r.Get("/{product_id}/reviews", h.ListReviews)
	r.Get("/{product_id}/reactions", h.Reactions)

	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireUser)
		r.Post("/{product_id}/reviews", h.CreateReview)
		r.Post("/{product_id}/reviews/{review_id}/helpful", h.ToggleHelpful)
		r.Post("/{product_id}/reactions", h.ToggleReaction)
	})
}

func (h *EngagementHandler) FavoriteRoutes(r chi.Router) {
	r.Use(httpx.RequireUser)
	r.Get("/", h.ListFavorites)
	r.Put("/{product_id}", h.AddFavorite)
	r.Delete("/{product_id}", h.RemoveFavorite)
}
