package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/mood_store/cart-service/internal/domain"
	"github.com/fjod/mood_store/cart-service/internal/manager"
	"github.com/fjod/mood_store/pkg/circuitbreaker"
	"github.com/fjod/mood_store/pkg/httpx"
	"github.com/fjod/mood_store/pkg/money"
	"github.com/fjod/mood_store/product-service/pkg/client"
	"github.com/go-chi/chi/v5"
)

const maxQuantity = 99

type Sessions interface {
	Session(ctx context.Context, userID string) *manager.Manager
	// Clear empties the live session, the remote rows and the mirror.
	Clear(ctx context.Context, userID string) error
}

type Catalog interface {
	GetProduct(ctx context.Context, id string) (*client.ProductView, error)
}

type SyncErrors interface {
	Drain(userID string) []manager.SyncError
}

type CartHandler struct {
	sessions Sessions
	catalog  Catalog
	errs     SyncErrors
	timeout  time.Duration
	log      *slog.Logger
}

func NewCartHandler(sessions Sessions, catalog Catalog, errs SyncErrors, timeout time.Duration, log *slog.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		catalog:  catalog,
		errs:     errs,
		timeout:  timeout,
		log:      log,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type LineResponse struct {
	ID        string             `json:"id"`
	ProductID string             `json:"product_id"`
	Quantity  int                `json:"quantity"`
	UnitPrice string             `json:"unit_price"`
	LineTotal string             `json:"line_total"`
	Product   client.ProductView `json:"product"`
}

type CartResponse struct {
	UserID          string         `json:"user_id"`
	Lines           []LineResponse `json:"lines"`
	ItemCount       int            `json:"item_count"`
	Subtotal        string         `json:"subtotal"`
	SubtotalDisplay string         `json:"subtotal_display"`
}

type SyncErrorsResponse struct {
	Errors []manager.SyncError `json:"errors"`
}

func convertCart(m *manager.Manager) CartResponse {
	lines := m.Lines()
	resp := CartResponse{
		UserID: m.UserID(),
		Lines:  make([]LineResponse, len(lines)),
	}
	for i, l := range lines {
		resp.Lines[i] = LineResponse{
			ID:        l.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: money.Plain(l.UnitPrice),
			LineTotal: money.Plain(l.Total()),
			Product:   l.Product,
		}
		resp.ItemCount += l.Quantity
	}
	subtotal := m.Subtotal()
	resp.Subtotal = money.Plain(subtotal)
	resp.SubtotalDisplay = money.Format(subtotal)
	return resp
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m := h.sessions.Session(ctx, httpx.UserIDFrom(r.Context()))
	httpx.RespondJSON(w, http.StatusOK, convertCart(m))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.BadRequest(w, "invalid_request", "invalid JSON body")
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		httpx.BadRequest(w, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity < 1 || req.Quantity > maxQuantity {
		httpx.BadRequest(w, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	p, err := h.catalog.GetProduct(ctx, req.ProductID)
	switch {
	case errors.Is(err, client.ErrProductNotFound):
		httpx.NotFound(w, "product_not_found", "product not found")
		return
	case circuitbreaker.IsOpen(err):
		httpx.ServiceUnavailable(w, "catalog temporarily unavailable")
		return
	case err != nil:
		httpx.Internal(w, r, h.log, "product lookup failed", err)
		return
	}
	if p.Inventory < 1 {
		httpx.RespondError(w, http.StatusConflict, "out_of_stock", "product is out of stock")
		return
	}

	m := h.sessions.Session(ctx, httpx.UserIDFrom(r.Context()))
	if err := m.AddToCart(domain.NewLine(*p, req.Quantity)); err != nil {
		httpx.BadRequest(w, "invalid_line", err.Error())
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, convertCart(m))
}

// PUT /api/v1/cart/items/{line_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	lineID := chi.URLParam(r, "line_id")
	var req UpdateQuantityRequestDTO
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.BadRequest(w, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity < 1 || req.Quantity > maxQuantity {
		httpx.BadRequest(w, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	m := h.sessions.Session(ctx, httpx.UserIDFrom(r.Context()))
	if err := m.UpdateQuantity(lineID, req.Quantity); errors.Is(err, domain.ErrLineNotFound) {
		httpx.NotFound(w, "line_not_found", "cart line not found")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, convertCart(m))
}

// DELETE /api/v1/cart/items/{line_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m := h.sessions.Session(ctx, httpx.UserIDFrom(r.Context()))
	m.RemoveFromCart(chi.URLParam(r, "line_id"))
	httpx.RespondJSON(w, http.StatusOK, convertCart(m))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := httpx.UserIDFrom(r.Context())
	if err := h.sessions.Clear(ctx, userID); err != nil {
		if circuitbreaker.IsOpen(err) || errors.Is(err, context.DeadlineExceeded) {
			httpx.ServiceUnavailable(w, "cart store temporarily unavailable")
			return
		}
		httpx.Internal(w, r, h.log, "clear cart failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, convertCart(h.sessions.Session(ctx, userID)))
}

// POST /api/v1/cart/reconcile
func (h *CartHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m := h.sessions.Session(ctx, httpx.UserIDFrom(r.Context()))
	err := m.Reconcile(ctx)
	switch {
	case err == nil:
		httpx.RespondJSON(w, http.StatusOK, convertCart(m))
	case errors.Is(err, manager.ErrCartChanged):
		httpx.RespondError(w, http.StatusConflict, "cart_changed", err.Error())
	case circuitbreaker.IsOpen(err), errors.Is(err, context.DeadlineExceeded):
		httpx.ServiceUnavailable(w, "cart store temporarily unavailable")
	default:
		httpx.Internal(w, r, h.log, "cart reconcile failed", err)
	}
}

// GET /api/v1/cart/sync-errors
func (h *CartHandler) SyncErrors(w http.ResponseWriter, r *http.Request) {
	errs := h.errs.Drain(httpx.UserIDFrom(r.Context()))
	httpx.RespondJSON(w, http.StatusOK, SyncErrorsResponse{Errors: errs})
}

func (h *CartHandler) Routes(r chi.Router) {
	r.Use(httpx.RequireUser)
	r.Get("/", h.GetCart)
	r.Delete("/", h.ClearCart)
	r.Post("/items", h.AddItem)
	r.Put("/items/{line_id}", h.UpdateQuantity)
	r.Delete("/items/{line_id}", h.RemoveItem)
	r.Post("/reconcile", h.Reconcile)
	r.Get("/sync-errors", h.SyncErrors)
}
