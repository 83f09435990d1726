package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/mood_store/orders-service/internal/domain"
	"github.com/fjod/mood_store/orders-service/internal/mailer"
	"github.com/fjod/mood_store/orders-service/internal/service"
	"github.com/fjod/mood_store/pkg/circuitbreaker"
	"github.com/fjod/mood_store/pkg/httpx"
	"github.com/fjod/mood_store/pkg/money"
	"github.com/go-chi/chi/v5"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Orders interface {
	Checkout(ctx context.Context, userID, idempotencyKey string, req domain.CheckoutRequest) (*domain.Order, bool, error)
	ListOrders(ctx context.Context, userID string) ([]*domain.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error)
	GetProfile(ctx context.Context, userID string) (*domain.CustomerProfile, error)
	UpdateProfile(ctx context.Context, userID string, u service.ProfileUpdate) (*domain.CustomerProfile, error)
	Invoice(ctx context.Context, userID, orderID string) (*service.RenderedInvoice, error)
	EmailInvoice(ctx context.Context, userID, orderID string) error
}

type OrdersHandler struct {
	orders  Orders
	timeout time.Duration
	log     *slog.Logger
}

func NewOrdersHandler(orders Orders, timeout time.Duration, log *slog.Logger) *OrdersHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OrdersHandler{orders: orders, timeout: timeout, log: log}
}

type OrderItemDTO struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
	LineTotal   string `json:"line_total"`
}

type OrderResponseDTO struct {
	ID        string          `json:"id"`
	Total     string          `json:"total"`
	Status    string          `json:"status"`
	Shipping  domain.Shipping `json:"shipping"`
	Items     []OrderItemDTO  `json:"items"`
	CreatedAt string          `json:"created_at"`
}

type CheckoutResponse struct {
	OrderID string `json:"order_id"`
	Total   string `json:"total"`
	Status  string `json:"status"`
}

type InvoiceEmailRequestDTO struct {
	OrderID string `json:"orderId"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemDTO{
			ID:          it.ID.String(),
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       money.Plain(it.UnitPrice),
			LineTotal:   money.Plain(it.Total()),
		})
	}
	return OrderResponseDTO{
		ID:        o.ID.String(),
		Total:     money.Plain(o.Total),
		Status:    string(o.Status),
		Shipping:  o.Shipping,
		Items:     items,
		CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// respondServiceError maps the error taxonomy to status codes.
func (h *OrdersHandler) respondServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		httpx.RespondJSON(w, http.StatusBadRequest, httpx.ErrorResponse{
			Error:   "Please fill in all required fields",
			Code:    "validation_failed",
			Details: strings.Join(ve.Fields, ", "),
		})
	case errors.Is(err, service.ErrUnauthenticated):
		httpx.Unauthorized(w)
	case errors.Is(err, service.ErrOrderNotFound):
		httpx.NotFound(w, "order_not_found", "Order not found")
	case errors.Is(err, service.ErrProfileNotFound):
		httpx.NotFound(w, "profile_not_found", "Profile not found")
	case errors.Is(err, mailer.ErrNoRecipient):
		httpx.BadRequest(w, "no_recipient", "no email address on file")
	case circuitbreaker.IsOpen(err):
		httpx.ServiceUnavailable(w, "catalog temporarily unavailable")
	default:
		httpx.Internal(w, r, h.log, msg, err)
	}
}

// POST /api/v1/orders
func (h *OrdersHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req domain.CheckoutRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.BadRequest(w, "invalid_request", "invalid JSON body")
		return
	}

	order, created, err := h.orders.Checkout(ctx, httpx.UserIDFrom(r.Context()), r.Header.Get(HeaderIdempotencyKey), req)
	if err != nil {
		h.respondServiceError(w, r, "checkout failed", err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	httpx.RespondJSON(w, status, CheckoutResponse{
		OrderID: order.ID.String(),
		Total:   money.Plain(order.Total),
		Status:  string(order.Status),
	})
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx, httpx.UserIDFrom(r.Context()))
	if err != nil {
		h.respondServiceError(w, r, "list orders failed", err)
		return
	}

	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, convertOrder(o))
	}
	httpx.RespondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		httpx.BadRequest(w, "missing_order_id", "order_id is required")
		return
	}

	order, err := h.orders.GetOrder(ctx, httpx.UserIDFrom(r.Context()), orderID)
	if err != nil {
		h.respondServiceError(w, r, "get order failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, convertOrder(order))
}

// GET /api/v1/profile
func (h *OrdersHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.orders.GetProfile(ctx, httpx.UserIDFrom(r.Context()))
	if err != nil {
		h.respondServiceError(w, r, "get profile failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, p)
}

// PUT /api/v1/profile
func (h *OrdersHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req service.ProfileUpdate
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.BadRequest(w, "invalid_request", "invalid JSON body")
		return
	}

	p, err := h.orders.UpdateProfile(ctx, httpx.UserIDFrom(r.Context()), req)
	if err != nil {
		h.respondServiceError(w, r, "update profile failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, p)
}

// GET /api/v1/invoices/download?orderId=
func (h *OrdersHandler) DownloadInvoice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		httpx.BadRequest(w, "missing_order_id", "Order ID is required")
		return
	}

	inv, err := h.orders.Invoice(ctx, httpx.UserIDFrom(r.Context()), orderID)
	if err != nil {
		h.respondServiceError(w, r, "generate invoice failed", err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+inv.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(inv.PDF)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(inv.PDF); err != nil {
		h.log.WarnContext(ctx, "invoice download interrupted", "order_id", orderID, "err", err)
	}
}

// POST /api/v1/invoices/email
func (h *OrdersHandler) EmailInvoice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req InvoiceEmailRequestDTO
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.BadRequest(w, "invalid_request", "invalid JSON body")
		return
	}
	if req.OrderID == "" {
		httpx.BadRequest(w, "missing_order_id", "Order ID is required")
		return
	}

	if err := h.orders.EmailInvoice(ctx, httpx.UserIDFrom(r.Context()), req.OrderID); err != nil {
		h.respondServiceError(w, r, "email invoice failed", err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// Routes mounts under /api/v1. The invoice endpoints validate the order id
// before authentication, so they answer 400 before 401.
func (h *OrdersHandler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireUser)
		r.Get("/orders", h.ListOrders)
		r.Post("/orders", h.Checkout)
		r.Get("/orders/{order_id}", h.GetOrder)
		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.UpdateProfile)
	})
	r.Get("/invoices/download", h.DownloadInvoice)
	r.Post("/invoices/email", h.EmailInvoice)
}
