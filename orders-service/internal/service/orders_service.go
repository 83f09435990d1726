package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fjod/mood_store/orders-service/internal/domain"
	"github.com/fjod/mood_store/orders-service/internal/invoice"
	"github.com/fjod/mood_store/orders-service/internal/mailer"
	"github.com/fjod/mood_store/orders-service/internal/repository"
	"github.com/fjod/mood_store/pkg/money"
	"github.com/fjod/mood_store/product-service/pkg/client"
	"github.com/google/uuid"
)

type Catalog interface {
	GetProduct(ctx context.Context, id string) (*client.ProductView, error)
}

type Renderer interface {
	Render(doc *invoice.Document) ([]byte, error)
}

type Mailer interface {
	SendInvoice(ctx context.Context, inv mailer.Invoice) error
}

// OrderPlaced is the outbox payload consumed by cart-service.
type OrderPlaced struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Total     string    `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

type Options struct {
	// EmailOnCheckout mails the invoice right after an order is stored.
	EmailOnCheckout bool
}

type OrdersService struct {
	orders   repository.OrderRepository
	profiles repository.ProfileRepository
	catalog  Catalog
	renderer Renderer
	mailer   Mailer
	log      *slog.Logger
	opts     Options
	now      func() time.Time
}

func NewOrdersService(
	orders repository.OrderRepository,
	profiles repository.ProfileRepository,
	catalog Catalog,
	renderer Renderer,
	m Mailer,
	log *slog.Logger,
	opts Options,
) *OrdersService {
	if log == nil {
		log = slog.Default()
	}
	return &OrdersService{
		orders:   orders,
		profiles: profiles,
		catalog:  catalog,
		renderer: renderer,
		mailer:   m,
		log:      log,
		opts:     opts,
		now:      time.Now,
	}
}

// Checkout stores a pending order with its lines and the order-placed event.
// A repeated idempotency key returns the order created the first time; the
// bool reports whether a new order was created.
func (s *OrdersService) Checkout(ctx context.Context, userID, idempotencyKey string, req domain.CheckoutRequest) (*domain.Order, bool, error) {
	if userID == "" {
		return nil, false, ErrUnauthenticated
	}
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	if idempotencyKey != "" {
		existing, err := s.orders.GetOrderByIdempotencyKey(ctx, userID, idempotencyKey)
		if err == nil {
			s.log.InfoContext(ctx, "duplicate checkout request", "idempotency_key", idempotencyKey, "order_id", existing.ID)
			return existing, false, nil
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return nil, false, fmt.Errorf("failed to check idempotency: %w", err)
		}
	}

	priced, err := s.priceLines(ctx, req.Items)
	if err != nil {
		return nil, false, err
	}
	req.Items = priced

	order := domain.NewOrder(userID, req, s.now().UTC())
	event, err := json.Marshal(OrderPlaced{
		OrderID:   order.ID.String(),
		UserID:    userID,
		Total:     money.Plain(order.Total),
		CreatedAt: order.CreatedAt,
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshal order placed event: %w", err)
	}

	if err := s.orders.CreateOrder(ctx, order, idempotencyKey, event); err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) {
			// lost a race with the same key
			existing, getErr := s.orders.GetOrderByIdempotencyKey(ctx, userID, idempotencyKey)
			if getErr != nil {
				return nil, false, fmt.Errorf("load order for duplicate key: %w", getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create order: %w", err)
	}
	s.log.InfoContext(ctx, "order created", "order_id", order.ID, "user_id", userID, "total", money.Plain(order.Total))

	if s.opts.EmailOnCheckout {
		if err := s.EmailInvoice(ctx, userID, order.ID.String()); err != nil {
			s.log.WarnContext(ctx, "invoice email after checkout failed", "order_id", order.ID, "err", err)
		}
	}
	return order, true, nil
}

// priceLines looks every line up in the catalog and takes the product name
// and current price from there.
func (s *OrdersService) priceLines(ctx context.Context, items []domain.CheckoutLine) ([]domain.CheckoutLine, error) {
	out := make([]domain.CheckoutLine, len(items))
	var unknown []string
	for i, it := range items {
		p, err := s.catalog.GetProduct(ctx, it.ProductID)
		if errors.Is(err, client.ErrProductNotFound) {
			unknown = append(unknown, fmt.Sprintf("items[%d].product_id", i))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("price product %s: %w", it.ProductID, err)
		}
		it.ProductName = p.Name
		it.UnitPrice = p.Price
		out[i] = it
	}
	if len(unknown) > 0 {
		return nil, &domain.ValidationError{Fields: unknown}
	}
	return out, nil
}

func (s *OrdersService) ListOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return s.orders.ListOrdersByUserID(ctx, userID)
}

// GetOrder returns ErrOrderNotFound for malformed ids and for orders owned
// by another user.
func (s *OrdersService) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	id, err := uuid.Parse(orderID)
	if err != nil {
		return nil, ErrOrderNotFound
	}
	return s.orders.GetOrderForUser(ctx, id, userID)
}

func (s *OrdersService) GetProfile(ctx context.Context, userID string) (*domain.CustomerProfile, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return s.profiles.GetProfile(ctx, userID)
}

type ProfileUpdate struct {
	FullName  *string `json:"full_name"`
	Email     *string `json:"email"`
	AvatarURL *string `json:"avatar_url"`
}

// UpdateProfile applies the non-nil fields, creating the profile if needed.
func (s *OrdersService) UpdateProfile(ctx context.Context, userID string, u ProfileUpdate) (*domain.CustomerProfile, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	p, err := s.profiles.GetProfile(ctx, userID)
	if errors.Is(err, repository.ErrProfileNotFound) {
		p = &domain.CustomerProfile{UserID: userID}
	} else if err != nil {
		return nil, err
	}

	if u.FullName != nil {
		p.FullName = strings.TrimSpace(*u.FullName)
	}
	if u.Email != nil {
		email := strings.TrimSpace(*u.Email)
		if email != "" && !strings.Contains(email, "@") {
			return nil, &domain.ValidationError{Fields: []string{"email"}}
		}
		p.Email = email
	}
	if u.AvatarURL != nil {
		p.AvatarURL = strings.TrimSpace(*u.AvatarURL)
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.profiles.UpsertProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

type RenderedInvoice struct {
	Order    *domain.Order
	Profile  domain.CustomerProfile
	Filename string
	PDF      []byte
}

// Invoice fetches everything the invoice needs and only then renders it, so
// a failed lookup never yields a partial document.
func (s *OrdersService) Invoice(ctx context.Context, userID, orderID string) (*RenderedInvoice, error) {
	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	profile, err := s.invoiceProfile(ctx, order)
	if err != nil {
		return nil, err
	}

	doc, err := invoice.Build(invoice.Input{Order: order, Lines: order.Items, Profile: profile})
	if err != nil {
		return nil, fmt.Errorf("layout invoice %s: %w", order.ID, err)
	}
	if sum := order.LinesTotal(); !sum.Equal(order.Total) {
		s.log.DebugContext(ctx, "invoice lines differ from order total",
			"order_id", order.ID, "lines_total", money.Plain(sum), "order_total", money.Plain(order.Total))
	}

	pdf, err := s.renderer.Render(doc)
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", order.ID, err)
	}
	return &RenderedInvoice{
		Order:    order,
		Profile:  profile,
		Filename: fmt.Sprintf("invoice-%s.pdf", order.ShortID()),
		PDF:      pdf,
	}, nil
}

// invoiceProfile falls back to the checkout contact email when the user has
// no stored profile or no email on it. The name is never taken from shipping.
func (s *OrdersService) invoiceProfile(ctx context.Context, order *domain.Order) (domain.CustomerProfile, error) {
	p, err := s.profiles.GetProfile(ctx, order.UserID)
	if errors.Is(err, repository.ErrProfileNotFound) {
		return domain.CustomerProfile{UserID: order.UserID, Email: order.Shipping.Email}, nil
	}
	if err != nil {
		return domain.CustomerProfile{}, fmt.Errorf("load profile: %w", err)
	}
	out := *p
	if out.Email == "" {
		out.Email = order.Shipping.Email
	}
	return out, nil
}

func (s *OrdersService) EmailInvoice(ctx context.Context, userID, orderID string) error {
	inv, err := s.Invoice(ctx, userID, orderID)
	if err != nil {
		return err
	}
	return s.mailer.SendInvoice(ctx, mailer.Invoice{
		To:       inv.Profile.Email,
		OrderID:  inv.Order.ID.String(),
		Total:    money.Format(inv.Order.Total),
		PDF:      inv.PDF,
		Filename: inv.Filename,
	})
}
