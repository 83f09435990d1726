package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/mood_store/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

// Orders are created pending; later transitions belong to fulfillment.
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
)

var expressFee = money.MustParse("9.99")

// Cost is the shipping fee added to the order total.
func (m ShippingMethod) Cost() decimal.Decimal {
	if m == ShippingExpress {
		return expressFee
	}
	return decimal.Zero
}

func (m ShippingMethod) Valid() bool {
	return m == ShippingStandard || m == ShippingExpress
}

// OrderLine is a purchased product. Name and price are snapshots taken at
// checkout and never re-read from the catalog.
type OrderLine struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (l OrderLine) Total() decimal.Decimal {
	return money.LineTotal(l.UnitPrice, l.Quantity)
}

type Shipping struct {
	Name    string         `json:"name"`
	Email   string         `json:"email"`
	Address string         `json:"address"`
	City    string         `json:"city"`
	State   string         `json:"state"`
	Zip     string         `json:"zip"`
	Method  ShippingMethod `json:"method"`
}

type Order struct {
	ID        uuid.UUID
	UserID    string
	Total     decimal.Decimal
	Status    OrderStatus
	Shipping  Shipping
	Items     []OrderLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShortID is the first 8 characters of the order id, used in file names.
func (o *Order) ShortID() string {
	s := o.ID.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// LinesTotal sums the line totals. It may differ from Total, which also
// carries shipping and is authoritative.
func (o *Order) LinesTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range o.Items {
		sum = sum.Add(l.Total())
	}
	return sum
}

// CustomerProfile is the account data shown on invoices.
type CustomerProfile struct {
	UserID    string    `json:"user_id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidationError lists every invalid or missing field of a request.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid fields: %s", strings.Join(e.Fields, ", "))
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CheckoutLine is one cart line handed to checkout. Clients send only the
// product and quantity; name and price are filled from the catalog.
type CheckoutLine struct {
	ProductID   string          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	ProductName string          `json:"-"`
	UnitPrice   decimal.Decimal `json:"-"`
}

type CheckoutRequest struct {
	Shipping Shipping       `json:"shipping"`
	Items    []CheckoutLine `json:"items"`
}

// Validate checks the required shipping fields and every line.
func (r CheckoutRequest) Validate() error {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"name", r.Shipping.Name},
		{"email", r.Shipping.Email},
		{"address", r.Shipping.Address},
		{"city", r.Shipping.City},
		{"state", r.Shipping.State},
		{"zip", r.Shipping.Zip},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if r.Shipping.Method != "" && !r.Shipping.Method.Valid() {
		missing = append(missing, "method")
	}
	if len(r.Items) == 0 {
		missing = append(missing, "items")
	}
	for i, it := range r.Items {
		if it.ProductID == "" {
			missing = append(missing, fmt.Sprintf("items[%d].product_id", i))
		}
		if it.Quantity < 1 {
			missing = append(missing, fmt.Sprintf("items[%d].quantity", i))
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// NewOrder builds a pending order for userID. The total is the sum of the
// lines plus the shipping fee.
func NewOrder(userID string, req CheckoutRequest, now time.Time) *Order {
	shipping := req.Shipping
	if shipping.Method == "" {
		shipping.Method = ShippingStandard
	}

	o := &Order{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    OrderStatusPending,
		Shipping:  shipping,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.Items = make([]OrderLine, len(req.Items))
	for i, it := range req.Items {
		o.Items[i] = OrderLine{
			ID:          uuid.New(),
			OrderID:     o.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		}
	}
	o.Total = o.LinesTotal().Add(shipping.Method.Cost())
	return o
}
