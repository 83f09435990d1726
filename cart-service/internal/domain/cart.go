package domain

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/mood_store/pkg/money"
	"github.com/fjod/mood_store/product-service/pkg/client"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrLineNotFound    = errors.New("cart line not found")
	// ErrStaleWrite is returned by the remote store when a newer version of
	// the line is already stored.
	ErrStaleWrite = errors.New("remote line has a newer version")
)

// CartLine is one product in a cart. A cart holds at most one line per ProductID.
type CartLine struct {
	ID        string             `json:"id"`
	ProductID string             `json:"product_id"`
	Quantity  int                `json:"quantity"`
	UnitPrice decimal.Decimal    `json:"unit_price"`
	Product   client.ProductView `json:"product"`
	// Version orders writes to the same line across sessions; higher wins.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewLine builds a line for p, snapshotting its current price.
func NewLine(p client.ProductView, quantity int) CartLine {
	return CartLine{
		ID:        uuid.NewString(),
		ProductID: p.ID,
		Quantity:  quantity,
		UnitPrice: p.Price,
		Product:   p,
	}
}

func (l CartLine) Validate() error {
	if l.ProductID == "" {
		return errors.New("product_id is required")
	}
	if l.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if l.UnitPrice.IsNegative() {
		return errors.New("unit price must not be negative")
	}
	return nil
}

func (l CartLine) Total() decimal.Decimal {
	return money.LineTotal(l.UnitPrice, l.Quantity)
}

// NextVersion returns a version strictly greater than prev, derived from the
// wall clock so that writes from different sessions order by time.
func NextVersion(prev int64, now time.Time) int64 {
	v := now.UnixNano()
	if v <= prev {
		return prev + 1
	}
	return v
}

// ChangeKind names the remote mutation carried by a ChangeEvent.
type ChangeKind string

const (
	ChangeUpsert ChangeKind = "upsert"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent is one entry of the remote cart change feed.
type ChangeEvent struct {
	UserID    string
	ProductID string
	Kind      ChangeKind
	// Origin is the session that made the write, "" when unknown.
	Origin string
}

type originKey struct{}

// WithOrigin tags remote writes made with ctx as coming from session id.
func WithOrigin(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, originKey{}, id)
}

func OriginFrom(ctx context.Context) string {
	if v, ok := ctx.Value(originKey{}).(string); ok {
		return v
	}
	return ""
}
