package repository

import (
	"context"

	"github.com/fjod/mood_store/cart-service/internal/domain"
)

// Store is the remote copy of cart rows, one row per (user, product).
// Writes read the writing session from domain.OriginFrom(ctx).
type Store interface {
	Fetch(ctx context.Context, userID string) ([]domain.CartLine, error)
	// UpsertIncrement inserts line or adds line.Quantity to the existing row.
	UpsertIncrement(ctx context.Context, userID string, line domain.CartLine) error
	// SetQuantity applies only when the stored version is older than version.
	SetQuantity(ctx context.Context, userID, productID string, quantity int, version int64) error
	// Delete removes one row; deleting a missing row is not an error.
	Delete(ctx context.Context, userID, productID string) error
	DeleteAll(ctx context.Context, userID string) error
	// Watch streams changes to the user's rows until ctx is done.
	Watch(ctx context.Context, userID string) (<-chan domain.ChangeEvent, error)
}
