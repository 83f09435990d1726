package mirror

import (
	"context"
	"errors"

	"github.com/fjod/mood_store/cart-service/internal/domain"
)

// Mirror is the durable copy of a user's local cart. It survives a
// cart-service restart and is keyed by user id.
type Mirror interface {
	Load(ctx context.Context, userID string) ([]domain.CartLine, error)
	Save(ctx context.Context, userID string, lines []domain.CartLine) error
	Delete(ctx context.Context, userID string) error
}

var ErrMirrorMiss = errors.New("mirror miss")
