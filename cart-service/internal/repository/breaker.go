package repository

import (
	"context"
	"log/slog"

	"github.com/fjod/mood_store/cart-service/internal/domain"
	"github.com/fjod/mood_store/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
)

// breakerStore fails fast while the remote store is unhealthy. Stale writes
// and missing lines are answers from a healthy store, not failures.
type breakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[[]domain.CartLine]
}

func WithBreaker(next Store, cfg circuitbreaker.Config, log *slog.Logger) Store {
	return &breakerStore{
		next: next,
		cb:   circuitbreaker.New[[]domain.CartLine](cfg, log, domain.ErrStaleWrite, domain.ErrLineNotFound),
	}
}

func (b *breakerStore) Fetch(ctx context.Context, userID string) ([]domain.CartLine, error) {
	return b.cb.Execute(func() ([]domain.CartLine, error) {
		return b.next.Fetch(ctx, userID)
	})
}

func (b *breakerStore) exec(fn func() error) error {
	_, err := b.cb.Execute(func() ([]domain.CartLine, error) {
		return nil, fn()
	})
	return err
}

func (b *breakerStore) UpsertIncrement(ctx context.Context, userID string, line domain.CartLine) error {
	return b.exec(func() error { return b.next.UpsertIncrement(ctx, userID, line) })
}

func (b *breakerStore) SetQuantity(ctx context.Context, userID, productID string, quantity int, version int64) error {
	return b.exec(func() error { return b.next.SetQuantity(ctx, userID, productID, quantity, version) })
}

func (b *breakerStore) Delete(ctx context.Context, userID, productID string) error {
	return b.exec(func() error { return b.next.Delete(ctx, userID, productID) })
}

func (b *breakerStore) DeleteAll(ctx context.Context, userID string) error {
	return b.exec(func() error { return b.next.DeleteAll(ctx, userID) })
}

// Watch is long lived and bypasses the breaker.
func (b *breakerStore) Watch(ctx context.Context, userID string) (<-chan domain.ChangeEvent, error) {
	return b.next.Watch(ctx, userID)
}
