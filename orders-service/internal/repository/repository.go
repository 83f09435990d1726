package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/mood_store/orders-service/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProfileNotFound = errors.New("profile not found")
	// ErrDuplicateOrder is returned when the idempotency key was already used.
	ErrDuplicateOrder = errors.New("order for this idempotency key already exists")
)

const EventOrderPlaced = "OrderPlaced"

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type OutboxEvent struct {
	ID          int
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

type OrderRepository interface {
	// CreateOrder stores the order, its lines and the outbox event in one
	// transaction. An empty idempotencyKey disables deduplication.
	CreateOrder(ctx context.Context, order *domain.Order, idempotencyKey string, event []byte) error
	GetOrderByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Order, error)
	// GetOrderForUser returns ErrOrderNotFound for orders owned by someone else.
	GetOrderForUser(ctx context.Context, id uuid.UUID, userID string) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
}

type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*domain.CustomerProfile, error)
	UpsertProfile(ctx context.Context, p *domain.CustomerProfile) error
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int) error
}
