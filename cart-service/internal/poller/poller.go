package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic   = "order-placed"
	DefaultGroupID = "cart-service-consumer"
)

// OrderPlaced is published by orders-service once an order is stored.
type OrderPlaced struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Total     string    `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

// Clearer empties a user's cart everywhere it is held.
type Clearer interface {
	Clear(ctx context.Context, userID string) error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Poller struct {
	carts  Clearer
	reader *kafka.Reader
	log    *slog.Logger
}

func NewPoller(carts Clearer, log *slog.Logger, cfg Config) *Poller {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.GroupID == "" {
		cfg.GroupID = DefaultGroupID
	}
	if log == nil {
		log = slog.Default()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{carts: carts, reader: reader, log: log.With("topic", cfg.Topic)}
}

// Run consumes order-placed events until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("error reading message", "err", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if err := p.handle(ctx, m.Value); err != nil {
			p.log.Error("order-placed event not applied",
				"partition", m.Partition, "offset", m.Offset, "err", err)
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", "err", err)
	}
}

func (p *Poller) handle(ctx context.Context, value []byte) error {
	ev, err := decodeEvent(value)
	if err != nil {
		return err
	}
	if err := p.carts.Clear(ctx, ev.UserID); err != nil {
		return fmt.Errorf("clear cart of %s after order %s: %w", ev.UserID, ev.OrderID, err)
	}
	p.log.Info("cart cleared after order", "user_id", ev.UserID, "order_id", ev.OrderID)
	return nil
}

func decodeEvent(value []byte) (OrderPlaced, error) {
	var ev OrderPlaced
	if err := json.Unmarshal(value, &ev); err != nil {
		return OrderPlaced{}, fmt.Errorf("error parsing message: %w", err)
	}
	if ev.UserID == "" {
		return OrderPlaced{}, errors.New("missing or invalid user_id")
	}
	return ev, nil
}
