package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/mood_store/orders-service/internal/repository"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic     = "order-placed"
	DefaultBatchSize = 100
)

// MessageWriter is the part of *kafka.Writer the poller needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers   []string
	Topic     string
	Tick      time.Duration
	BatchSize int
}

// OutboxPoller relays stored order events to Kafka. An event is marked as
// processed only after the broker acknowledged it, so delivery is at least once.
type OutboxPoller struct {
	tick      time.Duration
	batchSize int
	repo      repository.OutboxRepository
	writer    MessageWriter
	log       *slog.Logger
}

func NewOutboxPoller(repo repository.OutboxRepository, log *slog.Logger, cfg Config) *OutboxPoller {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newOutboxPoller(repo, w, log, cfg)
}

func newOutboxPoller(repo repository.OutboxRepository, w MessageWriter, log *slog.Logger, cfg Config) *OutboxPoller {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &OutboxPoller{
		tick:      cfg.Tick,
		batchSize: cfg.BatchSize,
		repo:      repo,
		writer:    w,
		log:       log.With("component", "outbox_poller"),
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents returns how many events were published and marked.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.log.ErrorContext(ctx, "failed to fetch outbox events", "err", err)
		return 0
	}

	done := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.log.WarnContext(ctx, "failed to publish event", "event_id", event.ID, "order_id", event.AggregateID, "err", err)
			continue
		}
		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.WarnContext(ctx, "failed to mark event as processed", "event_id", event.ID, "err", err)
			continue
		}
		done++
	}
	if done > 0 {
		p.log.DebugContext(ctx, "outbox events published", "count", done)
	}
	return done
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		// order id keeps all events of one order on one partition
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
}
