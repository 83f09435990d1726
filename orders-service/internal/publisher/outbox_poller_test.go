package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/mood_store/orders-service/internal/repository"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

type MockOutbox struct {
	m         sync.Mutex
	events    []*repository.OutboxEvent
	processed []int
	GetErr    error
	MarkErr   error
}

func (o *MockOutbox) GetUnprocessedEvents(_ context.Context, limit int) ([]*repository.OutboxEvent, error) {
	o.m.Lock()
	defer o.m.Unlock()
	if o.GetErr != nil {
		return nil, o.GetErr
	}
	done := make(map[int]bool, len(o.processed))
	for _, id := range o.processed {
		done[id] = true
	}
	out := make([]*repository.OutboxEvent, 0)
	for _, ev := range o.events {
		if !done[ev.ID] && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (o *MockOutbox) MarkEventAsProcessed(_ context.Context, id int) error {
	o.m.Lock()
	defer o.m.Unlock()
	if o.MarkErr != nil {
		return o.MarkErr
	}
	o.processed = append(o.processed, id)
	return nil
}

func (o *MockOutbox) processedIDs() []int {
	o.m.Lock()
	defer o.m.Unlock()
	return append([]int(nil), o.processed...)
}

type mockWriter struct {
	msgs    []kafkaGo.Message
	failKey string
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	for _, m := range msgs {
		if string(m.Key) == w.failKey {
			return errors.New("broker unavailable")
		}
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *mockWriter) Close() error { return nil }

func event(id int, orderID string) *repository.OutboxEvent {
	return &repository.OutboxEvent{
		ID:          id,
		AggregateID: orderID,
		EventType:   repository.EventOrderPlaced,
		Payload:     json.RawMessage(fmt.Sprintf(`{"order_id":%q,"user_id":"u1","total":"19.98"}`, orderID)),
		CreatedAt:   time.Now(),
	}
}

func TestProcessUnpublishedEvents(t *testing.T) {
	repo := &MockOutbox{events: []*repository.OutboxEvent{event(1, "o1"), event(2, "o2")}}
	w := &mockWriter{}
	p := newOutboxPoller(repo, w, nil, Config{})

	assert.Equal(t, 2, p.processUnpublishedEvents(context.Background()))
	assert.Equal(t, []int{1, 2}, repo.processedIDs())
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "o1", string(w.msgs[0].Key))
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, repository.EventOrderPlaced, string(w.msgs[0].Headers[0].Value))

	assert.Equal(t, 0, p.processUnpublishedEvents(context.Background()), "processed events are not resent")
}

func TestProcessUnpublishedEvents_PublishFailureKeepsEvent(t *testing.T) {
	repo := &MockOutbox{events: []*repository.OutboxEvent{event(1, "o1"), event(2, "o2")}}
	w := &mockWriter{failKey: "o1"}
	p := newOutboxPoller(repo, w, nil, Config{})

	assert.Equal(t, 1, p.processUnpublishedEvents(context.Background()))
	assert.Equal(t, []int{2}, repo.processedIDs())

	w.failKey = ""
	assert.Equal(t, 1, p.processUnpublishedEvents(context.Background()))
	assert.Equal(t, []int{2, 1}, repo.processedIDs())
}

func TestProcessUnpublishedEvents_RepositoryErrors(t *testing.T) {
	repo := &MockOutbox{events: []*repository.OutboxEvent{event(1, "o1")}, GetErr: errors.New("db down")}
	w := &mockWriter{}
	p := newOutboxPoller(repo, w, nil, Config{})

	assert.Equal(t, 0, p.processUnpublishedEvents(context.Background()))
	assert.Empty(t, w.msgs)

	repo.GetErr = nil
	repo.MarkErr = errors.New("db down")
	assert.Equal(t, 0, p.processUnpublishedEvents(context.Background()))
	assert.Len(t, w.msgs, 1, "published but not marked, so it is retried later")
}

func TestProcessUnpublishedEvents_BatchSize(t *testing.T) {
	repo := &MockOutbox{}
	for i := 1; i <= 5; i++ {
		repo.events = append(repo.events, event(i, fmt.Sprintf("o%d", i)))
	}
	p := newOutboxPoller(repo, &mockWriter{}, nil, Config{BatchSize: 2})

	assert.Equal(t, 2, p.processUnpublishedEvents(context.Background()))
	assert.Equal(t, 2, p.processUnpublishedEvents(context.Background()))
	assert.Equal(t, 1, p.processUnpublishedEvents(context.Background()))
}

func setupKafka(t *testing.T) string {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")
	return brokers[0]
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	brokers := setupKafka(t)
	createTopic(t, brokers, DefaultTopic)

	repo := &MockOutbox{events: []*repository.OutboxEvent{event(1, "order-123")}}
	poller := NewOutboxPoller(repo, nil, Config{Brokers: []string{brokers}, Tick: 500 * time.Millisecond})
	defer poller.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go poller.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokers},
		Topic:    DefaultTopic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order-123", string(msg.Key))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "order-123", payload["order_id"])
	assert.Equal(t, "u1", payload["user_id"])

	assert.Eventually(t, func() bool {
		return len(repo.processedIDs()) == 1
	}, 10*time.Second, 100*time.Millisecond)
}
