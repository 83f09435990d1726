package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/mood_store/cart-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

type snapshot struct {
	UserID  string            `json:"user_id"`
	Lines   []domain.CartLine `json:"lines"`
	SavedAt time.Time         `json:"saved_at"`
}

func NewRedisMirror(client *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{
		client:  client,
		baseTTL: ttl,
	}
}

type RedisMirror struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisMirror) Load(ctx context.Context, userID string) ([]domain.CartLine, error) {
	data, err := r.client.Get(ctx, mirrorKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMirrorMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal cart mirror failed: %w", err)
	}
	if s.Lines == nil {
		s.Lines = []domain.CartLine{}
	}
	return s.Lines, nil
}

func (r *RedisMirror) Save(ctx context.Context, userID string, lines []domain.CartLine) error {
	data, err := json.Marshal(snapshot{UserID: userID, Lines: lines, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal cart mirror failed: %w", err)
	}

	var ttl time.Duration
	if r.baseTTL > 0 {
		// jitter spreads expiry of mirrors written together
		ttl = r.baseTTL + time.Duration(rand.Intn(5))*time.Minute
	}
	if err := r.client.Set(ctx, mirrorKey(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisMirror) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, mirrorKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func mirrorKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}
