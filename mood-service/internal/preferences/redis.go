// Package preferences keeps per-user mood counters in a Redis hash. Counters
// only ever grow.
package preferences

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/fjod/mood_store/mood-service/internal/scorer"
	"github.com/fjod/mood_store/pkg/mood"
	"github.com/redis/go-redis/v9"
)

const (
	PrimaryPoints   = 2
	SecondaryPoints = 1
	SelectPoints    = 1
)

type Count struct {
	Mood  mood.Tag `json:"mood"`
	Count int64    `json:"count"`
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// RecordQuiz adds the points of a quiz result in one transaction.
func (s *RedisStore) RecordQuiz(ctx context.Context, userID string, r scorer.Result) error {
	if r.Primary.IsNone() {
		return nil
	}
	key := prefsKey(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, r.Primary.String(), PrimaryPoints)
		if !r.Secondary.IsNone() {
			pipe.HIncrBy(ctx, key, r.Secondary.String(), SecondaryPoints)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record quiz failed: %w", err)
	}
	return nil
}

// Select records an explicit mood pick.
func (s *RedisStore) Select(ctx context.Context, userID string, t mood.Tag) (int64, error) {
	n, err := s.client.HIncrBy(ctx, prefsKey(userID), t.String(), SelectPoints).Result()
	if err != nil {
		return 0, fmt.Errorf("redis select mood failed: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Counts(ctx context.Context, userID string) ([]Count, error) {
	raw, err := s.client.HGetAll(ctx, prefsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get preferences failed: %w", err)
	}

	counts := make([]Count, 0, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad counter %s=%q: %w", field, v, err)
		}
		counts = append(counts, Count{Mood: mood.Tag(field), Count: n})
	}
	sortCounts(counts)
	return counts, nil
}

// Top returns the n most picked moods.
func (s *RedisStore) Top(ctx context.Context, userID string, n int) ([]Count, error) {
	counts, err := s.Counts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts, nil
}

// sortCounts orders by count, then canonical mood order, then name for
// moods outside the canonical set.
func sortCounts(counts []Count) {
	sort.Slice(counts, func(i, j int) bool {
		a, b := counts[i], counts[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		ra, rb := mood.Rank(a.Mood), mood.Rank(b.Mood)
		switch {
		case ra >= 0 && rb >= 0:
			return ra < rb
		case ra >= 0:
			return true
		case rb >= 0:
			return false
		}
		return a.Mood < b.Mood
	})
}

func prefsKey(userID string) string {
	return fmt.Sprintf("mood_prefs:%s", userID)
}
