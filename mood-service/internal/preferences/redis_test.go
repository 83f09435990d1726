package preferences

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/mood_store/mood-service/internal/scorer"
	"github.com/fjod/mood_store/pkg/mood"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestRecordQuiz_AddsTwoAndOne(t *testing.T) {
	s, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.RecordQuiz(ctx, "u1", scorer.Result{Primary: mood.Happy, Secondary: mood.Tired}))
	require.NoError(t, s.RecordQuiz(ctx, "u1", scorer.Result{Primary: mood.Happy}))

	assert.Equal(t, "4", mr.HGet("mood_prefs:u1", "Happy"))
	assert.Equal(t, "1", mr.HGet("mood_prefs:u1", "Tired"))
}

func TestRecordQuiz_NoPrimaryIsNoop(t *testing.T) {
	s, mr := setupTestRedis(t)
	require.NoError(t, s.RecordQuiz(context.Background(), "u1", scorer.Result{}))
	assert.False(t, mr.Exists("mood_prefs:u1"))
}

func TestSelect_Increments(t *testing.T) {
	s, _ := setupTestRedis(t)
	ctx := context.Background()

	n, err := s.Select(ctx, "u1", mood.Chill)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Select(ctx, "u1", mood.Chill)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestTop_OrdersByCountThenVocabulary(t *testing.T) {
	s, mr := setupTestRedis(t)
	ctx := context.Background()
	mr.HSet("mood_prefs:u1", "Relaxed", "3")
	mr.HSet("mood_prefs:u1", "Cozy", "3")
	mr.HSet("mood_prefs:u1", "Tired", "3")
	mr.HSet("mood_prefs:u1", "Happy", "5")
	mr.HSet("mood_prefs:u1", "Focused", "1")

	top, err := s.Top(ctx, "u1", 3)
	require.NoError(t, err)
	assert.Equal(t, []Count{
		{Mood: mood.Happy, Count: 5},
		{Mood: mood.Tired, Count: 3},
		{Mood: mood.Relaxed, Count: 3},
	}, top)

	all, err := s.Counts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, mood.Tag("Cozy"), all[3].Mood, "unknown moods follow canonical ones on ties")
}

func TestTop_Empty(t *testing.T) {
	s, _ := setupTestRedis(t)
	top, err := s.Top(context.Background(), "nobody", 3)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestCounts_BadValue(t *testing.T) {
	s, mr := setupTestRedis(t)
	mr.HSet("mood_prefs:u1", "Happy", "lots")
	_, err := s.Counts(context.Background(), "u1")
	assert.ErrorContains(t, err, "bad counter")
}
