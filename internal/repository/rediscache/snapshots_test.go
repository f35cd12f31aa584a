package rediscache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/credits-backend/internal/models"
	"github.com/baharkarakas/credits-backend/internal/repository"
)

func newSnapshots(t *testing.T) *Snapshots {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := NewClient(addr, "", 0)
	require.NoError(t, client.Ping(t.Context()).Err())

	prefix := "credits-test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
		_ = client.Close()
	})
	return NewSnapshots(client, prefix, time.Minute)
}

func TestSnapshots(t *testing.T) {
	s := newSnapshots(t)
	ctx := t.Context()

	_, err := s.Get(ctx, "top_credits")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	snap := models.LeaderboardSnapshot{
		CacheKey:   "top_credits",
		Rankings:   []models.Ranking{{Rank: 1, UserID: "u1", DisplayName: "U1", Credits: 7}},
		ComputedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		TTL:        45 * time.Second,
	}
	require.NoError(t, s.Put(ctx, snap))
	require.NoError(t, s.Hit(ctx, "top_credits"))

	got, err := s.Get(ctx, "top_credits")
	require.NoError(t, err)
	assert.Equal(t, snap.Rankings, got.Rankings)
	assert.Equal(t, snap.TTL, got.TTL)
	assert.Equal(t, int64(1), got.HitCount)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "hit counters are not snapshots")

	ttl, err := s.client.TTL(ctx, s.key("top_credits")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 45*time.Second, "keys outlive the snapshot ttl")

	require.NoError(t, s.Delete(ctx, "top_credits"))
	_, err = s.Get(ctx, "top_credits")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
