package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baharkarakas/credits-backend/internal/models"
)

type snapshotsRepo struct{ pool *pgxpool.Pool }

func (r *snapshotsRepo) Get(ctx context.Context, key string) (models.LeaderboardSnapshot, error) {
	var (
		s   models.LeaderboardSnapshot
		ttl int
	)
	err := r.pool.QueryRow(ctx, `
		SELECT cache_key, rankings, computed_at, ttl_seconds, hit_count
		FROM leaderboard_cache
		WHERE cache_key = $1
	`, key).Scan(&s.CacheKey, &s.Rankings, &s.ComputedAt, &ttl, &s.HitCount)
	if err != nil {
		return models.LeaderboardSnapshot{}, fmt.Errorf("get snapshot: %w", classify(err))
	}
	s.TTL = time.Duration(ttl) * time.Second
	return s, nil
}

func (r *snapshotsRepo) Put(ctx context.Context, s models.LeaderboardSnapshot) error {
	rankings := s.Rankings
	if rankings == nil {
		rankings = []models.Ranking{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO leaderboard_cache (cache_key, rankings, computed_at, ttl_seconds, hit_count)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (cache_key) DO UPDATE
		SET rankings = EXCLUDED.rankings,
		    computed_at = EXCLUDED.computed_at,
		    ttl_seconds = EXCLUDED.ttl_seconds,
		    hit_count = 0
	`, s.CacheKey, rankings, s.ComputedAt, ttlSeconds(s.TTL))
	if err != nil {
		return fmt.Errorf("put snapshot: %w", classify(err))
	}
	return nil
}

// ttlSeconds rounds up so a sub-second TTL is not stored as already expired.
func ttlSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

func (r *snapshotsRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM leaderboard_cache WHERE cache_key = $1`, key); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func (r *snapshotsRepo) Hit(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `UPDATE leaderboard_cache SET hit_count = hit_count + 1 WHERE cache_key = $1`, key)
	if err != nil {
		return fmt.Errorf("record hit: %w", err)
	}
	return nil
}

func (r *snapshotsRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM leaderboard_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}
