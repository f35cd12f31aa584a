// Package rediscache keeps leaderboard snapshots in Redis so several API
// instances share one cache.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/baharkarakas/credits-backend/internal/models"
	"github.com/baharkarakas/credits-backend/internal/repository"
)

// Snapshots stores each snapshot as JSON under prefix+cache_key. Keys
// outlive the snapshot TTL by retention so a stale copy is still available
// when a refresh fails.
type Snapshots struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewSnapshots(client *redis.Client, prefix string, retention time.Duration) *Snapshots {
	if prefix == "" {
		prefix = "credits:leaderboard:"
	}
	if retention <= 0 {
		retention = time.Hour
	}
	return &Snapshots{client: client, prefix: prefix, retention: retention}
}

var _ repository.Snapshots = (*Snapshots)(nil)

func (s *Snapshots) key(k string) string     { return s.prefix + k }
func (s *Snapshots) hitsKey(k string) string { return s.prefix + k + ":hits" }

func (s *Snapshots) Get(ctx context.Context, key string) (models.LeaderboardSnapshot, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.LeaderboardSnapshot{}, fmt.Errorf("get snapshot: %w", repository.ErrNotFound)
	}
	if err != nil {
		return models.LeaderboardSnapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	var snap models.LeaderboardSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return models.LeaderboardSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	hits, err := s.client.Get(ctx, s.hitsKey(key)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.LeaderboardSnapshot{}, fmt.Errorf("get hit count: %w", err)
	}
	snap.HitCount = hits
	return snap, nil
}

func (s *Snapshots) Put(ctx context.Context, snap models.LeaderboardSnapshot) error {
	snap.HitCount = 0
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	ttl := snap.TTL + s.retention
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key(snap.CacheKey), raw, ttl)
		p.Set(ctx, s.hitsKey(snap.CacheKey), 0, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

func (s *Snapshots) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key), s.hitsKey(key)).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func (s *Snapshots) Hit(ctx context.Context, key string) error {
	if err := s.client.Incr(ctx, s.hitsKey(key)).Err(); err != nil {
		return fmt.Errorf("record hit: %w", err)
	}
	return nil
}

func (s *Snapshots) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("scan snapshots: %w", err)
		}
		for _, k := range keys {
			if !strings.HasSuffix(k, ":hits") {
				n++
			}
		}
		cursor = next
		if cursor == 0 {
			return n, nil
		}
	}
}
