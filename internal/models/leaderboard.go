package models

import "time"

type Ranking struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Credits     int64  `json:"credits"`
}

// LeaderboardSnapshot is a ranked copy of the top balances. It is
// replaced whole on refresh, never patched.
type LeaderboardSnapshot struct {
	CacheKey   string        `json:"cache_key"`
	Rankings   []Ranking     `json:"rankings"`
	ComputedAt time.Time     `json:"computed_at"`
	TTL        time.Duration `json:"ttl"`
	HitCount   int64         `json:"hit_count"`
}

func (s LeaderboardSnapshot) ExpiresAt() time.Time { return s.ComputedAt.Add(s.TTL) }

func (s LeaderboardSnapshot) Fresh(now time.Time) bool { return now.Before(s.ExpiresAt()) }

// RankPosition is a single user's place in the full ordering.
type RankPosition struct {
	UserID  string `json:"user_id"`
	Rank    int    `json:"rank"`
	Balance int64  `json:"balance"`
	Total   int    `json:"total"`
}
