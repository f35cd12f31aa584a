package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/baharkarakas/credits-backend/internal/clock"
	"github.com/baharkarakas/credits-backend/internal/metrics"
	"github.com/baharkarakas/credits-backend/internal/models"
	repo "github.com/baharkarakas/credits-backend/internal/repository"
)

const (
	DefaultLeaderboardLimit = 10
	DefaultLeaderboardTTL   = 45 * time.Second
	DefaultLeaderboardDepth = 100
	DefaultLeaderboardKey   = "top_credits"
)

type LeaderboardParams struct {
	Accounts  repo.Accounts
	Snapshots repo.Snapshots
	Clock     clock.Clock
	Log       *zap.Logger

	Key      string
	TTL      time.Duration
	MaxDepth int
}

// LeaderboardService serves the top balances from a TTL-bound snapshot and
// rebuilds it from the accounts on a miss.
type LeaderboardService struct {
	accounts  repo.Accounts
	snapshots repo.Snapshots
	clock     clock.Clock
	log       *zap.Logger

	key   string
	ttl   time.Duration
	depth int

	// refreshMu collapses concurrent rebuilds into one.
	refreshMu sync.Mutex
	// genMu orders snapshot writes against Invalidate. A rebuild that
	// started before the last invalidation never stores its result.
	genMu      sync.Mutex
	generation uint64

	hits   atomic.Int64
	misses atomic.Int64
}

func NewLeaderboardService(p LeaderboardParams) *LeaderboardService {
	s := &LeaderboardService{
		accounts:  p.Accounts,
		snapshots: p.Snapshots,
		clock:     p.Clock,
		log:       p.Log,
		key:       p.Key,
		ttl:       p.TTL,
		depth:     p.MaxDepth,
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("leaderboard.service")
	if s.key == "" {
		s.key = DefaultLeaderboardKey
	}
	if s.ttl <= 0 {
		s.ttl = DefaultLeaderboardTTL
	}
	if s.depth <= 0 {
		s.depth = DefaultLeaderboardDepth
	}
	return s
}

type LeaderboardResult struct {
	Rankings   []models.Ranking `json:"data"`
	Count      int              `json:"count"`
	Cached     bool             `json:"cached"`
	Stale      bool             `json:"stale,omitempty"`
	CacheAge   float64          `json:"cache_age"`
	ComputedAt time.Time        `json:"updated_at"`
	TTLSeconds int              `json:"ttl_seconds"`
}

// Get returns the first limit rankings. A fresh snapshot is served as is
// unless forceRefresh is set; otherwise the snapshot is rebuilt. If the
// rebuild fails an expired snapshot is served with Stale set.
func (s *LeaderboardService) Get(ctx context.Context, limit int, forceRefresh bool) (LeaderboardResult, error) {
	limit = s.clampLimit(limit)

	snap, found := s.load(ctx)
	if found && !forceRefresh && snap.Fresh(s.clock.Now()) {
		s.hits.Add(1)
		metrics.LeaderboardRequests.WithLabelValues("hit").Inc()
		if err := s.snapshots.Hit(ctx, s.key); err != nil {
			s.log.Debug("record cache hit", zap.Error(err))
		}
		return s.result(snap, limit, true), nil
	}

	s.misses.Add(1)
	metrics.LeaderboardRequests.WithLabelValues("miss").Inc()

	fresh, err := s.refresh(ctx, forceRefresh)
	if err != nil {
		if found {
			metrics.LeaderboardRequests.WithLabelValues("stale").Inc()
			s.log.Warn("leaderboard refresh failed, serving stale snapshot",
				zap.Time("computed_at", snap.ComputedAt), zap.Error(err))
			res := s.result(snap, limit, true)
			res.Stale = true
			return res, nil
		}
		metrics.LeaderboardRequests.WithLabelValues("error").Inc()
		s.log.Error("leaderboard refresh failed", zap.Error(err))
		return LeaderboardResult{}, wrapErr(KindUnavailable, "leaderboard temporarily unavailable", err)
	}
	return s.result(fresh, limit, false), nil
}

func (s *LeaderboardService) clampLimit(limit int) int {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > s.depth {
		limit = s.depth
	}
	return limit
}

func (s *LeaderboardService) load(ctx context.Context) (models.LeaderboardSnapshot, bool) {
	snap, err := s.snapshots.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			s.log.Warn("read leaderboard snapshot", zap.Error(err))
		}
		return models.LeaderboardSnapshot{}, false
	}
	return snap, true
}

// refresh rebuilds the snapshot. Callers that waited on another rebuild
// reuse its result unless they forced a refresh.
func (s *LeaderboardService) refresh(ctx context.Context, force bool) (models.LeaderboardSnapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if !force {
		if snap, ok := s.load(ctx); ok && snap.Fresh(s.clock.Now()) {
			return snap, nil
		}
	}

	s.genMu.Lock()
	gen := s.generation
	s.genMu.Unlock()

	start := time.Now()
	rankings, err := s.accounts.Top(ctx, s.depth)
	metrics.LeaderboardRefresh.Observe(time.Since(start).Seconds())
	if err != nil {
		return models.LeaderboardSnapshot{}, err
	}

	snap := models.LeaderboardSnapshot{
		CacheKey:   s.key,
		Rankings:   rankings,
		ComputedAt: s.clock.Now(),
		TTL:        s.ttl,
	}
	s.store(ctx, snap, gen)
	s.log.Debug("leaderboard refreshed", zap.Int("ranked", len(rankings)))
	return snap, nil
}

func (s *LeaderboardService) store(ctx context.Context, snap models.LeaderboardSnapshot, gen uint64) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if gen != s.generation {
		s.log.Debug("leaderboard invalidated during rebuild, snapshot not stored")
		return
	}
	if err := s.snapshots.Put(ctx, snap); err != nil {
		s.log.Warn("store leaderboard snapshot", zap.Error(err))
	}
}

func (s *LeaderboardService) result(snap models.LeaderboardSnapshot, limit int, cached bool) LeaderboardResult {
	rankings := snap.Rankings
	if len(rankings) > limit {
		rankings = rankings[:limit]
	}
	res := LeaderboardResult{
		Rankings:   append([]models.Ranking{}, rankings...),
		Count:      len(rankings),
		Cached:     cached,
		ComputedAt: snap.ComputedAt,
		TTLSeconds: int(snap.TTL / time.Second),
	}
	if cached {
		res.CacheAge = s.clock.Now().Sub(snap.ComputedAt).Seconds()
	}
	return res
}

// Invalidate drops the snapshot so the next Get rebuilds it.
func (s *LeaderboardService) Invalidate(ctx context.Context) error {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generation++
	if err := s.snapshots.Delete(ctx, s.key); err != nil {
		return wrapErr(KindUnavailable, "leaderboard cache unavailable", err)
	}
	s.log.Info("leaderboard cache invalidated")
	return nil
}

type CacheStats struct {
	Entries    int     `json:"entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
	TTLSeconds int     `json:"ttl_seconds"`
	MaxDepth   int     `json:"max_depth"`
}

// Stats reports process-local counters. They are approximate under
// concurrent reads.
func (s *LeaderboardService) Stats(ctx context.Context) (CacheStats, error) {
	entries, err := s.snapshots.Count(ctx)
	if err != nil {
		return CacheStats{}, wrapErr(KindUnavailable, "leaderboard cache unavailable", err)
	}
	hits, misses := s.hits.Load(), s.misses.Load()
	st := CacheStats{
		Entries:    entries,
		Hits:       hits,
		Misses:     misses,
		TTLSeconds: int(s.ttl / time.Second),
		MaxDepth:   s.depth,
	}
	if total := hits + misses; total > 0 {
		st.HitRate, _ = decimal.NewFromInt(hits).
			Div(decimal.NewFromInt(total)).
			Round(4).
			Float64()
	}
	return st, nil
}

type UserRank struct {
	UserID     string  `json:"user_id"`
	Ranked     bool    `json:"ranked"`
	Rank       int     `json:"rank,omitempty"`
	Balance    int64   `json:"balance"`
	Percentile float64 `json:"percentile,omitempty"`
	Total      int     `json:"total_users,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// UserRank places one user in the full ordering, not just the cached top.
// Percentile is the share of ranked users at or below the user's position.
func (s *LeaderboardService) UserRank(ctx context.Context, userID string) (UserRank, error) {
	pos, err := s.accounts.RankOf(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return UserRank{UserID: userID, Message: "user not in leaderboard (no credits)"}, nil
	}
	if err != nil {
		return UserRank{}, wrapErr(KindUnavailable, "leaderboard temporarily unavailable", err)
	}
	return UserRank{
		UserID:     userID,
		Ranked:     true,
		Rank:       pos.Rank,
		Balance:    pos.Balance,
		Percentile: Percentile(pos.Rank, pos.Total),
		Total:      pos.Total,
	}, nil
}

// Percentile returns (total-rank+1)/total*100 rounded to two places.
func Percentile(rank, total int) float64 {
	if total <= 0 || rank <= 0 || rank > total {
		return 0
	}
	p, _ := decimal.NewFromInt(int64(total - rank + 1)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		Float64()
	return p
}
