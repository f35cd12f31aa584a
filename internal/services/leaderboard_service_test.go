package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/credits-backend/internal/models"
	repo "github.com/baharkarakas/credits-backend/internal/repository"
)

func TestLeaderboard_CachesUntilTTL(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice := f.user(t, "alice", models.RoleUser)
	bob := f.user(t, "bob", models.RoleUser)
	f.grant(t, alice.ID, 30)
	f.grant(t, bob.ID, 50)

	first, err := f.board.Get(t.Context(), 10, false)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.Equal(t, 2, first.Count)
	assert.Equal(t, bob.ID, first.Rankings[0].UserID)
	assert.Equal(t, 1, first.Rankings[0].Rank)
	assert.Equal(t, int64(50), first.Rankings[0].Credits)
	assert.Equal(t, 45, first.TTLSeconds)

	f.grant(t, alice.ID, 100)
	f.clock.Advance(10 * time.Second)

	second, err := f.board.Get(t.Context(), 10, false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, bob.ID, second.Rankings[0].UserID, "cached snapshot is served until it expires")
	assert.InDelta(t, 10.0, second.CacheAge, 0.01)

	f.clock.Advance(40 * time.Second)

	third, err := f.board.Get(t.Context(), 10, false)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, alice.ID, third.Rankings[0].UserID)
	assert.Equal(t, int64(130), third.Rankings[0].Credits)
}

func TestLeaderboard_ForceRefresh(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice := f.user(t, "alice", models.RoleUser)
	f.grant(t, alice.ID, 5)

	_, err := f.board.Get(t.Context(), 10, false)
	require.NoError(t, err)
	f.grant(t, alice.ID, 5)

	res, err := f.board.Get(t.Context(), 10, true)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int64(10), res.Rankings[0].Credits)
}

func TestLeaderboard_Invalidate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice := f.user(t, "alice", models.RoleUser)
	f.grant(t, alice.ID, 5)

	_, err := f.board.Get(t.Context(), 10, false)
	require.NoError(t, err)
	require.NoError(t, f.board.Invalidate(t.Context()))

	res, err := f.board.Get(t.Context(), 10, false)
	require.NoError(t, err)
	assert.False(t, res.Cached)
}

// gatedAccounts holds the first Top call after it has read the rankings
// until release is closed.
type gatedAccounts struct {
	repo.Accounts
	calls   atomic.Int32
	read    chan struct{}
	release chan struct{}
}

func (g *gatedAccounts) Top(ctx context.Context, depth int) ([]models.Ranking, error) {
	rankings, err := g.Accounts.Top(ctx, depth)
	if g.calls.Add(1) == 1 {
		close(g.read)
		<-g.release
	}
	return rankings, err
}

func TestLeaderboard_InvalidateDuringRebuild(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice := f.user(t, "alice", models.RoleUser)
	bob := f.user(t, "bob", models.RoleUser)
	f.grant(t, alice.ID, 10)

	accounts := &gatedAccounts{
		Accounts: f.store.Accounts(),
		read:     make(chan struct{}),
		release:  make(chan struct{}),
	}
	board := NewLeaderboardService(LeaderboardParams{
		Accounts:  accounts,
		Snapshots: f.store.Snapshots(),
		Clock:     f.clock,
	})

	done := make(chan error, 1)
	go func() {
		_, err := board.Get(context.Background(), 10, false)
		done <- err
	}()
	<-accounts.read

	f.grant(t, bob.ID, 50)
	require.NoError(t, board.Invalidate(t.Context()))
	close(accounts.release)
	require.NoError(t, <-done)

	res, err := board.Get(t.Context(), 10, false)
	require.NoError(t, err)
	assert.False(t, res.Cached, "rankings read before the invalidation must not be served")
	assert.Equal(t, int32(2), accounts.calls.Load())
	require.Equal(t, 2, res.Count)
	assert.Equal(t, bob.ID, res.Rankings[0].UserID)
}

func TestLeaderboard_OrderingAndLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for _, name := range []string{"carol", "dave", "erin"} {
		u := f.user(t, name, models.RoleUser)
		f.grant(t, u.ID, 20)
	}
	f.user(t, "broke", models.RoleUser)

	res, err := f.board.Get(t.Context(), 0, false)
	require.NoError(t, err)
	require.Equal(t, 3, res.Count, "zero balances are not ranked")
	for i := 1; i < len(res.Rankings); i++ {
		assert.Less(t, res.Rankings[i-1].UserID, res.Rankings[i].UserID, "ties break on user id")
		assert.Equal(t, i+1, res.Rankings[i].Rank)
	}

	top, err := f.board.Get(t.Context(), 2, false)
	require.NoError(t, err)
	assert.True(t, top.Cached)
	assert.Equal(t, 2, top.Count)

	huge, err := f.board.Get(t.Context(), 10_000, false)
	require.NoError(t, err)
	assert.Equal(t, 3, huge.Count)
}

func TestLeaderboard_ServesStaleOnFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice := f.user(t, "alice", models.RoleUser)
	f.grant(t, alice.ID, 5)

	_, err := f.board.Get(t.Context(), 10, false)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	f.store.FailRankings(errors.New("connection refused"))

	res, err := f.board.Get(t.Context(), 10, false)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.True(t, res.Cached)
	assert.Equal(t, 1, res.Count)
}

func TestLeaderboard_UnavailableWithoutSnapshot(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.store.FailRankings(errors.New("connection refused"))

	_, err := f.board.Get(t.Context(), 10, false)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = f.board.UserRank(t.Context(), f.admin.ID)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLeaderboard_Stats(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for range 4 {
		_, err := f.board.Get(t.Context(), 10, false)
		require.NoError(t, err)
	}

	st, err := f.board.Stats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, int64(3), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, 0.75, st.HitRate)
	assert.Equal(t, DefaultLeaderboardDepth, st.MaxDepth)
}

func TestLeaderboard_UserRank(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	amounts := []int64{40, 30, 20, 10}
	users := make([]models.User, len(amounts))
	for i, amt := range amounts {
		users[i] = f.user(t, string(rune('a'+i))+"user", models.RoleUser)
		f.grant(t, users[i].ID, amt)
	}
	nobody := f.user(t, "nobody", models.RoleUser)

	r, err := f.board.UserRank(t.Context(), users[1].ID)
	require.NoError(t, err)
	assert.True(t, r.Ranked)
	assert.Equal(t, 2, r.Rank)
	assert.Equal(t, 4, r.Total)
	assert.Equal(t, int64(30), r.Balance)
	assert.Equal(t, 75.0, r.Percentile)

	none, err := f.board.UserRank(t.Context(), nobody.ID)
	require.NoError(t, err)
	assert.False(t, none.Ranked)
	assert.NotEmpty(t, none.Message)
}

func TestPercentile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rank, total int
		want        float64
	}{
		{1, 1, 100},
		{1, 3, 100},
		{2, 3, 66.67},
		{3, 3, 33.33},
		{0, 3, 0},
		{4, 3, 0},
		{1, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentile(tt.rank, tt.total), "rank %d of %d", tt.rank, tt.total)
	}
}
