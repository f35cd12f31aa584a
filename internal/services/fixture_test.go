package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/baharkarakas/credits-backend/internal/auth"
	"github.com/baharkarakas/credits-backend/internal/clock"
	"github.com/baharkarakas/credits-backend/internal/models"
	"github.com/baharkarakas/credits-backend/internal/policy"
	"github.com/baharkarakas/credits-backend/internal/repository/memory"
	"github.com/baharkarakas/credits-backend/internal/worker"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memory.Store
	clock  *clock.FakeClock
	ledger *LedgerService
	board  *LeaderboardService
	users  *UserService
	admin  models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewFakeClock(epoch)
	store := memory.New(clk)
	log := zaptest.NewLogger(t)
	pol := policy.MustNew()

	workers := worker.NewPool(4, 64)
	t.Cleanup(workers.Stop)

	board := NewLeaderboardService(LeaderboardParams{
		Accounts:  store.Accounts(),
		Snapshots: store.Snapshots(),
		Clock:     clk,
		Log:       log,
	})
	f := &fixture{
		store: store,
		clock: clk,
		board: board,
		ledger: NewLedgerService(LedgerParams{
			Tx:       store,
			Users:    store.Users(),
			Accounts: store.Accounts(),
			Entries:  store.Entries(),
			Policy:   pol,
			Cache:    board,
			Workers:  workers,
			Clock:    clk,
			Log:      log,
		}),
		users: NewUserService(UserParams{
			Users:     store.Users(),
			AuditLogs: store.AuditLogs(),
			Policy:    pol,
			Tokens:    auth.NewTokenManager("access-secret", "refresh-secret", "credits-test", time.Minute, time.Hour),
			Log:       log,
		}),
	}
	f.admin = f.user(t, "admin", models.RoleAdmin)
	return f
}

// user creates an account holder directly in the store.
func (f *fixture) user(t *testing.T, name string, role models.Role) models.User {
	t.Helper()
	u, err := f.store.Users().Create(t.Context(), models.User{
		Username:    name,
		DisplayName: name,
		Email:       fmt.Sprintf("%s@example.com", name),
		Role:        role,
	})
	require.NoError(t, err)
	return u
}

// grant credits a user through an admin allocation.
func (f *fixture) grant(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := f.ledger.Allocate(t.Context(), AllocateRequest{ActorID: f.admin.ID, TargetID: userID, Amount: amount})
	require.NoError(t, err)
	f.clock.Advance(time.Millisecond)
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	v, err := f.ledger.GetBalance(t.Context(), userID)
	require.NoError(t, err)
	return v.Balance
}
