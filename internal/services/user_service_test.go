package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/credits-backend/internal/models"
)

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	u, err := f.users.Register(t.Context(), RegisterRequest{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "alice", u.DisplayName)
	assert.Equal(t, int64(0), f.balance(t, u.ID))

	_, err = f.users.Register(t.Context(), RegisterRequest{Username: "alice", Email: "other@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrConflict)

	pair, got, err := f.users.Login(t.Context(), "alice@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NotEmpty(t, pair.AccessToken)

	_, _, err = f.users.Login(t.Context(), "alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = f.users.Login(t.Context(), "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	refreshed, err := f.users.Refresh(t.Context(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = f.users.Refresh(t.Context(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister_Invalid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"short username", RegisterRequest{Username: "al", Email: "al@example.com", Password: "long-enough"}},
		{"bad email", RegisterRequest{Username: "alice", Email: "alice", Password: "long-enough"}},
		{"short password", RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.users.Register(t.Context(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	a, err := f.users.EnsureAdmin(t.Context(), "root@example.com", "bootstrap-pass")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, a.Role)

	again, err := f.users.EnsureAdmin(t.Context(), "root@example.com", "bootstrap-pass")
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)
}

func TestChangeRole(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice := f.user(t, "alice", models.RoleUser)
	bob := f.user(t, "bob", models.RoleUser)

	_, err := f.users.ChangeRole(t.Context(), bob.ID, alice.ID, "SALES")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.users.ChangeRole(t.Context(), f.admin.ID, alice.ID, "OWNER")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.users.ChangeRole(t.Context(), f.admin.ID, "ghost", "SALES")
	assert.ErrorIs(t, err, ErrTargetNotFound)

	u, err := f.users.ChangeRole(t.Context(), f.admin.ID, alice.ID, "sales")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSales, u.Role)

	// The promoted user gets an empty pool and can allocate once it is funded.
	_, err = f.ledger.FundSalesPool(t.Context(), FundPoolRequest{ActorID: f.admin.ID, SalesID: alice.ID, Amount: 5})
	require.NoError(t, err)
	_, err = f.ledger.Allocate(t.Context(), AllocateRequest{ActorID: alice.ID, TargetID: bob.ID, Amount: 5})
	require.NoError(t, err)

	logs, err := f.store.AuditLogs().ListByEntity(t.Context(), "user", alice.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditRoleChanged, logs[0].Action)
	assert.Equal(t, "SALES", logs[0].Details["new_role"])
}

func TestDeactivate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	alice := f.user(t, "alice", models.RoleUser)

	assert.ErrorIs(t, f.users.Deactivate(t.Context(), alice.ID, f.admin.ID), ErrUnauthorized)
	assert.ErrorIs(t, f.users.Deactivate(t.Context(), f.admin.ID, f.admin.ID), ErrInvalidRequest)
	require.NoError(t, f.users.Deactivate(t.Context(), f.admin.ID, alice.ID))
	assert.ErrorIs(t, f.users.Deactivate(t.Context(), f.admin.ID, alice.ID), ErrTargetNotFound)

	_, err := f.users.Get(t.Context(), alice.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	list, err := f.users.List(t.Context(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
