package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/baharkarakas/credits-backend/internal/auth"
	"github.com/baharkarakas/credits-backend/internal/clock"
	"github.com/baharkarakas/credits-backend/internal/config"
	"github.com/baharkarakas/credits-backend/internal/models"
	"github.com/baharkarakas/credits-backend/internal/repository/memory"
	"github.com/baharkarakas/credits-backend/internal/services"
)

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	store  *memory.Store
	users  *services.UserService
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, false)
}

func newTestServerWith(t *testing.T, devTokens bool) *testServer {
	t.Helper()

	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	store := memory.New(clk)
	log := zaptest.NewLogger(t)
	tokens := auth.NewTokenManager("access", "refresh", "credits-test", time.Minute, time.Hour)

	board := services.NewLeaderboardService(services.LeaderboardParams{
		Accounts:  store.Accounts(),
		Snapshots: store.Snapshots(),
		Clock:     clk,
		Log:       log,
	})
	ledger := services.NewLedgerService(services.LedgerParams{
		Tx:       store,
		Users:    store.Users(),
		Accounts: store.Accounts(),
		Entries:  store.Entries(),
		Cache:    board,
		Clock:    clk,
		Log:      log,
	})
	users := services.NewUserService(services.UserParams{
		Users:     store.Users(),
		AuditLogs: store.AuditLogs(),
		Tokens:    tokens,
		Log:       log,
	})

	srv := httptest.NewServer(NewRouter(RouterDeps{
		DevTokens:   devTokens,
		Log:         log,
		Tokens:      tokens,
		Users:       users,
		Ledger:      ledger,
		Leaderboard: board,
	}))
	t.Cleanup(srv.Close)

	return &testServer{t: t, srv: srv, store: store, users: users, tokens: tokens}
}

// signup registers a user, sets its role and returns an access token.
func (s *testServer) signup(name string, role models.Role) (models.User, string) {
	s.t.Helper()
	u, err := s.store.Users().Create(s.t.Context(), models.User{
		Username:    name,
		DisplayName: name,
		Email:       name + "@example.com",
		Role:        role,
	})
	require.NoError(s.t, err)
	pair, err := s.tokens.GeneratePair(u.ID, string(u.Role))
	require.NoError(s.t, err)
	return u, pair.AccessToken
}

func (s *testServer) do(method, path, token string, body any) *http.Response {
	s.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(s.t.Context(), method, s.srv.URL+path, rd)
	require.NoError(s.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type errBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestRouter_AllocateRedeemHistory(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	_, adminTok := s.signup("admin", models.RoleAdmin)
	alice, aliceTok := s.signup("alice", models.RoleUser)

	resp := s.do(http.MethodPost, "/api/v1/credits/allocate", adminTok, map[string]any{
		"target_user_id": alice.ID,
		"amount":         100,
		"reference_id":   "welcome",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entry := decode[models.LedgerEntry](t, resp)
	assert.Equal(t, int64(100), entry.BalanceAfter)

	resp = s.do(http.MethodPost, "/api/v1/credits/redeem", aliceTok, map[string]any{"amount": 30})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/credits/history/"+alice.ID+"?limit=1", aliceTok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[services.HistoryPage](t, resp)
	assert.Equal(t, 2, page.Total)
	assert.True(t, page.HasMore)
	assert.Equal(t, int64(70), page.CurrentBalance)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, models.KindRedeem, page.Entries[0].Kind)

	resp = s.do(http.MethodGet, "/api/v1/users/"+alice.ID+"/balance", aliceTok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(70), decode[services.BalanceView](t, resp).Balance)
}

func TestRouter_ErrorStatuses(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	admin, adminTok := s.signup("admin", models.RoleAdmin)
	alice, aliceTok := s.signup("alice", models.RoleUser)
	bob, _ := s.signup("bob", models.RoleUser)

	tests := []struct {
		name   string
		token  string
		path   string
		body   any
		status int
		code   string
	}{
		{"zero amount", adminTok, "/api/v1/credits/allocate", map[string]any{"target_user_id": alice.ID, "amount": 0}, http.StatusBadRequest, "invalid_amount"},
		{"user cannot allocate", aliceTok, "/api/v1/credits/allocate", map[string]any{"target_user_id": bob.ID, "amount": 5}, http.StatusForbidden, "unauthorized"},
		{"self allocation", adminTok, "/api/v1/credits/allocate", map[string]any{"target_user_id": admin.ID, "amount": 5}, http.StatusBadRequest, "self_allocation"},
		{"unknown target", adminTok, "/api/v1/credits/allocate", map[string]any{"target_user_id": "ghost", "amount": 5}, http.StatusNotFound, "target_not_found"},
		{"missing target", adminTok, "/api/v1/credits/allocate", map[string]any{"amount": 5}, http.StatusBadRequest, "invalid_request"},
		{"overdraw", aliceTok, "/api/v1/credits/redeem", map[string]any{"amount": 1}, http.StatusBadRequest, "insufficient_credits"},
		{"unknown field", aliceTok, "/api/v1/credits/redeem", map[string]any{"amount": 1, "actor_id": admin.ID}, http.StatusBadRequest, "invalid_request"},
		{"no token", "", "/api/v1/credits/redeem", map[string]any{"amount": 1}, http.StatusUnauthorized, "unauthenticated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(http.MethodPost, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decode[errBody](t, resp).Code)
		})
	}
}

func TestRouter_HistoryIsPrivate(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	_, adminTok := s.signup("admin", models.RoleAdmin)
	alice, _ := s.signup("alice", models.RoleUser)
	_, bobTok := s.signup("bob", models.RoleUser)

	resp := s.do(http.MethodGet, "/api/v1/credits/history/"+alice.ID, bobTok, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/credits/history/"+alice.ID, adminTok, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/credits/history/"+alice.ID+"?kind=BONUS", adminTok, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/credits/history/ghost", adminTok, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_ExportCSV(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	_, adminTok := s.signup("admin", models.RoleAdmin)
	alice, aliceTok := s.signup("alice", models.RoleUser)

	resp := s.do(http.MethodPost, "/api/v1/credits/allocate", adminTok, map[string]any{"target_user_id": alice.ID, "amount": 12})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/credits/history/"+alice.ID+"?export=csv", aliceTok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	rows, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "entry_id", rows[0][0])
	assert.Equal(t, "12", rows[1][2])
}

func TestRouter_Leaderboard(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	_, adminTok := s.signup("admin", models.RoleAdmin)
	alice, aliceTok := s.signup("alice", models.RoleUser)

	resp := s.do(http.MethodPost, "/api/v1/credits/allocate", adminTok, map[string]any{"target_user_id": alice.ID, "amount": 40})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/leaderboard?limit=5", aliceTok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	lb := decode[services.LeaderboardResult](t, resp)
	require.Equal(t, 1, lb.Count)
	assert.Equal(t, alice.ID, lb.Rankings[0].UserID)

	resp = s.do(http.MethodGet, "/api/v1/leaderboard", aliceTok, nil)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))

	resp = s.do(http.MethodGet, "/api/v1/leaderboard?force_refresh=maybe", aliceTok, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/leaderboard/rank/"+alice.ID, aliceTok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rank := decode[services.UserRank](t, resp)
	assert.Equal(t, 1, rank.Rank)
	assert.Equal(t, 100.0, rank.Percentile)

	resp = s.do(http.MethodPost, "/api/v1/leaderboard/cache/invalidate", aliceTok, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/v1/leaderboard/cache/invalidate", adminTok, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/leaderboard/cache/stats", aliceTok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[services.CacheStats](t, resp)
	assert.Equal(t, 0, st.Entries)
	assert.Equal(t, int64(1), st.Hits)
}

func TestRouter_AuthFlow(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	resp := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username": "carol",
		"email":    "carol@example.com",
		"password": "long-password",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	carol := decode[models.User](t, resp)
	assert.Equal(t, models.RoleUser, carol.Role)

	resp = s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username": "carol",
		"email":    "carol@example.com",
		"password": "long-password",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]any{"email": "carol@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]any{"email": "carol@example.com", "password": "long-password"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pair := decode[auth.Pair](t, resp)
	require.NotEmpty(t, pair.AccessToken)

	resp = s.do(http.MethodGet, "/api/v1/users/"+carol.ID, pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_RoleChangeAndPoolFunding(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	_, adminTok := s.signup("admin", models.RoleAdmin)
	sam, samTok := s.signup("sam", models.RoleUser)
	alice, _ := s.signup("alice", models.RoleUser)

	resp := s.do(http.MethodPut, "/api/v1/users/"+sam.ID+"/role", samTok, map[string]any{"role": "ADMIN"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodPut, "/api/v1/users/"+sam.ID+"/role", adminTok, map[string]any{"role": "SALES"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.RoleSales, decode[models.User](t, resp).Role)

	// The old token still says USER; services read the role from the store.
	resp = s.do(http.MethodPost, "/api/v1/credits/allocate", samTok, map[string]any{"target_user_id": alice.ID, "amount": 5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "insufficient_balance", decode[errBody](t, resp).Code)

	resp = s.do(http.MethodPost, "/api/v1/sales-pools/"+sam.ID+"/fund", adminTok, map[string]any{"amount": 20})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodPost, "/api/v1/credits/allocate/bulk", samTok, map[string]any{
		"items": []map[string]any{
			{"target_user_id": alice.ID, "amount": 15},
			{"target_user_id": alice.ID, "amount": 15},
		},
	})
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	var bulk struct {
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&bulk))
	assert.Equal(t, 1, bulk.Succeeded)
	assert.Equal(t, 1, bulk.Failed)

	resp = s.do(http.MethodGet, "/api/v1/users", samTok, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodDelete, "/api/v1/users/"+alice.ID, adminTok, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(http.MethodGet, "/api/v1/users", adminTok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.User](t, resp), 2)
}

func TestRouter_DevTokensOffByDefault(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := config.Load()
	require.NoError(t, err)

	s := newTestServerWith(t, cfg.AuthDevTokens)
	admin, _ := s.signup("admin", models.RoleAdmin)
	alice, _ := s.signup("alice", models.RoleUser)

	resp := s.do(http.MethodPost, "/api/v1/credits/allocate", "dev-"+admin.ID, map[string]any{
		"target_user_id": alice.ID,
		"amount":         1000000,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	acc, err := s.store.Accounts().Get(t.Context(), alice.ID)
	require.NoError(t, err)
	assert.Zero(t, acc.Balance)
}

func TestRouter_DevTokensWhenEnabled(t *testing.T) {
	t.Parallel()
	s := newTestServerWith(t, true)
	alice, _ := s.signup("alice", models.RoleUser)

	resp := s.do(http.MethodGet, "/api/v1/users/"+alice.ID+"/balance", "dev-"+alice.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	resp := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}
