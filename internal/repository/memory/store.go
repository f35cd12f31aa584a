// Package memory is an in-process implementation of every repository
// interface. Transactions are serialized by a single mutex and staged until
// commit, which gives the same isolation the row-locking Postgres store
// provides for a single account.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/baharkarakas/credits-backend/internal/clock"
	"github.com/baharkarakas/credits-backend/internal/models"
	"github.com/baharkarakas/credits-backend/internal/repository"
)

type Store struct {
	mu    sync.Mutex
	clock clock.Clock

	users     map[string]models.User
	accounts  map[string]models.Account
	pools     map[string]models.SalesPool
	entries   []models.LedgerEntry
	snapshots map[string]models.LeaderboardSnapshot
	audits    []models.AuditLog

	conflicts  int
	rankingErr error
}

func New(c clock.Clock) *Store {
	if c == nil {
		c = clock.Real{}
	}
	return &Store{
		clock:     c,
		users:     map[string]models.User{},
		accounts:  map[string]models.Account{},
		pools:     map[string]models.SalesPool{},
		snapshots: map[string]models.LeaderboardSnapshot{},
	}
}

// InjectConflicts makes the next n transactions fail at commit with
// repository.ErrTransient after fn has run.
func (s *Store) InjectConflicts(n int) {
	s.mu.Lock()
	s.conflicts = n
	s.mu.Unlock()
}

// FailRankings makes Top and RankOf return err until called with nil.
func (s *Store) FailRankings(err error) {
	s.mu.Lock()
	s.rankingErr = err
	s.mu.Unlock()
}

// AllEntries returns every committed entry in append order.
func (s *Store) AllEntries() []models.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LedgerEntry(nil), s.entries...)
}

// ---------- transactions ----------

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t := &memTx{
		s:        s,
		accounts: map[string]models.Account{},
		pools:    map[string]models.SalesPool{},
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if s.conflicts > 0 {
		s.conflicts--
		return fmt.Errorf("commit tx: %w", repository.ErrTransient)
	}

	for id, a := range t.accounts {
		s.accounts[id] = a
	}
	for id, p := range t.pools {
		s.pools[id] = p
	}
	s.entries = append(s.entries, t.entries...)
	s.audits = append(s.audits, t.audits...)
	return nil
}

type memTx struct {
	s        *Store
	accounts map[string]models.Account
	pools    map[string]models.SalesPool
	entries  []models.LedgerEntry
	audits   []models.AuditLog
}

func (t *memTx) GetUser(_ context.Context, id string) (models.User, error) {
	u, ok := t.s.users[id]
	if !ok || !u.Active() {
		return models.User{}, fmt.Errorf("get user: %w", repository.ErrNotFound)
	}
	return u, nil
}

func (t *memTx) EnsureSalesPool(_ context.Context, userID string) error {
	if _, ok := t.pools[userID]; ok {
		return nil
	}
	if _, ok := t.s.pools[userID]; ok {
		return nil
	}
	t.pools[userID] = models.SalesPool{UserID: userID, UpdatedAt: t.s.clock.Now()}
	return nil
}

func (t *memTx) LockSalesPool(_ context.Context, userID string) (models.SalesPool, error) {
	if p, ok := t.pools[userID]; ok {
		return p, nil
	}
	if p, ok := t.s.pools[userID]; ok {
		return p, nil
	}
	return models.SalesPool{}, fmt.Errorf("lock sales pool: %w", repository.ErrNotFound)
}

func (t *memTx) UpdateSalesPool(ctx context.Context, p models.SalesPool) (models.SalesPool, error) {
	cur, err := t.LockSalesPool(ctx, p.UserID)
	if err != nil {
		return models.SalesPool{}, err
	}
	if cur.Version != p.Version {
		return models.SalesPool{}, fmt.Errorf("update sales pool: %w", repository.ErrTransient)
	}
	if p.Balance < 0 {
		return models.SalesPool{}, fmt.Errorf("update sales pool: %w", repository.ErrInsufficientFunds)
	}
	p.Version = cur.Version + 1
	p.UpdatedAt = t.s.clock.Now()
	t.pools[p.UserID] = p
	return p, nil
}

func (t *memTx) LockAccount(_ context.Context, userID string) (models.Account, error) {
	if a, ok := t.accounts[userID]; ok {
		return a, nil
	}
	if a, ok := t.s.accounts[userID]; ok {
		return a, nil
	}
	return models.Account{}, fmt.Errorf("lock account: %w", repository.ErrNotFound)
}

func (t *memTx) UpdateAccount(ctx context.Context, a models.Account) (models.Account, error) {
	cur, err := t.LockAccount(ctx, a.UserID)
	if err != nil {
		return models.Account{}, err
	}
	if cur.Version != a.Version {
		return models.Account{}, fmt.Errorf("update account: %w", repository.ErrTransient)
	}
	if a.Balance < 0 {
		return models.Account{}, fmt.Errorf("update account: %w", repository.ErrInsufficientFunds)
	}
	a.Version = cur.Version + 1
	a.UpdatedAt = t.s.clock.Now()
	t.accounts[a.UserID] = a
	return a, nil
}

func (t *memTx) AppendEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error) {
	if _, err := t.LockAccount(ctx, e.UserID); err != nil {
		return models.LedgerEntry{}, fmt.Errorf("append entry: %w", err)
	}
	if e.Amount <= 0 || e.BalanceAfter < 0 {
		return models.LedgerEntry{}, fmt.Errorf("append entry: %w", repository.ErrInsufficientFunds)
	}
	if e.Status == "" {
		e.Status = models.EntryCompleted
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.s.clock.Now()
	}
	t.entries = append(t.entries, e)
	return e, nil
}

func (t *memTx) AppendAudit(_ context.Context, l models.AuditLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = t.s.clock.Now()
	}
	t.audits = append(t.audits, l)
	return nil
}

// ---------- users ----------

type usersView struct{ s *Store }

func (s *Store) Users() repository.Users { return usersView{s} }

func (v usersView) Create(_ context.Context, u models.User) (models.User, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return models.User{}, fmt.Errorf("insert user: %w", repository.ErrDuplicate)
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, ok := s.users[u.ID]; ok {
		return models.User{}, fmt.Errorf("insert user: %w", repository.ErrDuplicate)
	}
	now := s.clock.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = u
	s.accounts[u.ID] = models.Account{UserID: u.ID, UpdatedAt: now}
	if u.Role == models.RoleSales {
		s.pools[u.ID] = models.SalesPool{UserID: u.ID, UpdatedAt: now}
	}
	return u, nil
}

func (v usersView) GetByID(_ context.Context, id string) (models.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	u, ok := v.s.users[id]
	if !ok || !u.Active() {
		return models.User{}, fmt.Errorf("get user: %w", repository.ErrNotFound)
	}
	return u, nil
}

func (v usersView) GetByEmail(_ context.Context, email string) (models.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, u := range v.s.users {
		if u.Active() && strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("get user by email: %w", repository.ErrNotFound)
}

func (v usersView) List(_ context.Context, limit, offset int) ([]models.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := make([]models.User, 0, len(v.s.users))
	for _, u := range v.s.users {
		if u.Active() {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return window(out, offset, limit), nil
}

func (v usersView) UpdateRole(_ context.Context, id string, role models.Role) (models.User, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || !u.Active() {
		return models.User{}, fmt.Errorf("update role: %w", repository.ErrNotFound)
	}
	u.Role = role
	u.UpdatedAt = s.clock.Now()
	s.users[id] = u
	if _, ok := s.pools[id]; role == models.RoleSales && !ok {
		s.pools[id] = models.SalesPool{UserID: id, UpdatedAt: u.UpdatedAt}
	}
	return u, nil
}

func (v usersView) Delete(_ context.Context, id string) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || !u.Active() {
		return fmt.Errorf("delete user: %w", repository.ErrNotFound)
	}
	now := s.clock.Now()
	u.DeletedAt = &now
	s.users[id] = u
	return nil
}

// ---------- accounts ----------

type accountsView struct{ s *Store }

func (s *Store) Accounts() repository.Accounts { return accountsView{s} }

func (v accountsView) Get(_ context.Context, userID string) (models.Account, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	a, ok := v.s.accounts[userID]
	if u, exists := v.s.users[userID]; !ok || !exists || !u.Active() {
		return models.Account{}, fmt.Errorf("get account: %w", repository.ErrNotFound)
	}
	return a, nil
}

func (v accountsView) GetSalesPool(_ context.Context, userID string) (models.SalesPool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	p, ok := v.s.pools[userID]
	if !ok {
		return models.SalesPool{}, fmt.Errorf("get sales pool: %w", repository.ErrNotFound)
	}
	return p, nil
}

// ranked returns every positive balance in leaderboard order. Caller holds mu.
func (s *Store) ranked() []models.Ranking {
	out := make([]models.Ranking, 0, len(s.accounts))
	for id, a := range s.accounts {
		u, ok := s.users[id]
		if a.Balance <= 0 || !ok || !u.Active() {
			continue
		}
		out = append(out, models.Ranking{UserID: id, DisplayName: u.DisplayName, Credits: a.Balance})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Credits != out[j].Credits {
			return out[i].Credits > out[j].Credits
		}
		return out[i].UserID < out[j].UserID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func (v accountsView) Top(_ context.Context, depth int) ([]models.Ranking, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.rankingErr != nil {
		return nil, v.s.rankingErr
	}
	r := v.s.ranked()
	if len(r) > depth {
		r = r[:depth]
	}
	return r, nil
}

func (v accountsView) RankOf(_ context.Context, userID string) (models.RankPosition, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.rankingErr != nil {
		return models.RankPosition{}, v.s.rankingErr
	}
	r := v.s.ranked()
	for _, rk := range r {
		if rk.UserID == userID {
			return models.RankPosition{UserID: userID, Rank: rk.Rank, Balance: rk.Credits, Total: len(r)}, nil
		}
	}
	return models.RankPosition{}, fmt.Errorf("rank of: %w", repository.ErrNotFound)
}

// ---------- entries ----------

type entriesView struct{ s *Store }

func (s *Store) Entries() repository.Entries { return entriesView{s} }

// matching returns the user's entries newest first. Caller holds mu.
func (s *Store) matching(userID string, f models.EntryFilter) []models.LedgerEntry {
	var out []models.LedgerEntry
	for _, e := range s.entries {
		if e.UserID == userID && f.Match(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (v entriesView) Query(_ context.Context, userID string, f models.EntryFilter, p models.Page) ([]models.LedgerEntry, int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	all := v.s.matching(userID, f)
	return window(all, p.Offset, p.Limit), len(all), nil
}

func (v entriesView) Stream(ctx context.Context, userID string, f models.EntryFilter, max int, fn func(models.LedgerEntry) error) error {
	v.s.mu.Lock()
	all := v.s.matching(userID, f)
	v.s.mu.Unlock()

	if len(all) > max {
		all = all[:max]
	}
	for _, e := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// ---------- snapshots ----------

type snapshotsView struct{ s *Store }

func (s *Store) Snapshots() repository.Snapshots { return snapshotsView{s} }

func (v snapshotsView) Get(_ context.Context, key string) (models.LeaderboardSnapshot, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	snap, ok := v.s.snapshots[key]
	if !ok {
		return models.LeaderboardSnapshot{}, fmt.Errorf("get snapshot: %w", repository.ErrNotFound)
	}
	snap.Rankings = append([]models.Ranking(nil), snap.Rankings...)
	return snap, nil
}

func (v snapshotsView) Put(_ context.Context, snap models.LeaderboardSnapshot) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	snap.Rankings = append([]models.Ranking(nil), snap.Rankings...)
	snap.HitCount = 0
	v.s.snapshots[snap.CacheKey] = snap
	return nil
}

func (v snapshotsView) Delete(_ context.Context, key string) error {
	v.s.mu.Lock()
	delete(v.s.snapshots, key)
	v.s.mu.Unlock()
	return nil
}

func (v snapshotsView) Hit(_ context.Context, key string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if snap, ok := v.s.snapshots[key]; ok {
		snap.HitCount++
		v.s.snapshots[key] = snap
	}
	return nil
}

func (v snapshotsView) Count(_ context.Context) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return len(v.s.snapshots), nil
}

// ---------- audit logs ----------

type auditView struct{ s *Store }

func (s *Store) AuditLogs() repository.AuditLogs { return auditView{s} }

func (v auditView) Create(_ context.Context, l models.AuditLog) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = v.s.clock.Now()
	}
	v.s.audits = append(v.s.audits, l)
	return nil
}

func (v auditView) ListByEntity(_ context.Context, entityType, entityID string, limit int) ([]models.AuditLog, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []models.AuditLog
	for i := len(v.s.audits) - 1; i >= 0 && len(out) < limit; i-- {
		l := v.s.audits[i]
		if l.EntityType == entityType && l.EntityID != nil && *l.EntityID == entityID {
			out = append(out, l)
		}
	}
	return out, nil
}

func window[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]T(nil), all[offset:end]...)
}
