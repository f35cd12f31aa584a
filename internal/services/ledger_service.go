package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/baharkarakas/credits-backend/internal/clock"
	"github.com/baharkarakas/credits-backend/internal/metrics"
	"github.com/baharkarakas/credits-backend/internal/models"
	"github.com/baharkarakas/credits-backend/internal/policy"
	repo "github.com/baharkarakas/credits-backend/internal/repository"
	"github.com/baharkarakas/credits-backend/internal/worker"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
	MaxBulkItems        = 1000

	kindFund = "FUND"
)

// CacheInvalidator is the part of the leaderboard the ledger needs after
// bulk writes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type LedgerParams struct {
	Tx       repo.TxManager
	Users    repo.Users
	Accounts repo.Accounts
	Entries  repo.Entries
	Policy   *policy.Policy
	Cache    CacheInvalidator
	Workers  *worker.Pool
	Clock    clock.Clock
	Log      *zap.Logger

	MaxAttempts   int
	RetryBackoff  time.Duration
	ExportMaxRows int
}

type LedgerService struct {
	tx       repo.TxManager
	users    repo.Users
	accounts repo.Accounts
	entries  repo.Entries
	policy   *policy.Policy
	cache    CacheInvalidator
	workers  *worker.Pool
	clock    clock.Clock
	log      *zap.Logger

	maxAttempts   int
	retryBackoff  time.Duration
	exportMaxRows int
}

func NewLedgerService(p LedgerParams) *LedgerService {
	s := &LedgerService{
		tx:            p.Tx,
		users:         p.Users,
		accounts:      p.Accounts,
		entries:       p.Entries,
		policy:        p.Policy,
		cache:         p.Cache,
		workers:       p.Workers,
		clock:         p.Clock,
		log:           p.Log,
		maxAttempts:   p.MaxAttempts,
		retryBackoff:  p.RetryBackoff,
		exportMaxRows: p.ExportMaxRows,
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("ledger.service")
	if s.policy == nil {
		s.policy = policy.MustNew()
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 3
	}
	if s.exportMaxRows <= 0 {
		s.exportMaxRows = 10000
	}
	return s
}

type AllocateRequest struct {
	ActorID     string         `json:"-"`
	TargetID    string         `json:"target_user_id"`
	Amount      int64          `json:"amount"`
	ReferenceID string         `json:"reference_id,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type RedeemRequest struct {
	ActorID     string         `json:"-"`
	Amount      int64          `json:"amount"`
	ReferenceID string         `json:"reference_id,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AdjustRequest drives both Refund (Delta must be positive) and Adjust.
type AdjustRequest struct {
	ActorID     string         `json:"-"`
	TargetID    string         `json:"target_user_id"`
	Delta       int64          `json:"delta"`
	ReferenceID string         `json:"reference_id,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type FundPoolRequest struct {
	ActorID string `json:"-"`
	SalesID string `json:"-"`
	Amount  int64  `json:"amount"`
}

// ---------- mutations ----------

func (s *LedgerService) Allocate(ctx context.Context, req AllocateRequest) (models.LedgerEntry, error) {
	kind := string(models.KindAllocate)
	if req.Amount <= 0 {
		return models.LedgerEntry{}, s.reject(kind, newErr(KindInvalidAmount, "amount must be greater than zero"))
	}
	if strings.TrimSpace(req.ActorID) == "" || strings.TrimSpace(req.TargetID) == "" {
		return models.LedgerEntry{}, s.reject(kind, newErr(KindInvalidRequest, "actor and target are required"))
	}

	var out models.LedgerEntry
	err := s.run(ctx, kind, func(ctx context.Context, tx repo.Tx) error {
		actor, err := tx.GetUser(ctx, req.ActorID)
		if err != nil {
			return translate(err, KindActorNotFound, "actor not found")
		}
		if !s.policy.CanAllocate(actor.Role) {
			return newErr(KindUnauthorized, fmt.Sprintf("role %s cannot allocate credits", actor.Role))
		}
		if req.ActorID == req.TargetID {
			return newErr(KindSelfAllocation, "cannot allocate credits to yourself")
		}
		if _, err := tx.GetUser(ctx, req.TargetID); err != nil {
			return translate(err, KindTargetNotFound, "target user not found")
		}

		if actor.Role == models.RoleSales {
			if err := s.debitPool(ctx, tx, actor.ID, req.Amount); err != nil {
				return err
			}
		}

		acc, err := tx.LockAccount(ctx, req.TargetID)
		if err != nil {
			return translate(err, KindTargetNotFound, "target account not found")
		}
		if err := checkCredit(acc.Balance, req.Amount); err != nil {
			return err
		}
		out, err = s.apply(ctx, tx, acc, req.Amount, models.LedgerEntry{
			Kind:        models.KindAllocate,
			Amount:      req.Amount,
			InitiatedBy: actor.ID,
			ReferenceID: optional(req.ReferenceID),
			Description: optional(req.Description),
			Metadata:    req.Metadata,
		})
		return err
	})
	if err != nil {
		return models.LedgerEntry{}, s.reject(kind, err)
	}
	s.committed(kind, out)
	return out, nil
}

// debitPool re-reads the SALES pool under lock so the sufficiency check and
// the write see the same row.
func (s *LedgerService) debitPool(ctx context.Context, tx repo.Tx, salesID string, amount int64) error {
	pool, err := tx.LockSalesPool(ctx, salesID)
	if errors.Is(err, repo.ErrNotFound) {
		return newErr(KindInsufficientBalance, "insufficient balance: sales pool is empty")
	}
	if err != nil {
		return err
	}
	if pool.Balance < amount {
		return newErr(KindInsufficientBalance,
			fmt.Sprintf("insufficient balance: pool holds %d, allocation needs %d", pool.Balance, amount))
	}
	pool.Balance -= amount
	if _, err := tx.UpdateSalesPool(ctx, pool); err != nil {
		return translate(err, KindInsufficientBalance, "insufficient balance")
	}
	return nil
}

func (s *LedgerService) Redeem(ctx context.Context, req RedeemRequest) (models.LedgerEntry, error) {
	kind := string(models.KindRedeem)
	if req.Amount <= 0 {
		return models.LedgerEntry{}, s.reject(kind, newErr(KindInvalidAmount, "amount must be greater than zero"))
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return models.LedgerEntry{}, s.reject(kind, newErr(KindInvalidRequest, "actor is required"))
	}

	var out models.LedgerEntry
	err := s.run(ctx, kind, func(ctx context.Context, tx repo.Tx) error {
		if _, err := tx.GetUser(ctx, req.ActorID); err != nil {
			return translate(err, KindActorNotFound, "actor not found")
		}
		acc, err := tx.LockAccount(ctx, req.ActorID)
		if err != nil {
			return translate(err, KindActorNotFound, "actor account not found")
		}
		if acc.Balance < req.Amount {
			return newErr(KindInsufficientCredits,
				fmt.Sprintf("insufficient credits: balance %d, requested %d", acc.Balance, req.Amount))
		}
		out, err = s.apply(ctx, tx, acc, -req.Amount, models.LedgerEntry{
			Kind:        models.KindRedeem,
			Amount:      req.Amount,
			InitiatedBy: req.ActorID,
			ReferenceID: optional(req.ReferenceID),
			Description: optional(req.Description),
			Metadata:    req.Metadata,
		})
		return err
	})
	if err != nil {
		return models.LedgerEntry{}, s.reject(kind, err)
	}
	s.committed(kind, out)
	return out, nil
}

// Refund credits Delta back to the target as a REFUND entry.
func (s *LedgerService) Refund(ctx context.Context, req AdjustRequest) (models.LedgerEntry, error) {
	if req.Delta <= 0 {
		return models.LedgerEntry{}, s.reject(string(models.KindRefund),
			newErr(KindInvalidAmount, "refund amount must be greater than zero"))
	}
	return s.adjust(ctx, models.KindRefund, req)
}

// Adjust applies a signed correction as an ADJUSTMENT entry.
func (s *LedgerService) Adjust(ctx context.Context, req AdjustRequest) (models.LedgerEntry, error) {
	if req.Delta == 0 {
		return models.LedgerEntry{}, s.reject(string(models.KindAdjustment),
			newErr(KindInvalidAmount, "adjustment must be non-zero"))
	}
	if req.Delta == math.MinInt64 {
		return models.LedgerEntry{}, s.reject(string(models.KindAdjustment),
			newErr(KindInvalidAmount, "adjustment out of range"))
	}
	return s.adjust(ctx, models.KindAdjustment, req)
}

func (s *LedgerService) adjust(ctx context.Context, kind models.EntryKind, req AdjustRequest) (models.LedgerEntry, error) {
	if strings.TrimSpace(req.ActorID) == "" || strings.TrimSpace(req.TargetID) == "" {
		return models.LedgerEntry{}, s.reject(string(kind), newErr(KindInvalidRequest, "actor and target are required"))
	}
	amount := req.Delta
	if amount < 0 {
		amount = -amount
	}

	var out models.LedgerEntry
	err := s.run(ctx, string(kind), func(ctx context.Context, tx repo.Tx) error {
		actor, err := tx.GetUser(ctx, req.ActorID)
		if err != nil {
			return translate(err, KindActorNotFound, "actor not found")
		}
		if !s.policy.CanAdjust(actor.Role) {
			return newErr(KindUnauthorized, fmt.Sprintf("role %s cannot adjust balances", actor.Role))
		}
		if _, err := tx.GetUser(ctx, req.TargetID); err != nil {
			return translate(err, KindTargetNotFound, "target user not found")
		}
		acc, err := tx.LockAccount(ctx, req.TargetID)
		if err != nil {
			return translate(err, KindTargetNotFound, "target account not found")
		}
		if req.Delta > 0 {
			if err := checkCredit(acc.Balance, req.Delta); err != nil {
				return err
			}
		} else if acc.Balance+req.Delta < 0 {
			return newErr(KindInsufficientCredits,
				fmt.Sprintf("insufficient credits: balance %d, adjustment %d", acc.Balance, req.Delta))
		}
		out, err = s.apply(ctx, tx, acc, req.Delta, models.LedgerEntry{
			Kind:        kind,
			Amount:      amount,
			InitiatedBy: actor.ID,
			ReferenceID: optional(req.ReferenceID),
			Description: optional(req.Description),
			Metadata:    req.Metadata,
		})
		return err
	})
	if err != nil {
		return models.LedgerEntry{}, s.reject(string(kind), err)
	}
	s.committed(string(kind), out)
	return out, nil
}

// FundSalesPool tops up the allocation budget of a SALES user.
func (s *LedgerService) FundSalesPool(ctx context.Context, req FundPoolRequest) (models.SalesPool, error) {
	if req.Amount <= 0 {
		return models.SalesPool{}, s.reject(kindFund, newErr(KindInvalidAmount, "amount must be greater than zero"))
	}

	var out models.SalesPool
	err := s.run(ctx, kindFund, func(ctx context.Context, tx repo.Tx) error {
		actor, err := tx.GetUser(ctx, req.ActorID)
		if err != nil {
			return translate(err, KindActorNotFound, "actor not found")
		}
		if !s.policy.CanFundPool(actor.Role) {
			return newErr(KindUnauthorized, fmt.Sprintf("role %s cannot fund sales pools", actor.Role))
		}
		sales, err := tx.GetUser(ctx, req.SalesID)
		if err != nil {
			return translate(err, KindTargetNotFound, "sales user not found")
		}
		if sales.Role != models.RoleSales {
			return newErr(KindInvalidRequest, "target user is not a SALES user")
		}
		if err := tx.EnsureSalesPool(ctx, sales.ID); err != nil {
			return err
		}
		pool, err := tx.LockSalesPool(ctx, sales.ID)
		if err != nil {
			return err
		}
		if err := checkCredit(pool.Balance, req.Amount); err != nil {
			return err
		}
		before := pool.Balance
		pool.Balance += req.Amount
		if out, err = tx.UpdateSalesPool(ctx, pool); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, models.AuditLog{
			EntityType: "sales_pool",
			EntityID:   &sales.ID,
			Action:     models.AuditPoolFunded,
			ActorID:    actor.ID,
			Details:    map[string]any{"amount": req.Amount, "balance_before": before, "balance_after": out.Balance},
			CreatedAt:  s.clock.Now(),
		})
	})
	if err != nil {
		return models.SalesPool{}, s.reject(kindFund, err)
	}
	metrics.LedgerOperations.WithLabelValues(kindFund).Inc()
	s.log.Info("sales pool funded",
		zap.String("sales_id", req.SalesID),
		zap.String("actor_id", req.ActorID),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance", out.Balance),
	)
	return out, nil
}

// checkCredit rejects a credit that would overflow the balance.
func checkCredit(balance, amount int64) error {
	if amount > math.MaxInt64-balance {
		return newErr(KindInvalidAmount,
			fmt.Sprintf("amount %d would overflow balance %d", amount, balance))
	}
	return nil
}

// apply writes the new balance and the matching entry in the caller's
// transaction.
func (s *LedgerService) apply(ctx context.Context, tx repo.Tx, acc models.Account, delta int64, e models.LedgerEntry) (models.LedgerEntry, error) {
	updated, err := tx.UpdateAccount(ctx, models.Account{
		UserID:  acc.UserID,
		Balance: acc.Balance + delta,
		Version: acc.Version,
	})
	if err != nil {
		return models.LedgerEntry{}, translate(err, KindInsufficientCredits, "insufficient credits")
	}

	now := s.clock.Now()
	e.ID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	e.UserID = acc.UserID
	e.BalanceBefore = acc.Balance
	e.BalanceAfter = updated.Balance
	e.Status = models.EntryCompleted
	e.CreatedAt = now
	return tx.AppendEntry(ctx, e)
}

// run executes fn in a transaction, retrying transient conflicts up to
// maxAttempts times. Exhaustion is reported as ConcurrentModification.
func (s *LedgerService) run(ctx context.Context, kind string, fn func(ctx context.Context, tx repo.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.tx.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repo.ErrTransient) {
			return err
		}
		metrics.LedgerRetries.WithLabelValues(kind).Inc()
		s.log.Debug("transient conflict", zap.String("kind", kind), zap.Int("attempt", attempt), zap.Error(err))

		if attempt < s.maxAttempts && s.retryBackoff > 0 {
			select {
			case <-time.After(time.Duration(attempt) * s.retryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	s.log.Warn("retries exhausted", zap.String("kind", kind), zap.Error(err))
	return newErr(KindConcurrentModification, "account is being modified concurrently, please retry")
}

func (s *LedgerService) reject(kind string, err error) error {
	var se *Error
	if !errors.As(err, &se) {
		s.log.Error("ledger store failure", zap.String("kind", kind), zap.Error(err))
		err = wrapErr(KindUnavailable, "ledger store unavailable", err)
	}
	metrics.LedgerFailures.WithLabelValues(kind, string(KindOf(err))).Inc()
	return err
}

func (s *LedgerService) committed(kind string, e models.LedgerEntry) {
	metrics.LedgerOperations.WithLabelValues(kind).Inc()
	s.log.Info("ledger entry committed",
		zap.String("entry_id", e.ID),
		zap.String("kind", kind),
		zap.String("user_id", e.UserID),
		zap.String("initiated_by", e.InitiatedBy),
		zap.Int64("amount", e.Amount),
		zap.Int64("balance_after", e.BalanceAfter),
	)
}

// translate turns repository sentinels into ledger errors. Transient and
// infrastructure errors pass through untouched.
func translate(err error, notFound Kind, msg string) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newErr(notFound, msg)
	case errors.Is(err, repo.ErrInsufficientFunds):
		return newErr(KindInsufficientCredits, "insufficient credits")
	}
	return err
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// ---------- bulk ----------

type BulkItem struct {
	TargetID    string `json:"target_user_id"`
	Amount      int64  `json:"amount"`
	ReferenceID string `json:"reference_id,omitempty"`
	Description string `json:"description,omitempty"`
}

type BulkResult struct {
	TargetID string              `json:"target_user_id"`
	Entry    *models.LedgerEntry `json:"entry,omitempty"`
	Kind     Kind                `json:"error_code,omitempty"`
	Message  string              `json:"error,omitempty"`
	Err      error               `json:"-"`
}

// BulkAllocate runs one Allocate per item on the worker pool. Items fail
// independently. The leaderboard snapshot is invalidated once afterwards.
func (s *LedgerService) BulkAllocate(ctx context.Context, actorID string, items []BulkItem) ([]BulkResult, error) {
	if len(items) == 0 || len(items) > MaxBulkItems {
		return nil, newErr(KindInvalidRequest, fmt.Sprintf("bulk allocation needs 1 to %d items", MaxBulkItems))
	}

	results := make([]BulkResult, len(items))
	var wg sync.WaitGroup
	for i, it := range items {
		results[i].TargetID = it.TargetID
		job := func() {
			defer wg.Done()
			e, err := s.Allocate(ctx, AllocateRequest{
				ActorID:     actorID,
				TargetID:    it.TargetID,
				Amount:      it.Amount,
				ReferenceID: it.ReferenceID,
				Description: it.Description,
			})
			if err != nil {
				results[i].Err = err
				results[i].Kind = KindOf(err)
				results[i].Message = Message(err)
				return
			}
			results[i].Entry = &e
		}

		wg.Add(1)
		if s.workers == nil {
			job()
			continue
		}
		if err := s.workers.Submit(ctx, job); err != nil {
			wg.Done()
			results[i].Err = wrapErr(KindUnavailable, "bulk allocation aborted", err)
			results[i].Kind = KindUnavailable
			results[i].Message = "bulk allocation aborted"
		}
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		}
	}
	if succeeded > 0 && s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.log.Warn("leaderboard invalidation after bulk allocation failed", zap.Error(err))
		}
	}
	s.log.Info("bulk allocation finished",
		zap.String("actor_id", actorID),
		zap.Int("items", len(items)),
		zap.Int("succeeded", succeeded),
	)
	return results, nil
}

// ---------- reads ----------

type HistoryQuery struct {
	UserID string
	Kind   *models.EntryKind
	From   *time.Time
	To     *time.Time
	// Page is 1-based; when set it overrides Offset.
	Page   int
	Offset int
	Limit  int
}

type HistoryPage struct {
	UserID         string               `json:"user_id"`
	Entries        []models.LedgerEntry `json:"entries"`
	Total          int                  `json:"total"`
	Offset         int                  `json:"offset"`
	Limit          int                  `json:"limit"`
	HasMore        bool                 `json:"has_more"`
	CurrentBalance int64                `json:"current_balance"`
}

func (q HistoryQuery) normalize() (HistoryQuery, error) {
	if strings.TrimSpace(q.UserID) == "" {
		return q, newErr(KindInvalidRequest, "user id is required")
	}
	if q.Limit == 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit < 1 || q.Limit > MaxHistoryLimit {
		return q, newErr(KindInvalidRequest, fmt.Sprintf("limit must be between 1 and %d", MaxHistoryLimit))
	}
	if q.Page < 0 || q.Offset < 0 {
		return q, newErr(KindInvalidRequest, "page and offset must not be negative")
	}
	if q.Page > 0 {
		q.Offset = (q.Page - 1) * q.Limit
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return q, newErr(KindInvalidRequest, "from must not be after to")
	}
	return q, nil
}

func (q HistoryQuery) filter() models.EntryFilter {
	return models.EntryFilter{Kind: q.Kind, From: q.From, To: q.To}
}

func (s *LedgerService) GetHistory(ctx context.Context, q HistoryQuery) (HistoryPage, error) {
	q, err := q.normalize()
	if err != nil {
		return HistoryPage{}, err
	}
	acc, err := s.accounts.Get(ctx, q.UserID)
	if err != nil {
		return HistoryPage{}, s.readErr(err, KindUserNotFound, "user not found")
	}
	entries, total, err := s.entries.Query(ctx, q.UserID, q.filter(), models.Page{Offset: q.Offset, Limit: q.Limit})
	if err != nil {
		return HistoryPage{}, s.readErr(err, KindUserNotFound, "user not found")
	}
	return HistoryPage{
		UserID:         q.UserID,
		Entries:        entries,
		Total:          total,
		Offset:         q.Offset,
		Limit:          q.Limit,
		HasMore:        q.Offset+q.Limit < total,
		CurrentBalance: acc.Balance,
	}, nil
}

var exportHeader = []string{
	"entry_id", "kind", "amount", "balance_before", "balance_after", "created_at", "initiated_by", "status",
}

// ExportHistory writes every matching entry as CSV, newest first, capped at
// the configured export size. Pagination fields of q are ignored.
func (s *LedgerService) ExportHistory(ctx context.Context, q HistoryQuery, w io.Writer) (int, error) {
	q.Limit, q.Page, q.Offset = DefaultHistoryLimit, 0, 0
	q, err := q.normalize()
	if err != nil {
		return 0, err
	}
	if _, err := s.accounts.Get(ctx, q.UserID); err != nil {
		return 0, s.readErr(err, KindUserNotFound, "user not found")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	n := 0
	err = s.entries.Stream(ctx, q.UserID, q.filter(), s.exportMaxRows, func(e models.LedgerEntry) error {
		n++
		return cw.Write([]string{
			e.ID,
			string(e.Kind),
			strconv.FormatInt(e.Amount, 10),
			strconv.FormatInt(e.BalanceBefore, 10),
			strconv.FormatInt(e.BalanceAfter, 10),
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
			e.InitiatedBy,
			string(e.Status),
		})
	})
	if err != nil {
		return n, s.readErr(err, KindUserNotFound, "user not found")
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("flush csv: %w", err)
	}
	return n, nil
}

type BalanceView struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	SalesPool *int64    `json:"sales_pool,omitempty"`
}

func (s *LedgerService) GetBalance(ctx context.Context, userID string) (BalanceView, error) {
	acc, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return BalanceView{}, s.readErr(err, KindUserNotFound, "user not found")
	}
	v := BalanceView{UserID: acc.UserID, Balance: acc.Balance, Version: acc.Version, UpdatedAt: acc.UpdatedAt}
	pool, err := s.accounts.GetSalesPool(ctx, userID)
	switch {
	case err == nil:
		v.SalesPool = &pool.Balance
	case !errors.Is(err, repo.ErrNotFound):
		return BalanceView{}, s.readErr(err, KindUserNotFound, "user not found")
	}
	return v, nil
}

func (s *LedgerService) readErr(err error, notFound Kind, msg string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return newErr(notFound, msg)
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.log.Error("ledger read failed", zap.Error(err))
	return wrapErr(KindUnavailable, "ledger store unavailable", err)
}
