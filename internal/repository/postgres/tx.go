package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baharkarakas/credits-backend/internal/models"
	"github.com/baharkarakas/credits-backend/internal/repository"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txManager struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// WithTx runs fn in a read-committed transaction. Row locks taken through
// Tx serialize writers on the same account; lock_timeout bounds the wait.
func (m *txManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}

	if m.lockTimeout > 0 {
		ms := fmt.Sprintf("%dms", m.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("set lock_timeout: %w", classify(err))
		}
	}

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback after fn error: %v (fn err: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}
	return nil
}

type pgTx struct{ q querier }

func (t *pgTx) GetUser(ctx context.Context, id string) (models.User, error) {
	return getUser(ctx, t.q, id)
}

func (t *pgTx) EnsureSalesPool(ctx context.Context, userID string) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO sales_pools (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("ensure sales pool: %w", classify(err))
	}
	return nil
}

func (t *pgTx) LockSalesPool(ctx context.Context, userID string) (models.SalesPool, error) {
	var p models.SalesPool
	err := t.q.QueryRow(ctx, `
		SELECT user_id, balance, version, updated_at
		FROM sales_pools
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&p.UserID, &p.Balance, &p.Version, &p.UpdatedAt)
	if err != nil {
		return models.SalesPool{}, fmt.Errorf("lock sales pool: %w", classify(err))
	}
	return p, nil
}

func (t *pgTx) UpdateSalesPool(ctx context.Context, p models.SalesPool) (models.SalesPool, error) {
	var out models.SalesPool
	err := t.q.QueryRow(ctx, `
		UPDATE sales_pools
		SET balance = $2, version = version + 1, updated_at = now()
		WHERE user_id = $1 AND version = $3
		RETURNING user_id, balance, version, updated_at
	`, p.UserID, p.Balance, p.Version).Scan(&out.UserID, &out.Balance, &out.Version, &out.UpdatedAt)
	if err != nil {
		err = classify(err)
		if errors.Is(err, repository.ErrNotFound) {
			return models.SalesPool{}, fmt.Errorf("update sales pool: %w", repository.ErrTransient)
		}
		return models.SalesPool{}, fmt.Errorf("update sales pool: %w", err)
	}
	return out, nil
}

func (t *pgTx) LockAccount(ctx context.Context, userID string) (models.Account, error) {
	var a models.Account
	err := t.q.QueryRow(ctx, `
		SELECT user_id, balance, version, updated_at
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&a.UserID, &a.Balance, &a.Version, &a.UpdatedAt)
	if err != nil {
		return models.Account{}, fmt.Errorf("lock account: %w", classify(err))
	}
	return a, nil
}

func (t *pgTx) UpdateAccount(ctx context.Context, a models.Account) (models.Account, error) {
	var out models.Account
	err := t.q.QueryRow(ctx, `
		UPDATE accounts
		SET balance = $2, version = version + 1, updated_at = now()
		WHERE user_id = $1 AND version = $3
		RETURNING user_id, balance, version, updated_at
	`, a.UserID, a.Balance, a.Version).Scan(&out.UserID, &out.Balance, &out.Version, &out.UpdatedAt)
	if err != nil {
		err = classify(err)
		if errors.Is(err, repository.ErrNotFound) {
			return models.Account{}, fmt.Errorf("update account: %w", repository.ErrTransient)
		}
		return models.Account{}, fmt.Errorf("update account: %w", err)
	}
	return out, nil
}

func (t *pgTx) AppendEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error) {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	if e.Status == "" {
		e.Status = models.EntryCompleted
	}
	err := t.q.QueryRow(ctx, `
		INSERT INTO ledger_entries (
			id, user_id, kind, amount, balance_before, balance_after,
			status, initiated_by, reference_id, description, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`, e.ID, e.UserID, e.Kind, e.Amount, e.BalanceBefore, e.BalanceAfter,
		e.Status, e.InitiatedBy, e.ReferenceID, e.Description, meta, e.CreatedAt,
	).Scan(&e.CreatedAt)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("append entry: %w", classify(err))
	}
	return e, nil
}

func (t *pgTx) AppendAudit(ctx context.Context, l models.AuditLog) error {
	return insertAudit(ctx, t.q, l)
}
