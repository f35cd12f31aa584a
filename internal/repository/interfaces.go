package repository

import (
	"context"
	"errors"

	"github.com/baharkarakas/credits-backend/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrTransient marks a conflict that is safe to retry: serialization
	// failure, deadlock, lock timeout or a stale version.
	ErrTransient         = errors.New("transient storage conflict")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicate         = errors.New("duplicate")
)

// TxManager runs fn inside one storage transaction. It commits when fn
// returns nil and rolls back otherwise.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the unit of work of a single ledger operation. Lock* methods hold
// the row until the surrounding transaction ends. Update* methods expect
// the version returned by the matching Lock* call.
type Tx interface {
	GetUser(ctx context.Context, id string) (models.User, error)

	EnsureSalesPool(ctx context.Context, userID string) error
	LockSalesPool(ctx context.Context, userID string) (models.SalesPool, error)
	UpdateSalesPool(ctx context.Context, p models.SalesPool) (models.SalesPool, error)

	LockAccount(ctx context.Context, userID string) (models.Account, error)
	UpdateAccount(ctx context.Context, a models.Account) (models.Account, error)

	AppendEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error)
	AppendAudit(ctx context.Context, l models.AuditLog) error
}

type Users interface {
	// Create stores the user and opens its zero balance account (and a
	// sales pool for SALES users) in one transaction.
	Create(ctx context.Context, u models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role) (models.User, error)
	// Delete is a soft delete; accounts and entries are kept.
	Delete(ctx context.Context, id string) error
}

type Accounts interface {
	Get(ctx context.Context, userID string) (models.Account, error)
	GetSalesPool(ctx context.Context, userID string) (models.SalesPool, error)
	// Top returns accounts with a positive balance ordered by balance
	// descending, then user id ascending.
	Top(ctx context.Context, depth int) ([]models.Ranking, error)
	// RankOf returns ErrNotFound when the user holds no credits.
	RankOf(ctx context.Context, userID string) (models.RankPosition, error)
}

// Entries is the read side of the transaction log. Writes go through Tx.
type Entries interface {
	Query(ctx context.Context, userID string, f models.EntryFilter, p models.Page) ([]models.LedgerEntry, int, error)
	// Stream visits at most max matching entries, newest first.
	Stream(ctx context.Context, userID string, f models.EntryFilter, max int, fn func(models.LedgerEntry) error) error
}

type Snapshots interface {
	Get(ctx context.Context, key string) (models.LeaderboardSnapshot, error)
	Put(ctx context.Context, s models.LeaderboardSnapshot) error
	Delete(ctx context.Context, key string) error
	Hit(ctx context.Context, key string) error
	Count(ctx context.Context) (int, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditLog, error)
}
