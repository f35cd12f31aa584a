package postgres

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	repo "github.com/baharkarakas/credits-backend/internal/repository"
)

type Repositories struct {
	Tx        repo.TxManager
	Users     repo.Users
	Accounts  repo.Accounts
	Entries   repo.Entries
	Snapshots repo.Snapshots
	AuditLogs repo.AuditLogs
}

// NewRepositories wires every store over one pool. lockTimeout bounds how
// long a ledger transaction waits for a row lock.
func NewRepositories(pool *pgxpool.Pool, lockTimeout time.Duration) Repositories {
	return Repositories{
		Tx:        &txManager{pool: pool, lockTimeout: lockTimeout},
		Users:     &usersRepo{pool},
		Accounts:  &accountsRepo{pool},
		Entries:   &entriesRepo{pool},
		Snapshots: &snapshotsRepo{pool},
		AuditLogs: &auditLogsRepo{pool},
	}
}
