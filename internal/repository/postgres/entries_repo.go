package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baharkarakas/credits-backend/internal/models"
)

type entriesRepo struct{ pool *pgxpool.Pool }

const entryColumns = `id, user_id, kind, amount, balance_before, balance_after, status,
	initiated_by, reference_id, description, metadata, created_at`

func scanEntry(row pgx.Row) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.UserID, &e.Kind, &e.Amount, &e.BalanceBefore, &e.BalanceAfter, &e.Status,
		&e.InitiatedBy, &e.ReferenceID, &e.Description, &e.Metadata, &e.CreatedAt)
	return e, err
}

// whereClause renders the filter for user_id = $1 plus optional bounds.
func whereClause(userID string, f models.EntryFilter) (string, []any) {
	conds := []string{"user_id = $1"}
	args := []any{userID}
	if f.Kind != nil {
		args = append(args, string(*f.Kind))
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func (r *entriesRepo) Query(ctx context.Context, userID string, f models.EntryFilter, p models.Page) ([]models.LedgerEntry, int, error) {
	where, args := whereClause(userID, f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM ledger_entries WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", classify(err))
	}

	args = append(args, p.Limit, p.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM ledger_entries
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, entryColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query entries: %w", classify(err))
	}
	defer rows.Close()

	out := make([]models.LedgerEntry, 0, p.Limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("query entries: %w", err)
	}
	return out, total, nil
}

func (r *entriesRepo) Stream(ctx context.Context, userID string, f models.EntryFilter, max int, fn func(models.LedgerEntry) error) error {
	where, args := whereClause(userID, f)
	args = append(args, max)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM ledger_entries
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`, entryColumns, where, len(args)), args...)
	if err != nil {
		return fmt.Errorf("stream entries: %w", classify(err))
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan entry: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}
