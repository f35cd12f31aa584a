package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baharkarakas/credits-backend/internal/models"
)

type accountsRepo struct{ pool *pgxpool.Pool }

func (r *accountsRepo) Get(ctx context.Context, userID string) (models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT a.user_id, a.balance, a.version, a.updated_at
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		WHERE a.user_id = $1 AND u.deleted_at IS NULL
	`, userID).Scan(&a.UserID, &a.Balance, &a.Version, &a.UpdatedAt)
	if err != nil {
		return models.Account{}, fmt.Errorf("get account: %w", classify(err))
	}
	return a, nil
}

func (r *accountsRepo) GetSalesPool(ctx context.Context, userID string) (models.SalesPool, error) {
	var p models.SalesPool
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, balance, version, updated_at
		FROM sales_pools
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.Balance, &p.Version, &p.UpdatedAt)
	if err != nil {
		return models.SalesPool{}, fmt.Errorf("get sales pool: %w", classify(err))
	}
	return p, nil
}

func (r *accountsRepo) Top(ctx context.Context, depth int) ([]models.Ranking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.user_id, u.display_name, a.balance
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		WHERE a.balance > 0 AND u.deleted_at IS NULL
		ORDER BY a.balance DESC, a.user_id ASC
		LIMIT $1
	`, depth)
	if err != nil {
		return nil, fmt.Errorf("top accounts: %w", classify(err))
	}
	defer rows.Close()

	out := make([]models.Ranking, 0, depth)
	for rows.Next() {
		rk := models.Ranking{Rank: len(out) + 1}
		if err := rows.Scan(&rk.UserID, &rk.DisplayName, &rk.Credits); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		out = append(out, rk)
	}
	return out, rows.Err()
}

func (r *accountsRepo) RankOf(ctx context.Context, userID string) (models.RankPosition, error) {
	var p models.RankPosition
	err := r.pool.QueryRow(ctx, `
		WITH ranked AS (
			SELECT a.user_id,
			       a.balance,
			       ROW_NUMBER() OVER (ORDER BY a.balance DESC, a.user_id ASC) AS rank,
			       COUNT(*) OVER () AS total
			FROM accounts a
			JOIN users u ON u.id = a.user_id
			WHERE a.balance > 0 AND u.deleted_at IS NULL
		)
		SELECT user_id, rank, balance, total FROM ranked WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.Rank, &p.Balance, &p.Total)
	if err != nil {
		return models.RankPosition{}, fmt.Errorf("rank of: %w", classify(err))
	}
	return p, nil
}
