package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baharkarakas/credits-backend/internal/models"
	"github.com/baharkarakas/credits-backend/internal/repository"
)

type usersRepo struct{ pool *pgxpool.Pool }

func NewUsers(pool *pgxpool.Pool) repository.Users {
	return &usersRepo{pool: pool}
}

const userColumns = `id, username, display_name, email, password_hash, role, created_at, updated_at, deleted_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.PasswordHash,
		&u.Role, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	return u, err
}

func getUser(ctx context.Context, q querier, id string) (models.User, error) {
	u, err := scanUser(q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", classify(err))
	}
	return u, nil
}

func (r *usersRepo) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out, err := scanUser(tx.QueryRow(ctx, `
		INSERT INTO users (id, username, display_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		u.ID, u.Username, u.DisplayName, u.Email, u.PasswordHash, u.Role,
	))
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", classify(err))
	}
	if _, err := tx.Exec(ctx, `INSERT INTO accounts (user_id) VALUES ($1)`, out.ID); err != nil {
		return models.User{}, fmt.Errorf("open account: %w", classify(err))
	}
	if out.Role == models.RoleSales {
		if err := (&pgTx{q: tx}).EnsureSalesPool(ctx, out.ID); err != nil {
			return models.User{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return models.User{}, fmt.Errorf("commit tx: %w", classify(err))
	}
	return out, nil
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	return getUser(ctx, r.pool, id)
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`, email))
	if err != nil {
		return models.User{}, fmt.Errorf("get user by email: %w", classify(err))
	}
	return u, nil
}

func (r *usersRepo) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC, id ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *usersRepo) UpdateRole(ctx context.Context, id string, role models.Role) (models.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	u, err := scanUser(tx.QueryRow(ctx, `
		UPDATE users SET role = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+userColumns, id, role))
	if err != nil {
		return models.User{}, fmt.Errorf("update role: %w", classify(err))
	}
	if role == models.RoleSales {
		if err := (&pgTx{q: tx}).EnsureSalesPool(ctx, id); err != nil {
			return models.User{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return models.User{}, fmt.Errorf("commit tx: %w", classify(err))
	}
	return u, nil
}

func (r *usersRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete user: %w", repository.ErrNotFound)
	}
	return nil
}
