package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baharkarakas/credits-backend/internal/models"
)

type auditLogsRepo struct{ pool *pgxpool.Pool }

func insertAudit(ctx context.Context, q querier, l models.AuditLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	var actor *string
	if l.ActorID != "" {
		actor = &l.ActorID
	}
	_, err := q.Exec(ctx, `
		INSERT INTO audit_logs (id, entity_type, entity_id, action, actor_id, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, l.ID, l.EntityType, l.EntityID, l.Action, actor, l.Details)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", classify(err))
	}
	return nil
}

func (r *auditLogsRepo) Create(ctx context.Context, l models.AuditLog) error {
	return insertAudit(ctx, r.pool, l)
}

func (r *auditLogsRepo) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, action, coalesce(actor_id, ''), details, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.EntityType, &l.EntityID, &l.Action, &l.ActorID, &l.Details, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
