package models

import "time"

type AuditLog struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entity_type"`
	EntityID   *string        `json:"entity_id"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actor_id,omitempty"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}

const (
	AuditRoleChanged    = "role_changed"
	AuditPoolFunded     = "sales_pool_funded"
	AuditUserRegistered = "user_registered"
)
