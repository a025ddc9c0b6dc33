package models

import (
	"time"

	"github.com/google/uuid"
)

// RoutingRecord is the global entry point that tells every other component
// which shard holds a user's data. It lives only in the global store and is
// reachable without knowing the user's region. Created once at provisioning,
// updated on role change, never deleted while the identity exists.
type RoutingRecord struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Email     string    `json:"email" db:"email"`
	Region    string    `json:"region" db:"region"`
	ShardID   string    `json:"shard_id" db:"shard_id"`
	TenantID  uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Role      string    `json:"role" db:"role"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
