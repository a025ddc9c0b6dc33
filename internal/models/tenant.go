package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a billable organization. It lives inside its home shard and
// its shard never changes after creation: region is immutable
// post-provisioning.
type Tenant struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	Name      string            `json:"name" db:"name"`
	Plan      string            `json:"plan" db:"plan"`
	OwnerID   uuid.UUID         `json:"owner_id" db:"owner_id"`
	Region    string            `json:"region" db:"region"`
	Settings  map[string]string `json:"settings" db:"settings"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}
