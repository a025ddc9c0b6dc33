package models

import (
	"time"

	"github.com/google/uuid"
)

// RegionalProfile mirrors the identity attributes needed for in-region
// authorization. It lives inside the user's home shard and is eventually
// consistent with the global RoutingRecord: readers must tolerate a
// missing profile by treating the account as not yet fully provisioned.
type RegionalProfile struct {
	UserID       uuid.UUID    `json:"user_id" db:"user_id"`
	TenantID     uuid.UUID    `json:"tenant_id" db:"tenant_id"`
	Role         string       `json:"role" db:"role"`
	DisplayName  string       `json:"display_name" db:"display_name"`
	Verification Verification `json:"verification"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// Verification marks how an account was verified.
type Verification struct {
	Verified   bool      `json:"verified" db:"verified"`
	Method     string    `json:"method" db:"verification_method"`
	VerifiedAt time.Time `json:"verified_at" db:"verified_at"`
}
