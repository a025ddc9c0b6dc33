package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageCounter tracks accepted invocations of a metered feature for one
// tenant in the current billing month. Rows are created lazily on first
// use each month and are mutated only by the quota ledger's atomic
// check-then-increment; ResetAt marks the first instant of the *next*
// billing month and resets are applied lazily on the next read.
type UsageCounter struct {
	TenantID   uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Feature    string    `json:"feature" db:"feature"`
	Count      int       `json:"count" db:"count"`
	ResetAt    time.Time `json:"reset_at" db:"reset_at"`
	LastUsedAt time.Time `json:"last_used_at" db:"last_used_at"`
}

// BillingCustomerLink maps a tenant to its customer record in the external
// metered-billing provider. Tenants without a link are never metered
// externally; usage is still tracked locally for display purposes.
type BillingCustomerLink struct {
	TenantID   uuid.UUID `json:"tenant_id" db:"tenant_id"`
	CustomerID string    `json:"customer_id" db:"customer_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
