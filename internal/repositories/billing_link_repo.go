package repositories

import (
	"context"
	"errors"

	"meridian/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BillingLinkRepository manages BillingCustomerLinks inside a single shard.
type BillingLinkRepository interface {
	// Get returns (nil, nil) when the tenant is not externally metered.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.BillingCustomerLink, error)
	Set(ctx context.Context, link *models.BillingCustomerLink) error
	Delete(ctx context.Context, tenantID uuid.UUID) error
}

type billingLinkRepo struct {
	db DB
}

func NewBillingLinkRepo(db DB) BillingLinkRepository {
	return &billingLinkRepo{db: db}
}

func (r *billingLinkRepo) Get(ctx context.Context, tenantID uuid.UUID) (*models.BillingCustomerLink, error) {
	link := &models.BillingCustomerLink{}
	query := `
		SELECT tenant_id, customer_id, created_at
		FROM billing_customer_links
		WHERE tenant_id = $1
	`
	err := r.db.QueryRow(ctx, query, tenantID).Scan(&link.TenantID, &link.CustomerID, &link.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (r *billingLinkRepo) Set(ctx context.Context, link *models.BillingCustomerLink) error {
	query := `
		INSERT INTO billing_customer_links (tenant_id, customer_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET customer_id = EXCLUDED.customer_id
	`
	_, err := r.db.Exec(ctx, query, link.TenantID, link.CustomerID)
	return err
}

func (r *billingLinkRepo) Delete(ctx context.Context, tenantID uuid.UUID) error {
	query := `DELETE FROM billing_customer_links WHERE tenant_id = $1`
	_, err := r.db.Exec(ctx, query, tenantID)
	return err
}
