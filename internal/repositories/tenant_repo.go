package repositories

import (
	"context"

	"meridian/internal/models"

	"github.com/google/uuid"
)

// TenantRepository manages Tenant records inside a single shard.
type TenantRepository interface {
	// CreateIfAbsent inserts the tenant and reports whether a row was
	// written. First-writer-wins: an existing tenant's plan and settings
	// are never reset by a re-run.
	CreateIfAbsent(ctx context.Context, tenant *models.Tenant) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	UpdatePlan(ctx context.Context, id uuid.UUID, plan string) error
	// GetPlan reads the tenant's plan through q so the quota ledger can
	// include it in its transaction.
	GetPlan(ctx context.Context, q Querier, id uuid.UUID) (string, error)
	// ListIDs returns every tenant id on this shard, for background jobs
	// that sweep the shard.
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

type tenantRepo struct {
	db DB
}

func NewTenantRepo(db DB) TenantRepository {
	return &tenantRepo{db: db}
}

func (r *tenantRepo) CreateIfAbsent(ctx context.Context, tenant *models.Tenant) (bool, error) {
	query := `
		INSERT INTO tenants (id, name, plan, owner_id, region, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, tenant.ID, tenant.Name, tenant.Plan, tenant.OwnerID, tenant.Region, tenant.Settings)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *tenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	query := `
		SELECT id, name, plan, owner_id, region, settings, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&tenant.ID, &tenant.Name, &tenant.Plan, &tenant.OwnerID, &tenant.Region, &tenant.Settings, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

func (r *tenantRepo) UpdatePlan(ctx context.Context, id uuid.UUID, plan string) error {
	query := `
		UPDATE tenants
		SET plan = $1, updated_at = NOW()
		WHERE id = $2
	`
	_, err := r.db.Exec(ctx, query, plan, id)
	return err
}

func (r *tenantRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT id FROM tenants ORDER BY created_at`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *tenantRepo) GetPlan(ctx context.Context, q Querier, id uuid.UUID) (string, error) {
	var plan string
	query := `SELECT plan FROM tenants WHERE id = $1`
	err := q.QueryRow(ctx, query, id).Scan(&plan)
	if err != nil {
		return "", err
	}
	return plan, nil
}
