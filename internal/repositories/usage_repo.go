package repositories

import (
	"context"
	"errors"

	"meridian/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UsageRepository manages UsageCounter rows inside a single shard. The
// transactional methods take a Querier because the quota ledger owns the
// transaction: the read-check-write sequence is the atomic unit, not the
// individual statements.
type UsageRepository interface {
	// GetForUpdate locks the counter row for the rest of the transaction.
	// Returns (nil, nil) when the counter does not exist yet.
	GetForUpdate(ctx context.Context, q Querier, tenantID uuid.UUID, feature string) (*models.UsageCounter, error)
	// InsertFirstUse writes the month's first accepted increment. Reports
	// false without error when a concurrent transaction inserted the row
	// first; the caller retries and will find the row locked.
	InsertFirstUse(ctx context.Context, q Querier, counter *models.UsageCounter) (bool, error)
	// Update overwrites the locked counter row.
	Update(ctx context.Context, q Querier, counter *models.UsageCounter) error

	Get(ctx context.Context, tenantID uuid.UUID, feature string) (*models.UsageCounter, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.UsageCounter, error)
}

type usageRepo struct {
	db DB
}

func NewUsageRepo(db DB) UsageRepository {
	return &usageRepo{db: db}
}

func (r *usageRepo) GetForUpdate(ctx context.Context, q Querier, tenantID uuid.UUID, feature string) (*models.UsageCounter, error) {
	counter := &models.UsageCounter{}
	query := `
		SELECT tenant_id, feature, count, reset_at, last_used_at
		FROM usage_counters
		WHERE tenant_id = $1 AND feature = $2
		FOR UPDATE
	`
	err := q.QueryRow(ctx, query, tenantID, feature).Scan(&counter.TenantID, &counter.Feature, &counter.Count, &counter.ResetAt, &counter.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return counter, nil
}

func (r *usageRepo) InsertFirstUse(ctx context.Context, q Querier, counter *models.UsageCounter) (bool, error) {
	query := `
		INSERT INTO usage_counters (tenant_id, feature, count, reset_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, feature) DO NOTHING
	`
	tag, err := q.Exec(ctx, query, counter.TenantID, counter.Feature, counter.Count, counter.ResetAt, counter.LastUsedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *usageRepo) Update(ctx context.Context, q Querier, counter *models.UsageCounter) error {
	query := `
		UPDATE usage_counters
		SET count = $1, reset_at = $2, last_used_at = $3
		WHERE tenant_id = $4 AND feature = $5
	`
	_, err := q.Exec(ctx, query, counter.Count, counter.ResetAt, counter.LastUsedAt, counter.TenantID, counter.Feature)
	return err
}

func (r *usageRepo) Get(ctx context.Context, tenantID uuid.UUID, feature string) (*models.UsageCounter, error) {
	counter := &models.UsageCounter{}
	query := `
		SELECT tenant_id, feature, count, reset_at, last_used_at
		FROM usage_counters
		WHERE tenant_id = $1 AND feature = $2
	`
	err := r.db.QueryRow(ctx, query, tenantID, feature).Scan(&counter.TenantID, &counter.Feature, &counter.Count, &counter.ResetAt, &counter.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return counter, nil
}

func (r *usageRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.UsageCounter, error) {
	query := `
		SELECT tenant_id, feature, count, reset_at, last_used_at
		FROM usage_counters
		WHERE tenant_id = $1
		ORDER BY feature
	`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []*models.UsageCounter
	for rows.Next() {
		counter := &models.UsageCounter{}
		if err := rows.Scan(&counter.TenantID, &counter.Feature, &counter.Count, &counter.ResetAt, &counter.LastUsedAt); err != nil {
			return nil, err
		}
		counters = append(counters, counter)
	}
	return counters, rows.Err()
}
