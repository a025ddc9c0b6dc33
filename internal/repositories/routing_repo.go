package repositories

import (
	"context"

	"meridian/internal/models"

	"github.com/google/uuid"
)

// RoutingRepository manages RoutingRecords in the global store.
type RoutingRepository interface {
	Upsert(ctx context.Context, record *models.RoutingRecord) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.RoutingRecord, error)
	GetShardForTenant(ctx context.Context, tenantID uuid.UUID) (string, error)
	UpdateRole(ctx context.Context, userID uuid.UUID, role string) error
}

type routingRepo struct {
	db DB
}

func NewRoutingRepo(db DB) RoutingRepository {
	return &routingRepo{db: db}
}

// Upsert inserts the routing record or merges into an existing one. Region
// and shard are deliberately excluded from the update list: once a user is
// homed to a shard the record never moves, even if provisioning is re-run
// with a different region.
func (r *routingRepo) Upsert(ctx context.Context, record *models.RoutingRecord) error {
	query := `
		INSERT INTO routing_records (user_id, email, region, shard_id, tenant_id, role, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET email = EXCLUDED.email, role = EXCLUDED.role, updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, record.UserID, record.Email, record.Region, record.ShardID, record.TenantID, record.Role)
	return err
}

func (r *routingRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.RoutingRecord, error) {
	record := &models.RoutingRecord{}
	query := `
		SELECT user_id, email, region, shard_id, tenant_id, role, updated_at
		FROM routing_records
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(&record.UserID, &record.Email, &record.Region, &record.ShardID, &record.TenantID, &record.Role, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetShardForTenant resolves a tenant's home shard from any of its routing
// records. Every record for a tenant carries the same shard id.
func (r *routingRepo) GetShardForTenant(ctx context.Context, tenantID uuid.UUID) (string, error) {
	var shardID string
	query := `
		SELECT shard_id
		FROM routing_records
		WHERE tenant_id = $1
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, tenantID).Scan(&shardID)
	if err != nil {
		return "", err
	}
	return shardID, nil
}

func (r *routingRepo) UpdateRole(ctx context.Context, userID uuid.UUID, role string) error {
	query := `
		UPDATE routing_records
		SET role = $1, updated_at = NOW()
		WHERE user_id = $2
	`
	_, err := r.db.Exec(ctx, query, role, userID)
	return err
}
