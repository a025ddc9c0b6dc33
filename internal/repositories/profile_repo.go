package repositories

import (
	"context"

	"meridian/internal/models"

	"github.com/google/uuid"
)

// ProfileRepository manages RegionalProfiles inside a single shard.
type ProfileRepository interface {
	Upsert(ctx context.Context, profile *models.RegionalProfile) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.RegionalProfile, error)
}

type profileRepo struct {
	db DB
}

func NewProfileRepo(db DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) Upsert(ctx context.Context, profile *models.RegionalProfile) error {
	query := `
		INSERT INTO regional_profiles (user_id, tenant_id, role, display_name, verified, verification_method, verified_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET role = EXCLUDED.role,
		    display_name = EXCLUDED.display_name,
		    verified = EXCLUDED.verified,
		    verification_method = EXCLUDED.verification_method,
		    verified_at = EXCLUDED.verified_at,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		profile.UserID, profile.TenantID, profile.Role, profile.DisplayName,
		profile.Verification.Verified, profile.Verification.Method, profile.Verification.VerifiedAt)
	return err
}

func (r *profileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.RegionalProfile, error) {
	profile := &models.RegionalProfile{}
	query := `
		SELECT user_id, tenant_id, role, display_name, verified, verification_method, verified_at, updated_at
		FROM regional_profiles
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&profile.UserID, &profile.TenantID, &profile.Role, &profile.DisplayName,
		&profile.Verification.Verified, &profile.Verification.Method, &profile.Verification.VerifiedAt,
		&profile.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return profile, nil
}
