package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"meridian/internal/caching"
	"meridian/internal/config"
	"meridian/internal/models"
	"meridian/internal/repositories"
	"meridian/internal/sharding"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// tenantNamespace is the fixed namespace for deriving tenant ids from
// identity ids. Deterministic derivation means a re-run of provisioning
// always targets the same tenant record instead of creating duplicates.
var tenantNamespace = uuid.MustParse("6f1c9c4e-2c37-4b44-9a6b-6f0f4b2b8a11")

// TenantIDFor derives the tenant id owned by an identity.
func TenantIDFor(userID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(tenantNamespace, []byte("tenant:"+userID.String()))
}

// ProvisionRequest is the provisioning entry point payload. Exactly one of
// Password or IDToken is expected; IDToken is an opaque credential already
// verified against the external identity provider by the caller.
type ProvisionRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	IDToken    string `json:"id_token"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Region     string `json:"region"`
	TenantName string `json:"tenant_name"`
}

// ProvisionResult reports the identities created or located by the saga.
type ProvisionResult struct {
	IdentityID uuid.UUID             `json:"identity_id"`
	TenantID   uuid.UUID             `json:"tenant_id"`
	Region     string                `json:"region"`
	ShardID    string                `json:"shard_id"`
	Tokens     *models.TokenResponse `json:"tokens"`
}

// ProvisioningService runs the provisioning saga: identity, global routing
// record, regional profile and tenant, identity claims. There is no
// cross-store transaction; every step is an idempotent upsert and the
// whole call is safe to retry from the top. A failure names the step that
// failed via StepError.
type ProvisioningService interface {
	Provision(ctx context.Context, req *ProvisionRequest) (*ProvisionResult, error)
}

type provisioningService struct {
	cfg          *config.Config
	registry     *sharding.Registry
	selector     *sharding.Selector
	identityRepo repositories.IdentityRepository
	routingRepo  repositories.RoutingRepository
	authSvc      AuthService
	cacheSvc     caching.CacheService
	now          func() time.Time
}

func NewProvisioningService(
	cfg *config.Config,
	registry *sharding.Registry,
	selector *sharding.Selector,
	identityRepo repositories.IdentityRepository,
	routingRepo repositories.RoutingRepository,
	authSvc AuthService,
	cacheSvc caching.CacheService,
) ProvisioningService {
	return &provisioningService{
		cfg:          cfg,
		registry:     registry,
		selector:     selector,
		identityRepo: identityRepo,
		routingRepo:  routingRepo,
		authSvc:      authSvc,
		cacheSvc:     cacheSvc,
		now:          time.Now,
	}
}

func (s *provisioningService) Provision(ctx context.Context, req *ProvisionRequest) (*ProvisionResult, error) {
	if req.Email == "" {
		return nil, fmt.Errorf("email is required")
	}

	// Step 1: strict region validation and shard resolution. Unlike the
	// registry's runtime fallback, provisioning refuses unknown regions.
	if !s.cfg.IsSupportedRegion(req.Region) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRegion, req.Region)
	}
	region := req.Region
	shardID := s.registry.ShardFor(region)

	// Step 2: locate-or-create the identity. Re-running provisioning for
	// an existing email proceeds with the existing identity.
	user, err := s.locateOrCreateIdentity(ctx, req)
	if err != nil {
		return nil, &StepError{Step: StepIdentity, Err: err}
	}

	// Step 3: derive the tenant id deterministically from the identity.
	tenantID := TenantIDFor(user.ID)
	role := "owner"

	// Step 4: upsert the global routing record. If one already exists,
	// its region and shard win: a tenant's shard never changes after
	// creation, regardless of the region on this request.
	existing, err := s.routingRepo.GetByUserID(ctx, user.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, &StepError{Step: StepRouting, Err: err}
	}
	if existing != nil {
		if existing.Region != region {
			log.Printf("Provisioning for %s requested region %s but identity is homed in %s; keeping %s", user.ID, region, existing.Region, existing.Region)
		}
		region = existing.Region
		shardID = existing.ShardID
		tenantID = existing.TenantID
		role = existing.Role
	}
	record := &models.RoutingRecord{
		UserID:   user.ID,
		Email:    user.Email,
		Region:   region,
		ShardID:  shardID,
		TenantID: tenantID,
		Role:     role,
	}
	if err := s.routingRepo.Upsert(ctx, record); err != nil {
		return nil, &StepError{Step: StepRouting, Err: err}
	}
	s.cacheSvc.DeleteRoutingRecord(ctx, user.ID)

	// Regional writes need the shard handle.
	conn, err := s.selector.ConnectionFor(ctx, shardID)
	if err != nil {
		return nil, &StepError{Step: StepShard, Err: err}
	}

	// Step 5: upsert the regional profile, marked system-verified.
	profile := &models.RegionalProfile{
		UserID:      user.ID,
		TenantID:    tenantID,
		Role:        role,
		DisplayName: fmt.Sprintf("%s %s", req.FirstName, req.LastName),
		Verification: models.Verification{
			Verified:   true,
			Method:     "system",
			VerifiedAt: s.now(),
		},
	}
	if err := conn.Profiles.Upsert(ctx, profile); err != nil {
		return nil, &StepError{Step: StepProfile, Err: err}
	}

	// Step 6: create the tenant record only if absent. First-writer-wins:
	// a re-run never resets an existing tenant's plan or settings.
	tenantName := req.TenantName
	if tenantName == "" {
		tenantName = fmt.Sprintf("%s %s", req.FirstName, req.LastName)
	}
	tenant := &models.Tenant{
		ID:       tenantID,
		Name:     tenantName,
		Plan:     s.cfg.MostRestrictivePlan(),
		OwnerID:  user.ID,
		Region:   region,
		Settings: map[string]string{},
	}
	created, err := conn.Tenants.CreateIfAbsent(ctx, tenant)
	if err != nil {
		return nil, &StepError{Step: StepTenant, Err: err}
	}
	if created {
		log.Printf("Provisioned tenant %s in region %s (shard %s)", tenantID, region, shardID)
	}

	// Step 7: issue identity claims so subsequent requests carry routing
	// information without a lookup.
	tokens, err := s.authSvc.IssueClaims(ctx, user.ID, tenantID, region, role)
	if err != nil {
		return nil, &StepError{Step: StepClaims, Err: err}
	}

	return &ProvisionResult{
		IdentityID: user.ID,
		TenantID:   tenantID,
		Region:     region,
		ShardID:    shardID,
		Tokens:     tokens,
	}, nil
}

func (s *provisioningService) locateOrCreateIdentity(ctx context.Context, req *ProvisionRequest) (*models.User, error) {
	user, err := s.identityRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity by email: %w", err)
	}
	if user != nil {
		return user, nil
	}

	passwordHash := ""
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = string(hash)
	}

	user = &models.User{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Status:       "active",
	}
	if err := s.identityRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	// A concurrent provisioning attempt may have won the insert; read the
	// row back so both attempts proceed with the same identity id.
	stored, err := s.identityRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read identity: %w", err)
	}
	if stored == nil {
		return nil, fmt.Errorf("identity for %s vanished after create", req.Email)
	}
	return stored, nil
}
