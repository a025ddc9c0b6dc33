package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"meridian/internal/caching"
	"meridian/internal/models"
	"meridian/internal/repositories"
	"meridian/internal/sharding"

	"github.com/google/uuid"
)

const (
	routingCacheTTL     = 10 * time.Minute
	tenantShardCacheTTL = 30 * time.Minute
)

// ShardResolver resolves a tenant to its home shard connection. The quota
// ledger and the usage exporter both route through this.
type ShardResolver interface {
	ShardForTenant(ctx context.Context, tenantID uuid.UUID) (*sharding.ShardConn, error)
}

// RoutingService reads RoutingRecords from the global store, with a Redis
// cache in front so hot-path routing rarely touches the store.
type RoutingService interface {
	ShardResolver
	RoutingFor(ctx context.Context, userID uuid.UUID) (*models.RoutingRecord, error)
	InvalidateRouting(ctx context.Context, userID uuid.UUID)
}

type routingService struct {
	routingRepo repositories.RoutingRepository
	selector    *sharding.Selector
	cacheSvc    caching.CacheService
}

func NewRoutingService(routingRepo repositories.RoutingRepository, selector *sharding.Selector, cacheSvc caching.CacheService) RoutingService {
	return &routingService{
		routingRepo: routingRepo,
		selector:    selector,
		cacheSvc:    cacheSvc,
	}
}

func (s *routingService) RoutingFor(ctx context.Context, userID uuid.UUID) (*models.RoutingRecord, error) {
	if cached, err := s.cacheSvc.GetRoutingRecord(ctx, userID); err == nil && cached != nil {
		return cached, nil
	}

	record, err := s.routingRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load routing record for user %s: %w", userID, err)
	}

	if err := s.cacheSvc.SetRoutingRecord(ctx, record, routingCacheTTL); err != nil {
		log.Printf("Failed to cache routing record for user %s: %v", userID, err)
	}
	return record, nil
}

func (s *routingService) ShardForTenant(ctx context.Context, tenantID uuid.UUID) (*sharding.ShardConn, error) {
	shardID, err := s.cacheSvc.GetTenantShard(ctx, tenantID)
	if err != nil {
		log.Printf("Tenant shard cache lookup failed for %s: %v", tenantID, err)
	}

	if shardID == "" {
		shardID, err = s.routingRepo.GetShardForTenant(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve shard for tenant %s: %w", tenantID, err)
		}
		if err := s.cacheSvc.SetTenantShard(ctx, tenantID, shardID, tenantShardCacheTTL); err != nil {
			log.Printf("Failed to cache shard for tenant %s: %v", tenantID, err)
		}
	}

	return s.selector.ConnectionFor(ctx, shardID)
}

func (s *routingService) InvalidateRouting(ctx context.Context, userID uuid.UUID) {
	if err := s.cacheSvc.DeleteRoutingRecord(ctx, userID); err != nil {
		log.Printf("Failed to invalidate routing cache for user %s: %v", userID, err)
	}
}
