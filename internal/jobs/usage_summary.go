package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"meridian/internal/caching"
	"meridian/internal/sharding"

	"github.com/google/uuid"
)

const usageSummaryTTL = 20 * time.Minute

// UsageSummaryService precomputes per-tenant usage summaries into the
// cache so dashboard reads do not fan out to the shards. The counters in
// the shards remain the source of truth; the summary is advisory and may
// trail behind by one refresh interval.
type UsageSummaryService struct {
	selector *sharding.Selector
	cacheSvc caching.CacheService
}

// NewUsageSummaryService creates a new usage summary service
func NewUsageSummaryService(selector *sharding.Selector, cacheSvc caching.CacheService) *UsageSummaryService {
	return &UsageSummaryService{
		selector: selector,
		cacheSvc: cacheSvc,
	}
}

// RefreshAll rebuilds the cached summary for every tenant on every shard
// the process has opened, plus the default shard.
func (s *UsageSummaryService) RefreshAll(ctx context.Context) error {
	shards := append(s.selector.Cached(), s.selector.Default())

	refreshed := 0
	for _, conn := range shards {
		n, err := s.refreshShard(ctx, conn)
		if err != nil {
			log.Printf("Usage summary refresh failed for shard %s: %v", conn.ShardID, err)
			continue
		}
		refreshed += n
	}

	log.Printf("Refreshed usage summaries for %d tenants", refreshed)
	return nil
}

func (s *UsageSummaryService) refreshShard(ctx context.Context, conn *sharding.ShardConn) (int, error) {
	tenantIDs, err := conn.Tenants.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	// Limit concurrent shard reads so the refresh never saturates a pool.
	semaphore := make(chan struct{}, 5)
	var wg sync.WaitGroup

	for _, tenantID := range tenantIDs {
		wg.Add(1)
		go func(tenantID uuid.UUID) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if err := s.refreshTenant(ctx, conn, tenantID); err != nil {
				log.Printf("Usage summary refresh failed for tenant %s: %v", tenantID, err)
			}
		}(tenantID)
	}
	wg.Wait()

	return len(tenantIDs), nil
}

func (s *UsageSummaryService) refreshTenant(ctx context.Context, conn *sharding.ShardConn, tenantID uuid.UUID) error {
	counters, err := conn.Usage.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	summary := make(map[string]int, len(counters))
	for _, counter := range counters {
		summary[counter.Feature] = counter.Count
	}

	return s.cacheSvc.SetUsageSummary(ctx, tenantID, summary, usageSummaryTTL)
}
