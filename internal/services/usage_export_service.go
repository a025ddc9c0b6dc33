package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const exportTimeout = 30 * time.Second

// UsageExportService reports accepted quota increments to the external
// metered-billing provider. It is invoked after a quota acceptance, never
// before, and runs off the synchronous request path: an export failure
// must never cause the already-granted feature action to fail or roll
// back, and the ledger increment is never undone. Duplicate reports on
// retry are an accepted trade-off; no local dedupe store is kept.
type UsageExportService interface {
	// Report submits one usage event synchronously. Tenants without a
	// billing customer link are not externally metered; the call is a
	// no-op for them.
	Report(ctx context.Context, tenantID uuid.UUID, feature string, quantity int64) error
	// ReportAsync fires Report on a background goroutine and swallows
	// any failure. This is the path feature handlers use.
	ReportAsync(tenantID uuid.UUID, feature string, quantity int64)
	// Flush blocks until all in-flight async reports have finished.
	Flush()
}

type usageExportService struct {
	resolver ShardResolver
	metering MeteringClient
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewUsageExportService(resolver ShardResolver, metering MeteringClient) UsageExportService {
	return &usageExportService{
		resolver: resolver,
		metering: metering,
		now:      time.Now,
	}
}

func (s *usageExportService) Report(ctx context.Context, tenantID uuid.UUID, feature string, quantity int64) error {
	conn, err := s.resolver.ShardForTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	link, err := conn.BillingLinks.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if link == nil {
		// Tenant is not externally metered; usage stays local.
		return nil
	}

	return s.metering.SubmitUsage(ctx, &UsageEvent{
		CustomerID: link.CustomerID,
		Feature:    feature,
		Quantity:   quantity,
		Timestamp:  s.now().Unix(),
	})
}

func (s *usageExportService) ReportAsync(tenantID uuid.UUID, feature string, quantity int64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// Detached from the request context: the caller has already been
		// answered and must not be tied to this call's lifetime.
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()

		if err := s.Report(ctx, tenantID, feature, quantity); err != nil {
			log.Printf("Usage export for tenant %s feature %s failed: %v", tenantID, feature, err)
		}
	}()
}

func (s *usageExportService) Flush() {
	s.wg.Wait()
}
