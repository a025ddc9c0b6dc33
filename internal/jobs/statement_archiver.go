package jobs

import (
	"context"
	"log"
	"time"

	"meridian/internal/services"
	"meridian/internal/sharding"

	"github.com/google/uuid"
)

// StatementArchiver writes monthly usage statements to object storage.
// Statements are informational snapshots for billing reconciliation; the
// authoritative record stays in the shards and the billing provider.
type StatementArchiver struct {
	selector *sharding.Selector
	archive  services.ArchiveService
	bucket   string
	now      func() time.Time
}

// NewStatementArchiver creates a new statement archiver
func NewStatementArchiver(selector *sharding.Selector, archive services.ArchiveService, bucket string) *StatementArchiver {
	return &StatementArchiver{
		selector: selector,
		archive:  archive,
		bucket:   bucket,
		now:      time.Now,
	}
}

// ArchivePreviousMonth snapshots every tenant's counters into a statement
// for the month that just ended. Intended to run shortly after the month
// boundary, before the lazy reset has begun rewriting counters.
func (a *StatementArchiver) ArchivePreviousMonth(ctx context.Context) error {
	month := a.now().UTC().AddDate(0, -1, 0).Format("2006-01")
	shards := append(a.selector.Cached(), a.selector.Default())

	archived := 0
	for _, conn := range shards {
		tenantIDs, err := conn.Tenants.ListIDs(ctx)
		if err != nil {
			log.Printf("Statement archival failed to list tenants on shard %s: %v", conn.ShardID, err)
			continue
		}

		for _, tenantID := range tenantIDs {
			if err := a.archiveTenant(ctx, conn, tenantID, month); err != nil {
				log.Printf("Statement archival failed for tenant %s: %v", tenantID, err)
				continue
			}
			archived++
		}
	}

	log.Printf("Archived %s statements for %d tenants", month, archived)
	return nil
}

func (a *StatementArchiver) archiveTenant(ctx context.Context, conn *sharding.ShardConn, tenantID uuid.UUID, month string) error {
	counters, err := conn.Usage.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if len(counters) == 0 {
		return nil
	}

	statement := &services.UsageStatement{
		TenantID:    tenantID,
		Month:       month,
		Counters:    counters,
		GeneratedAt: a.now().UTC(),
	}
	return a.archive.UploadStatement(ctx, a.bucket, statement)
}
