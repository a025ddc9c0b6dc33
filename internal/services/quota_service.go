package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meridian/internal/config"
	"meridian/internal/models"
	"meridian/internal/sharding"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// quotaTxRetries bounds the optimistic retry loop around first-use insert
// races and serialization failures before surfacing a transient error.
const quotaTxRetries = 3

// errCounterRace signals that a concurrent transaction created the month's
// counter row between our read and our insert. The retry finds the row and
// takes the locked-update path instead.
var errCounterRace = errors.New("usage counter inserted concurrently")

// QuotaDecision is the outcome of a quota check. A rejection is a normal
// business outcome, not an error: the caller surfaces Current and Limit so
// the user can be shown a "limit reached, N/M used" message.
type QuotaDecision struct {
	Accepted bool      `json:"accepted"`
	TenantID uuid.UUID `json:"tenant_id"`
	Feature  string    `json:"feature"`
	Current  int       `json:"current_count"`
	Limit    int       `json:"limit"`
	// Token is an opaque acceptance token, informational only.
	Token string `json:"token,omitempty"`
}

// QuotaService enforces per-tenant monthly limits on metered features.
type QuotaService interface {
	// CheckAndIncrement atomically consumes one unit of quota, or rejects
	// without writing anything. Consumed units are not refunded if the
	// caller's action is later canceled: quota tracks attempts.
	CheckAndIncrement(ctx context.Context, tenantID uuid.UUID, feature string) (*QuotaDecision, error)
	// Usage reports the effective count and limit for display, applying
	// the lazy monthly reset without writing.
	Usage(ctx context.Context, tenantID uuid.UUID, feature string) (*QuotaDecision, error)
	ListUsage(ctx context.Context, tenantID uuid.UUID) ([]*models.UsageCounter, error)
}

type quotaService struct {
	resolver ShardResolver
	cfg      *config.Config
	now      func() time.Time
}

func NewQuotaService(resolver ShardResolver, cfg *config.Config) QuotaService {
	return &quotaService{
		resolver: resolver,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *quotaService) CheckAndIncrement(ctx context.Context, tenantID uuid.UUID, feature string) (*QuotaDecision, error) {
	conn, err := s.resolver.ShardForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < quotaTxRetries; attempt++ {
		decision, err := s.tryConsume(ctx, conn, tenantID, feature)
		if err == nil {
			return decision, nil
		}
		if !retryableTxError(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("quota check for tenant %s feature %s did not settle after %d attempts: %w", tenantID, feature, quotaTxRetries, lastErr)
}

// tryConsume runs one attempt of the atomic read-check-write sequence. The
// whole sequence executes inside a single transaction with the counter row
// locked, so two concurrent calls can never both observe the same count.
func (s *quotaService) tryConsume(ctx context.Context, conn *sharding.ShardConn, tenantID uuid.UUID, feature string) (*QuotaDecision, error) {
	tx, err := conn.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin quota transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	plan, err := conn.Tenants.GetPlan(ctx, tx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan for tenant %s: %w", tenantID, err)
	}
	limit := s.cfg.LimitFor(plan, feature)

	counter, err := conn.Usage.GetForUpdate(ctx, tx, tenantID, feature)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage counter: %w", err)
	}

	now := s.now()
	boundary := monthStart(now)

	// Lazy monthly reset: a counter whose reset instant has been reached
	// counts as zero. No background sweep ever runs.
	effectiveCount := 0
	if counter != nil && counter.ResetAt.After(boundary) {
		effectiveCount = counter.Count
	}

	if effectiveCount >= limit {
		// Reject path: the counter is not written.
		if err := tx.Rollback(ctx); err != nil {
			return nil, fmt.Errorf("failed to roll back rejected quota check: %w", err)
		}
		return &QuotaDecision{
			Accepted: false,
			TenantID: tenantID,
			Feature:  feature,
			Current:  effectiveCount,
			Limit:    limit,
		}, nil
	}

	updated := &models.UsageCounter{
		TenantID:   tenantID,
		Feature:    feature,
		Count:      effectiveCount + 1,
		ResetAt:    nextMonthStart(now),
		LastUsedAt: now,
	}

	if counter == nil {
		inserted, err := conn.Usage.InsertFirstUse(ctx, tx, updated)
		if err != nil {
			return nil, fmt.Errorf("failed to create usage counter: %w", err)
		}
		if !inserted {
			if err := tx.Rollback(ctx); err != nil {
				return nil, fmt.Errorf("failed to roll back raced quota check: %w", err)
			}
			return nil, errCounterRace
		}
	} else {
		if err := conn.Usage.Update(ctx, tx, updated); err != nil {
			return nil, fmt.Errorf("failed to write usage counter: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quota increment: %w", err)
	}

	return &QuotaDecision{
		Accepted: true,
		TenantID: tenantID,
		Feature:  feature,
		Current:  updated.Count,
		Limit:    limit,
		Token:    uuid.NewString(),
	}, nil
}

func (s *quotaService) Usage(ctx context.Context, tenantID uuid.UUID, feature string) (*QuotaDecision, error) {
	conn, err := s.resolver.ShardForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	plan, err := conn.Tenants.GetPlan(ctx, conn.DB, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan for tenant %s: %w", tenantID, err)
	}
	limit := s.cfg.LimitFor(plan, feature)

	counter, err := conn.Usage.Get(ctx, tenantID, feature)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage counter: %w", err)
	}

	boundary := monthStart(s.now())
	effectiveCount := 0
	if counter != nil && counter.ResetAt.After(boundary) {
		effectiveCount = counter.Count
	}

	return &QuotaDecision{
		Accepted: effectiveCount < limit,
		TenantID: tenantID,
		Feature:  feature,
		Current:  effectiveCount,
		Limit:    limit,
	}, nil
}

func (s *quotaService) ListUsage(ctx context.Context, tenantID uuid.UUID) ([]*models.UsageCounter, error) {
	conn, err := s.resolver.ShardForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return conn.Usage.ListByTenant(ctx, tenantID)
}

// retryableTxError reports whether the attempt lost a benign race and the
// sequence should be re-run from the top.
func retryableTxError(err error) bool {
	if errors.Is(err, errCounterRace) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// monthStart returns the first instant of t's calendar month, in UTC.
func monthStart(t time.Time) time.Time {
	year, month, _ := t.UTC().Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// nextMonthStart returns the first instant of the calendar month after t.
func nextMonthStart(t time.Time) time.Time {
	return monthStart(t).AddDate(0, 1, 0)
}
