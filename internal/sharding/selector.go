package sharding

import (
	"context"
	"fmt"
	"log"
	"sync"

	"meridian/internal/repositories"
)

// Opener dials the physical store behind a shard id. In production this is
// a pgxpool constructor; tests inject their own.
type Opener func(ctx context.Context, shardID string) (repositories.DB, error)

// ShardConn bundles a shard's connection handle with the repositories
// scoped to that shard. Every regional data access goes through one of
// these.
type ShardConn struct {
	ShardID      string
	DB           repositories.DB
	Tenants      repositories.TenantRepository
	Profiles     repositories.ProfileRepository
	Usage        repositories.UsageRepository
	BillingLinks repositories.BillingLinkRepository
}

func newShardConn(shardID string, db repositories.DB) *ShardConn {
	return &ShardConn{
		ShardID:      shardID,
		DB:           db,
		Tenants:      repositories.NewTenantRepo(db),
		Profiles:     repositories.NewProfileRepo(db),
		Usage:        repositories.NewUsageRepo(db),
		BillingLinks: repositories.NewBillingLinkRepo(db),
	}
}

// Selector hands out one ShardConn per shard for the process lifetime.
// This cache is the only mutable process-wide state in the layer: the
// first caller for a shard pays the connection-setup cost, everyone else
// reuses the handle. The default shard resolves to a pre-existing
// always-on handle and bypasses the cache entirely.
type Selector struct {
	registry    *Registry
	opener      Opener
	defaultConn *ShardConn

	mu    sync.RWMutex
	conns map[string]*ShardConn
}

func NewSelector(registry *Registry, opener Opener, defaultDB repositories.DB) *Selector {
	return &Selector{
		registry:    registry,
		opener:      opener,
		defaultConn: newShardConn(registry.DefaultShard(), defaultDB),
		conns:       make(map[string]*ShardConn),
	}
}

// ConnectionFor returns the handle for shardID, creating it on first
// access. Exactly one handle is created per shard even when many requests
// race on first use; a failed dial is not cached, so the next caller
// retries.
func (s *Selector) ConnectionFor(ctx context.Context, shardID string) (*ShardConn, error) {
	if s.registry.IsDefault(shardID) {
		return s.defaultConn, nil
	}

	s.mu.RLock()
	conn, ok := s.conns[shardID]
	s.mu.RUnlock()
	if ok {
		return conn, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.conns[shardID]; ok {
		return conn, nil
	}

	db, err := s.opener(ctx, shardID)
	if err != nil {
		return nil, fmt.Errorf("failed to open shard %s: %w", shardID, err)
	}
	conn = newShardConn(shardID, db)
	s.conns[shardID] = conn
	log.Printf("Opened connection to shard %s", shardID)
	return conn, nil
}

// ConnectionForRegion resolves the region through the registry and returns
// its shard handle.
func (s *Selector) ConnectionForRegion(ctx context.Context, region string) (*ShardConn, error) {
	return s.ConnectionFor(ctx, s.registry.ShardFor(region))
}

// Default returns the always-on default shard handle.
func (s *Selector) Default() *ShardConn {
	return s.defaultConn
}

// Cached returns the currently open non-default handles, for health checks
// and background jobs that sweep every known shard.
func (s *Selector) Cached() []*ShardConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conns := make([]*ShardConn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Reset closes and drops every cached handle. Test hook; the default
// handle is left untouched because the selector does not own it.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for shardID, conn := range s.conns {
		if closer, ok := conn.DB.(interface{ Close() }); ok {
			closer.Close()
		}
		delete(s.conns, shardID)
	}
}
