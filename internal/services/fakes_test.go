package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meridian/internal/models"
	"meridian/internal/repositories"
	"meridian/internal/sharding"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/mock"
)

func fixedTime() time.Time {
	return time.Date(2026, 8, 14, 10, 30, 0, 0, time.UTC)
}

// fakeCache is a map-backed CacheService for tests. TTLs are ignored.
type fakeCache struct {
	mu      sync.Mutex
	strings map[string]string
	routing map[uuid.UUID]*models.RoutingRecord
	shards  map[uuid.UUID]string
	usage   map[uuid.UUID]map[string]int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		strings: make(map[string]string),
		routing: make(map[uuid.UUID]*models.RoutingRecord),
		shards:  make(map[uuid.UUID]string),
		usage:   make(map[uuid.UUID]map[string]int),
	}
}

func (f *fakeCache) GetRoutingRecord(ctx context.Context, userID uuid.UUID) (*models.RoutingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.routing[userID], nil
}

func (f *fakeCache) SetRoutingRecord(ctx context.Context, record *models.RoutingRecord, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routing[record.UserID] = record
	return nil
}

func (f *fakeCache) DeleteRoutingRecord(ctx context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.routing, userID)
	return nil
}

func (f *fakeCache) GetTenantShard(ctx context.Context, tenantID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shards[tenantID], nil
}

func (f *fakeCache) SetTenantShard(ctx context.Context, tenantID uuid.UUID, shardID string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shards[tenantID] = shardID
	return nil
}

func (f *fakeCache) GetUsageSummary(ctx context.Context, tenantID uuid.UUID) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage[tenantID], nil
}

func (f *fakeCache) SetUsageSummary(ctx context.Context, tenantID uuid.UUID, summary map[string]int, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage[tenantID] = summary
	return nil
}

func (f *fakeCache) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strings[key] = value
	return nil
}

func (f *fakeCache) GetString(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.strings[key]
	if !ok {
		return "", fmt.Errorf("key not found: %s", key)
	}
	return value, nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.strings, key)
	return nil
}

// stubResolver hands every tenant the same shard connection.
type stubResolver struct {
	conn *sharding.ShardConn
	err  error
}

func (s *stubResolver) ShardForTenant(ctx context.Context, tenantID uuid.UUID) (*sharding.ShardConn, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.conn, nil
}

// shardConnOver builds a ShardConn whose repositories all talk to db.
func shardConnOver(shardID string, db repositories.DB) *sharding.ShardConn {
	return &sharding.ShardConn{
		ShardID:      shardID,
		DB:           db,
		Tenants:      repositories.NewTenantRepo(db),
		Profiles:     repositories.NewProfileRepo(db),
		Usage:        repositories.NewUsageRepo(db),
		BillingLinks: repositories.NewBillingLinkRepo(db),
	}
}

// newMockShard returns a pgxmock pool and a ShardConn over it.
func newMockShard(shardID string) (pgxmock.PgxPoolIface, *sharding.ShardConn, error) {
	pool, err := pgxmock.NewPool()
	if err != nil {
		return nil, nil, err
	}
	return pool, shardConnOver(shardID, pool), nil
}

type MockIdentityRepository struct {
	mock.Mock
}

func (m *MockIdentityRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockIdentityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockIdentityRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockRoutingRepository struct {
	mock.Mock
}

func (m *MockRoutingRepository) Upsert(ctx context.Context, record *models.RoutingRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRoutingRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.RoutingRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoutingRecord), args.Error(1)
}

func (m *MockRoutingRepository) GetShardForTenant(ctx context.Context, tenantID uuid.UUID) (string, error) {
	args := m.Called(ctx, tenantID)
	return args.String(0), args.Error(1)
}

func (m *MockRoutingRepository) UpdateRole(ctx context.Context, userID uuid.UUID, role string) error {
	args := m.Called(ctx, userID, role)
	return args.Error(0)
}

type MockMeteringClient struct {
	mock.Mock
}

func (m *MockMeteringClient) SubmitUsage(ctx context.Context, event *UsageEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
