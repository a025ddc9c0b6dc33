package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"meridian/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type CacheService interface {
	// Routing record caching
	GetRoutingRecord(ctx context.Context, userID uuid.UUID) (*models.RoutingRecord, error)
	SetRoutingRecord(ctx context.Context, record *models.RoutingRecord, ttl time.Duration) error
	DeleteRoutingRecord(ctx context.Context, userID uuid.UUID) error

	// Tenant -> shard resolution caching
	GetTenantShard(ctx context.Context, tenantID uuid.UUID) (string, error)
	SetTenantShard(ctx context.Context, tenantID uuid.UUID, shardID string, ttl time.Duration) error

	// Usage summary caching (for display and upgrade prompts)
	GetUsageSummary(ctx context.Context, tenantID uuid.UUID) (map[string]int, error)
	SetUsageSummary(ctx context.Context, tenantID uuid.UUID, summary map[string]int, ttl time.Duration) error

	// Generic string operations for token management
	SetString(ctx context.Context, key string, value string, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept redis://host:port style addresses as well as plain host:port
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	}

	return &redisCacheService{client: client}
}

func (r *redisCacheService) GetRoutingRecord(ctx context.Context, userID uuid.UUID) (*models.RoutingRecord, error) {
	key := fmt.Sprintf("meridian:routing:%s", userID.String())
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var record models.RoutingRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *redisCacheService) SetRoutingRecord(ctx context.Context, record *models.RoutingRecord, ttl time.Duration) error {
	key := fmt.Sprintf("meridian:routing:%s", record.UserID.String())
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *redisCacheService) DeleteRoutingRecord(ctx context.Context, userID uuid.UUID) error {
	key := fmt.Sprintf("meridian:routing:%s", userID.String())
	return r.client.Del(ctx, key).Err()
}

func (r *redisCacheService) GetTenantShard(ctx context.Context, tenantID uuid.UUID) (string, error) {
	key := fmt.Sprintf("meridian:tenant_shard:%s", tenantID.String())
	shardID, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil // cache miss
		}
		return "", err
	}
	return shardID, nil
}

func (r *redisCacheService) SetTenantShard(ctx context.Context, tenantID uuid.UUID, shardID string, ttl time.Duration) error {
	key := fmt.Sprintf("meridian:tenant_shard:%s", tenantID.String())
	return r.client.Set(ctx, key, shardID, ttl).Err()
}

func (r *redisCacheService) GetUsageSummary(ctx context.Context, tenantID uuid.UUID) (map[string]int, error) {
	key := fmt.Sprintf("meridian:usage_summary:%s", tenantID.String())
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	summary := make(map[string]int)
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (r *redisCacheService) SetUsageSummary(ctx context.Context, tenantID uuid.UUID, summary map[string]int, ttl time.Duration) error {
	key := fmt.Sprintf("meridian:usage_summary:%s", tenantID.String())
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *redisCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCacheService) GetString(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *redisCacheService) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
