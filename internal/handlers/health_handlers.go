package handlers

import (
	"context"
	"net/http"
	"time"

	"meridian/internal/caching"
	"meridian/internal/repositories"
	"meridian/internal/sharding"

	"github.com/labstack/echo/v4"
)

// HealthHandlers handles health check and monitoring endpoints
type HealthHandlers struct {
	globalDB repositories.DB
	redisSvc caching.CacheService
	selector *sharding.Selector
}

// NewHealthHandlers creates a new health handlers instance
func NewHealthHandlers(globalDB repositories.DB, redisSvc caching.CacheService, selector *sharding.Selector) *HealthHandlers {
	return &HealthHandlers{
		globalDB: globalDB,
		redisSvc: redisSvc,
		selector: selector,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
}

// HealthCheck checks the global store, the cache and every shard that has
// been opened so far. Shards that no request has touched yet are not
// dialed just to report on them.
func (h *HealthHandlers) HealthCheck(c echo.Context) error {
	ctx := c.Request().Context()
	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string),
		Version:   "1.0.0",
	}

	if err := h.checkGlobalStore(ctx); err != nil {
		health.Services["global_store"] = "unhealthy"
		health.Status = "degraded"
	} else {
		health.Services["global_store"] = "healthy"
	}

	if err := h.checkRedis(ctx); err != nil {
		health.Services["redis"] = "unhealthy"
		health.Status = "degraded"
	} else {
		health.Services["redis"] = "healthy"
	}

	for _, conn := range h.selector.Cached() {
		if _, err := conn.DB.Exec(ctx, "SELECT 1"); err != nil {
			health.Services["shard:"+conn.ShardID] = "unhealthy"
			health.Status = "degraded"
		} else {
			health.Services["shard:"+conn.ShardID] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if health.Status == "degraded" {
		statusCode = http.StatusPartialContent
	}

	return c.JSON(statusCode, health)
}

func (h *HealthHandlers) checkGlobalStore(ctx context.Context) error {
	_, err := h.globalDB.Exec(ctx, "SELECT 1")
	return err
}

func (h *HealthHandlers) checkRedis(ctx context.Context) error {
	if err := h.redisSvc.SetString(ctx, "health:ping", "ok", 10*time.Second); err != nil {
		return err
	}
	_, err := h.redisSvc.GetString(ctx, "health:ping")
	return err
}

// ReadinessCheck determines if the application is ready to serve traffic
func (h *HealthHandlers) ReadinessCheck(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.checkGlobalStore(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"message": "Global store unavailable",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ready",
		"message": "All systems operational",
	})
}

// LivenessCheck determines if the application is running (basic liveness probe)
func (h *HealthHandlers) LivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
