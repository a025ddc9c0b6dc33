package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/random"

	"meridian/internal/caching"
	"meridian/internal/config"
	"meridian/internal/handlers"
	"meridian/internal/jobs"
	"meridian/internal/jobs/background"
	"meridian/internal/middleware"
	"meridian/internal/repositories"
	"meridian/internal/services"
	"meridian/internal/sharding"
	"meridian/pkg/database"
)

const version = "1.0.0"

func main() {
	// Routing and quota configuration
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Global store connection
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	globalPool, err := database.NewPool(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to global store: %v", err)
	}
	defer globalPool.Close()

	// Default shard connection; dedicated shards are dialed on first use.
	defaultShardURL := os.Getenv("SHARD_DEFAULT_DATABASE_URL")
	if defaultShardURL == "" {
		defaultShardURL = databaseURL
	}
	defaultPool, err := database.NewPool(defaultShardURL)
	if err != nil {
		log.Fatalf("Failed to connect to default shard: %v", err)
	}
	defer defaultPool.Close()

	// JWT configuration
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = random.String(32) // Generate random secret for development
		log.Printf("WARNING: Using generated JWT secret")
	}

	// Redis configuration
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if redisDBStr := os.Getenv("REDIS_DB"); redisDBStr != "" {
		if db, err := strconv.Atoi(redisDBStr); err == nil {
			redisDB = db
		}
	}

	// Shard registry and selector
	registry := sharding.NewRegistry(cfg.Regions)
	opener := func(ctx context.Context, shardID string) (repositories.DB, error) {
		dsn, err := database.ShardDSN(shardID)
		if err != nil {
			return nil, err
		}
		return database.NewPool(dsn)
	}
	selector := sharding.NewSelector(registry, opener, defaultPool)

	// Global-store repositories
	identityRepo := repositories.NewIdentityRepo(globalPool)
	routingRepo := repositories.NewRoutingRepo(globalPool)

	// Cache service
	cacheSvc := caching.NewRedisCacheService(redisAddr, redisPassword, redisDB)

	// Services
	authSvc := services.NewAuthService(cacheSvc, jwtSecret, 900, 7*24*3600)
	routingSvc := services.NewRoutingService(routingRepo, selector, cacheSvc)
	provisioningSvc := services.NewProvisioningService(cfg, registry, selector, identityRepo, routingRepo, authSvc, cacheSvc)
	quotaSvc := services.NewQuotaService(routingSvc, cfg)

	// Metered-billing export
	meteringClient := services.NewMeteringClient(
		os.Getenv("METERING_API_KEY"),
		os.Getenv("METERING_API_SECRET"),
		getEnvDefault("METERING_BASE_URL", "https://metering.example.com"),
	)
	exportSvc := services.NewUsageExportService(routingSvc, meteringClient)

	// External identity provider (optional)
	var idVerifier *middleware.IDTokenVerifier
	if jwksURL := os.Getenv("IDP_JWKS_URL"); jwksURL != "" {
		idVerifier, err = middleware.NewIDTokenVerifier(jwksURL, os.Getenv("IDP_ISSUER"), os.Getenv("IDP_AUDIENCE"))
		if err != nil {
			log.Fatalf("Failed to initialize identity provider verifier: %v", err)
		}
	}

	// Statement archival storage (optional)
	var archiver *jobs.StatementArchiver
	if minioEndpoint := os.Getenv("MINIO_ENDPOINT"); minioEndpoint != "" {
		archiveSvc, err := services.NewArchiveService(
			minioEndpoint,
			getEnvDefault("MINIO_ACCESS_KEY", "minioadmin"),
			getEnvDefault("MINIO_SECRET_KEY", "minioadmin"),
			os.Getenv("MINIO_USE_SSL") == "true",
		)
		if err != nil {
			log.Fatalf("Failed to initialize archive service: %v", err)
		}
		bucket := getEnvDefault("STATEMENT_BUCKET", "usage-statements")
		if err := archiveSvc.EnsureBucketExists(context.Background(), bucket); err != nil {
			log.Printf("Failed to ensure statement bucket exists: %v", err)
		}
		archiver = jobs.NewStatementArchiver(selector, archiveSvc, bucket)
	}

	// Background jobs
	summarySvc := jobs.NewUsageSummaryService(selector, cacheSvc)
	scheduler := background.NewJobScheduler(summarySvc, archiver)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Handlers
	provisioningHandlers := handlers.NewProvisioningHandlers(provisioningSvc, authSvc, routingSvc, identityRepo, idVerifier)
	quotaHandlers := handlers.NewQuotaHandlers(quotaSvc, exportSvc)
	tenantHandlers := handlers.NewTenantHandlers(routingSvc, cfg)
	routingHandlers := handlers.NewRoutingHandlers(routingSvc)
	healthHandlers := handlers.NewHealthHandlers(globalPool, cacheSvc, selector)
	roleMiddleware := middleware.NewRoleMiddleware()

	// Create Echo instance
	e := echo.New()

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints (no auth required)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)

	// API routes
	v1 := e.Group("/v1")

	// Provisioning and authentication (no JWT required)
	v1.POST("/provision", provisioningHandlers.Provision)
	auth := v1.Group("/auth")
	auth.POST("/login", provisioningHandlers.Login)
	auth.POST("/refresh", provisioningHandlers.Refresh)
	auth.POST("/logout", provisioningHandlers.Logout)

	// Protected routes (require JWT with routing claims)
	protected := v1.Group("")
	protected.Use(echojwt.WithConfig(middleware.ClaimsConfig(jwtSecret)))

	protected.GET("/routing/me", routingHandlers.GetMyRouting)

	protected.POST("/features/:feature/consume", quotaHandlers.Consume)
	protected.GET("/usage", quotaHandlers.ListUsage)
	protected.GET("/usage/:feature", quotaHandlers.GetUsage)

	protected.GET("/tenant", tenantHandlers.GetTenant)
	protected.PUT("/tenant/plan", tenantHandlers.UpdatePlan, roleMiddleware.RequireRole("owner"))
	protected.PUT("/tenant/billing-link", tenantHandlers.SetBillingLink, roleMiddleware.RequireRole("owner"))
	protected.DELETE("/tenant/billing-link", tenantHandlers.DeleteBillingLink, roleMiddleware.RequireRole("owner"))

	// Start server
	portStr := getEnvDefault("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("Invalid port %s: %v", portStr, err)
	}

	log.Printf("Meridian routing layer v%s starting on port %d", version, port)

	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", port)))
}

func getEnvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
