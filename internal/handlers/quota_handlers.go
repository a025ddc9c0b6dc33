package handlers

import (
	"net/http"

	"meridian/internal/common"
	"meridian/internal/services"

	"github.com/labstack/echo/v4"
)

// QuotaHandlers handles metered feature consumption and usage reads.
type QuotaHandlers struct {
	quotaService  services.QuotaService
	exportService services.UsageExportService
}

// NewQuotaHandlers creates a new quota handlers instance
func NewQuotaHandlers(quotaService services.QuotaService, exportService services.UsageExportService) *QuotaHandlers {
	return &QuotaHandlers{
		quotaService:  quotaService,
		exportService: exportService,
	}
}

// Consume atomically consumes one unit of quota for a feature. An accepted
// increment is reported to the billing provider off the request path; a
// rejection returns 429 and writes nothing anywhere.
func (h *QuotaHandlers) Consume(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	feature := c.Param("feature")
	if err := common.ValidateFeatureName(feature); err != nil {
		return common.SendValidationError(c, "feature", err.Error())
	}

	decision, err := h.quotaService.CheckAndIncrement(ctx, tenantID, feature)
	if err != nil {
		return common.SendServerError(c, "Quota check failed")
	}

	if !decision.Accepted {
		return common.SendQuotaExceededError(c, feature, decision.Current, decision.Limit)
	}

	h.exportService.ReportAsync(tenantID, feature, 1)

	return c.JSON(http.StatusOK, decision)
}

// GetUsage reports the effective count and limit for one feature.
func (h *QuotaHandlers) GetUsage(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	feature := c.Param("feature")
	if err := common.ValidateFeatureName(feature); err != nil {
		return common.SendValidationError(c, "feature", err.Error())
	}

	decision, err := h.quotaService.Usage(ctx, tenantID, feature)
	if err != nil {
		return common.SendServerError(c, "Failed to read usage")
	}

	return c.JSON(http.StatusOK, decision)
}

// ListUsage returns the tenant's stored usage counters.
func (h *QuotaHandlers) ListUsage(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	counters, err := h.quotaService.ListUsage(ctx, tenantID)
	if err != nil {
		return common.SendServerError(c, "Failed to list usage")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"tenant_id": tenantID,
		"counters":  counters,
	})
}
