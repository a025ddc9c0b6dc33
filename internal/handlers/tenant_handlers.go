package handlers

import (
	"net/http"

	"meridian/internal/common"
	"meridian/internal/config"
	"meridian/internal/models"
	"meridian/internal/services"

	"github.com/labstack/echo/v4"
)

// TenantHandlers handles tenant record and billing link requests. All
// operations act on the caller's own tenant, resolved from the claims on
// the request context.
type TenantHandlers struct {
	resolver services.ShardResolver
	cfg      *config.Config
}

// NewTenantHandlers creates a new tenant handlers instance
func NewTenantHandlers(resolver services.ShardResolver, cfg *config.Config) *TenantHandlers {
	return &TenantHandlers{
		resolver: resolver,
		cfg:      cfg,
	}
}

// GetTenant returns the caller's tenant record.
func (h *TenantHandlers) GetTenant(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	conn, err := h.resolver.ShardForTenant(ctx, tenantID)
	if err != nil {
		return common.SendServerError(c, "Failed to resolve tenant shard")
	}

	tenant, err := conn.Tenants.GetByID(ctx, tenantID)
	if err != nil {
		return common.SendNotFoundError(c, "Tenant")
	}

	return c.JSON(http.StatusOK, tenant)
}

// UpdatePlanRequest represents the plan change payload
type UpdatePlanRequest struct {
	Plan string `json:"plan" validate:"required"`
}

// UpdatePlan moves the caller's tenant to another plan tier. The new
// limits apply to the current month's counters immediately.
func (h *TenantHandlers) UpdatePlan(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req UpdatePlanRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if _, known := h.cfg.Plans[req.Plan]; !known {
		return common.SendValidationError(c, "plan", "unknown plan tier")
	}

	conn, err := h.resolver.ShardForTenant(ctx, tenantID)
	if err != nil {
		return common.SendServerError(c, "Failed to resolve tenant shard")
	}

	if err := conn.Tenants.UpdatePlan(ctx, tenantID, req.Plan); err != nil {
		return common.SendServerError(c, "Failed to update plan")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"tenant_id": tenantID.String(),
		"plan":      req.Plan,
	})
}

// SetBillingLinkRequest represents the billing link payload
type SetBillingLinkRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
}

// SetBillingLink attaches the billing provider's customer id to the
// caller's tenant, enabling usage export for it.
func (h *TenantHandlers) SetBillingLink(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req SetBillingLinkRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := common.ValidateRequiredString(req.CustomerID, "customer_id"); err != nil {
		return common.SendValidationError(c, "customer_id", err.Error())
	}

	conn, err := h.resolver.ShardForTenant(ctx, tenantID)
	if err != nil {
		return common.SendServerError(c, "Failed to resolve tenant shard")
	}

	link := &models.BillingCustomerLink{
		TenantID:   tenantID,
		CustomerID: req.CustomerID,
	}
	if err := conn.BillingLinks.Set(ctx, link); err != nil {
		return common.SendServerError(c, "Failed to store billing link")
	}

	return c.JSON(http.StatusOK, link)
}

// DeleteBillingLink detaches the tenant from the billing provider. Usage
// export becomes a no-op for it.
func (h *TenantHandlers) DeleteBillingLink(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, ok := common.GetTenantIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	conn, err := h.resolver.ShardForTenant(ctx, tenantID)
	if err != nil {
		return common.SendServerError(c, "Failed to resolve tenant shard")
	}

	if err := conn.BillingLinks.Delete(ctx, tenantID); err != nil {
		return common.SendServerError(c, "Failed to delete billing link")
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Billing link removed"})
}
