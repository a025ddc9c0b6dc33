package handlers

import (
	"net/http"

	"meridian/internal/common"
	"meridian/internal/services"

	"github.com/labstack/echo/v4"
)

// RoutingHandlers exposes read access to routing records.
type RoutingHandlers struct {
	routingService services.RoutingService
}

// NewRoutingHandlers creates a new routing handlers instance
func NewRoutingHandlers(routingService services.RoutingService) *RoutingHandlers {
	return &RoutingHandlers{routingService: routingService}
}

// GetMyRouting returns the caller's routing record from the global store.
// The claims on the token already carry the same information; this
// endpoint exists so clients can confirm where an identity is homed.
func (h *RoutingHandlers) GetMyRouting(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	record, err := h.routingService.RoutingFor(ctx, userID)
	if err != nil {
		return common.SendServerError(c, "Failed to load routing record")
	}
	if record == nil {
		return common.SendNotFoundError(c, "Routing record")
	}

	return c.JSON(http.StatusOK, record)
}
