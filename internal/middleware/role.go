package middleware

import (
	"net/http"

	"meridian/internal/common"

	"github.com/labstack/echo/v4"
)

// roleRank orders the roles a routing claim can carry. A higher rank
// includes every capability of the ranks below it.
var roleRank = map[string]int{
	"member": 1,
	"admin":  2,
	"owner":  3,
}

// RoleMiddleware enforces role requirements from the routing claims
// already on the context. There is no permission store to consult: the
// role travels in the token.
type RoleMiddleware struct{}

func NewRoleMiddleware() *RoleMiddleware {
	return &RoleMiddleware{}
}

func (m *RoleMiddleware) RequireRole(minimum string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if _, ok := common.GetUserIDFromContext(ctx); !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
			}

			role, ok := common.GetRoleFromContext(ctx)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Role not present in claims")
			}

			if roleRank[role] < roleRank[minimum] {
				return echo.NewHTTPError(http.StatusForbidden, "Insufficient role")
			}

			return next(c)
		}
	}
}
