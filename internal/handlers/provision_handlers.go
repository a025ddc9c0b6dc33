package handlers

import (
	"errors"
	"log"
	"net/http"

	"meridian/internal/middleware"
	"meridian/internal/models"
	"meridian/internal/repositories"
	"meridian/internal/services"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// ProvisioningHandlers handles tenant provisioning and authentication
// HTTP requests.
type ProvisioningHandlers struct {
	provisioningSvc services.ProvisioningService
	authService     services.AuthService
	routingService  services.RoutingService
	identityRepo    repositories.IdentityRepository
	idVerifier      *middleware.IDTokenVerifier
}

// NewProvisioningHandlers creates a new provisioning handlers instance.
// idVerifier may be nil when no external identity provider is configured;
// provisioning then requires a password.
func NewProvisioningHandlers(provisioningSvc services.ProvisioningService, authService services.AuthService,
	routingService services.RoutingService, identityRepo repositories.IdentityRepository,
	idVerifier *middleware.IDTokenVerifier) *ProvisioningHandlers {
	return &ProvisioningHandlers{
		provisioningSvc: provisioningSvc,
		authService:     authService,
		routingService:  routingService,
		identityRepo:    identityRepo,
		idVerifier:      idVerifier,
	}
}

// Provision runs the provisioning saga for a new or returning identity.
func (h *ProvisioningHandlers) Provision(c echo.Context) error {
	ctx := c.Request().Context()

	var req services.ProvisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if req.Password == "" && req.IDToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Either password or id_token is required")
	}

	// An id_token must verify against the external provider before any
	// identity is created for it. The verified claims override whatever
	// the request body says about the identity.
	if req.IDToken != "" {
		if h.idVerifier == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "External identity provider is not configured")
		}
		claims, err := h.idVerifier.Verify(req.IDToken)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid id_token")
		}
		req.Email = claims.Email
		if claims.GivenName != "" {
			req.FirstName = claims.GivenName
		}
		if claims.Surname != "" {
			req.LastName = claims.Surname
		}
	}

	if req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Email is required")
	}
	if req.Region == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Region is required")
	}

	result, err := h.provisioningSvc.Provision(ctx, &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRegion) {
			return echo.NewHTTPError(http.StatusBadRequest, "Unsupported region")
		}
		var stepErr *services.StepError
		if errors.As(err, &stepErr) {
			log.Printf("Provisioning failed at step %s: %v", stepErr.Step, stepErr.Err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Provisioning failed, retry the request")
		}
		log.Printf("Provisioning failed: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Provisioning failed")
	}

	return c.JSON(http.StatusCreated, result)
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Login authenticates an existing identity and issues claims from its
// routing record.
func (h *ProvisioningHandlers) Login(c echo.Context) error {
	ctx := c.Request().Context()

	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Email and password are required")
	}

	user, err := h.identityRepo.GetByEmail(ctx, req.Email)
	if err != nil || user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}
	if user.PasswordHash == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Account uses an external identity provider")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}

	record, err := h.routingService.RoutingFor(ctx, user.ID)
	if err != nil || record == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Identity has not been provisioned")
	}

	tokens, err := h.authService.IssueClaims(ctx, user.ID, record.TenantID, record.Region, record.Role)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate tokens")
	}

	return c.JSON(http.StatusOK, tokens)
}

// Refresh rotates a refresh token into a new token pair.
func (h *ProvisioningHandlers) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.RefreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Refresh token is required")
	}

	tokens, err := h.authService.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token")
	}

	return c.JSON(http.StatusOK, tokens)
}

// Logout revokes the presented refresh token.
func (h *ProvisioningHandlers) Logout(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.RefreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Refresh token is required")
	}

	if err := h.authService.RevokeRefreshToken(ctx, req.RefreshToken); err != nil {
		log.Printf("Failed to revoke refresh token: %v", err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out"})
}
