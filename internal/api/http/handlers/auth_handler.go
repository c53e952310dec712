package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-gateway/internal/api/dto"
	"github.com/spec-kit/auth-gateway/internal/auth"
	apperrors "github.com/spec-kit/auth-gateway/pkg/util/errorutil"
)

// TokenGateway is the part of the token service the HTTP layer calls.
type TokenGateway interface {
	Validate(ctx context.Context, authHeader string) bool
	Revoke(ctx context.Context, authHeader string)
}

// AuthHandler exposes the token endpoints.
type AuthHandler struct {
	tokens      TokenGateway
	serviceName string
	cookieName  string
}

// NewAuthHandler constructs handler.
func NewAuthHandler(tokens TokenGateway, serviceName, cookieName string) *AuthHandler {
	if cookieName == "" {
		cookieName = "JWT"
	}
	return &AuthHandler{tokens: tokens, serviceName: serviceName, cookieName: cookieName}
}

// Welcome handles GET /auth/welcome.
func (h *AuthHandler) Welcome(c *fiber.Ctx) error {
	return c.SendString("Welcome, this endpoint is not secure")
}

// ValidateToken handles GET /auth/validate-token. It always answers 200.
func (h *AuthHandler) ValidateToken(c *fiber.Ctx) error {
	valid := h.tokens.Validate(c.UserContext(), c.Get(fiber.HeaderAuthorization))
	return c.JSON(dto.ValidateTokenResponse{Valid: valid})
}

// Logout handles POST /auth/logout. Revocation completes in the background.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.tokens.Revoke(c.UserContext(), c.Get(fiber.HeaderAuthorization))

	c.Cookie(&fiber.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
	})
	return c.JSON(dto.MessageResponse{Message: "Logout successful"})
}

// UserInfo handles GET /auth/user-info. AuthMiddleware must run first.
func (h *AuthHandler) UserInfo(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized(auth.ErrInvalidToken.Error())
	}
	return c.JSON(dto.UserInfoResponse{
		Username:      principal.Subject,
		UserID:        principal.UserID,
		Authenticated: true,
	})
}

// Health handles GET /auth/health.
func (h *AuthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(dto.HealthResponse{Status: "UP", Service: h.serviceName})
}
