package auth

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-gateway/internal/domain"
	apperrors "github.com/spec-kit/auth-gateway/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// IdentityResolver validates a raw Authorization header and returns the
// identity of a valid bearer token.
type IdentityResolver interface {
	Identity(ctx context.Context, authHeader string) (domain.Identity, error)
}

// Principal represents the authenticated caller.
type Principal struct {
	Subject string
	UserID  *int64
}

// AuthMiddleware guards protected routes with the full validation pipeline.
type AuthMiddleware struct {
	resolver IdentityResolver
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(resolver IdentityResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	identity, err := m.resolver.Identity(c.UserContext(), c.Get(fiber.HeaderAuthorization))
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingCredential):
			return apperrors.NewUnauthorized(ErrMissingCredential.Error())
		default:
			return apperrors.NewUnauthorized(ErrInvalidToken.Error())
		}
	}

	c.Locals(principalKey, &Principal{Subject: identity.Subject, UserID: identity.UserID})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
