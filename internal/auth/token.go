package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/auth-gateway/internal/domain"
)

var (
	// ErrSigningKeyRequired is returned when the manager is built without a key.
	ErrSigningKeyRequired = errors.New("signing key is required")
	// ErrSignatureInvalid covers every verification failure: malformed token,
	// bad signature, wrong algorithm, expired or not yet valid.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrNoExpiry is returned when a token carries no exp claim.
	ErrNoExpiry = errors.New("token has no expiry")
)

var hmacMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// Claims describes the JWT payload issued by the identity service.
type Claims struct {
	UserID *int64 `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns subject and user id from the same claims instance.
func (c *Claims) Identity() domain.Identity {
	return domain.Identity{Subject: c.Subject, UserID: c.UserID}
}

// Token returns the decoded token metadata.
func (c *Claims) Token() domain.Token {
	token := domain.Token{Subject: c.Subject, UserID: c.UserID}
	if c.ExpiresAt != nil {
		token.ExpiresAt = c.ExpiresAt.Time
	}
	if c.IssuedAt != nil {
		token.IssuedAt = c.IssuedAt.Time
	}
	return token
}

// TokenManager verifies HMAC signed JWTs against one fixed key. It never
// issues tokens.
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

// Option configures a TokenManager.
type Option func(*TokenManager)

// WithClock overrides the time source used for temporal claims.
func WithClock(now func() time.Time) Option {
	return func(tm *TokenManager) {
		if now != nil {
			tm.now = now
		}
	}
}

// NewTokenManager builds a new manager. The key is copied; an empty key is an error.
func NewTokenManager(secret []byte, opts ...Option) (*TokenManager, error) {
	if len(secret) == 0 {
		return nil, ErrSigningKeyRequired
	}
	tm := &TokenManager{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm, nil
}

// Verify parses the token, checks its signature and its temporal claims.
// Expiry is reported as ErrSignatureInvalid like any other failure; the
// underlying jwt error stays in the chain.
func (tm *TokenManager) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods(hmacMethods),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrSignatureInvalid
	}
	return claims, nil
}

// DecodeUnverified reads the token metadata without checking the signature.
// It is only used to bound revocation entries, so a token without exp
// yields ErrNoExpiry.
func (tm *TokenManager) DecodeUnverified(tokenStr string) (domain.Token, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return domain.Token{}, fmt.Errorf("decode token: %w", err)
	}
	token := claims.Token()
	if token.ExpiresAt.IsZero() {
		return domain.Token{}, ErrNoExpiry
	}
	return token, nil
}

// IsExpired reports whether a verification error was caused by the exp claim.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
