// Package authtest mints signed tokens for tests. Production code never
// issues tokens.
package authtest

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Key is the signing key shared by tests.
var Key = []byte("test-signing-key-0123456789abcdef")

// OtherKey signs tokens that must fail verification.
var OtherKey = []byte("some-other-key-fedcba9876543210")

// Params describes the claims of a test token.
type Params struct {
	Subject   string
	UserID    *int64
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// UserID returns a pointer to id.
func UserID(id int64) *int64 {
	return &id
}

// Sign issues an HS256 token for p signed with key.
func Sign(t testing.TB, key []byte, p Params) string {
	t.Helper()

	claims := jwt.MapClaims{}
	if p.Subject != "" {
		claims["sub"] = p.Subject
	}
	if p.UserID != nil {
		claims["userId"] = *p.UserID
	}
	if !p.ExpiresAt.IsZero() {
		claims["exp"] = p.ExpiresAt.Unix()
	}
	issuedAt := p.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now().Add(-time.Minute)
	}
	claims["iat"] = issuedAt.Unix()

	return SignClaims(t, key, jwt.SigningMethodHS256, claims)
}

// SignClaims signs arbitrary claims with the given method.
func SignClaims(t testing.TB, key any, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()

	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// Valid returns a token for subject/userID that expires in one hour.
func Valid(t testing.TB, subject string, userID *int64) string {
	t.Helper()
	return Sign(t, Key, Params{Subject: subject, UserID: userID, ExpiresAt: time.Now().Add(time.Hour)})
}
