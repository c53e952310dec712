package auth

import (
	"errors"
	"strings"
)

// BearerPrefix is the required scheme prefix of the Authorization header.
const BearerPrefix = "Bearer "

var (
	// ErrUnauthorized is the single caller-visible failure category.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMissingCredential means no Authorization header or a non-bearer one.
	ErrMissingCredential error = &unauthorizedError{reason: "missing or invalid authorization header"}
	// ErrInvalidToken means a bearer token was present but not valid.
	ErrInvalidToken error = &unauthorizedError{reason: "invalid token"}
)

type unauthorizedError struct {
	reason string
}

func (e *unauthorizedError) Error() string { return e.reason }

func (e *unauthorizedError) Is(target error) bool { return target == ErrUnauthorized }

// BearerToken strips exactly the bearer prefix and nothing else; surrounding
// whitespace stays part of the token and fails verification. A missing
// prefix or an empty token counts as no credential.
func BearerToken(header string) (string, bool) {
	token, found := strings.CutPrefix(header, BearerPrefix)
	if !found || token == "" {
		return "", false
	}
	return token, true
}
