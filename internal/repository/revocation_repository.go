package repository

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ErrLedgerUnavailable wraps every fault reaching a ledger backend.
var ErrLedgerUnavailable = errors.New("revocation ledger unavailable")

// RevocationRepository stores revoked tokens until their natural expiry.
// Revoke is idempotent; entries whose expiry has passed are reported as not
// revoked and may be reclaimed at any time.
type RevocationRepository interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	Ping(ctx context.Context) error
}

// Purger is implemented by backends that need active reclamation of expired
// entries. Redis expires keys on its own and does not implement it.
type Purger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// Option configures a repository.
type Option func(*clock)

type clock struct {
	now func() time.Time
}

func newClock(opts []Option) clock {
	c := clock{now: time.Now}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *clock) {
		if now != nil {
			c.now = now
		}
	}
}

// TokenKey derives the fixed size ledger key of a raw token.
func TokenKey(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
