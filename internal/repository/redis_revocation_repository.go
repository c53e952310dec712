package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRevocationRepository struct {
	client    *redis.Client
	keyPrefix string
	clock
}

// NewRedisRevocationRepository returns a ledger backed by Redis keys with TTL.
func NewRedisRevocationRepository(client *redis.Client, keyPrefix string, opts ...Option) RevocationRepository {
	if keyPrefix == "" {
		keyPrefix = "revoked-token:"
	}
	return &redisRevocationRepository{client: client, keyPrefix: keyPrefix, clock: newClock(opts)}
}

func (r *redisRevocationRepository) key(token string) string {
	return r.keyPrefix + TokenKey(token)
}

func (r *redisRevocationRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return n > 0, nil
}

func (r *redisRevocationRepository) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	// SETNX keeps the first entry; a repeated revoke is a no-op.
	if err := r.client.SetNX(ctx, r.key(token), expiresAt.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

func (r *redisRevocationRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}
