package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRevocationRepository struct {
	pool *pgxpool.Pool
	clock
}

// NewPostgresRevocationRepository returns a ledger stored in the
// revoked_tokens table.
func NewPostgresRevocationRepository(pool *pgxpool.Pool, opts ...Option) RevocationRepository {
	return &postgresRevocationRepository{pool: pool, clock: newClock(opts)}
}

func (r *postgresRevocationRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("%w: postgres pool not configured", ErrLedgerUnavailable)
	}

	const query = `
        SELECT EXISTS (
            SELECT 1 FROM revoked_tokens WHERE token_hash=$1 AND expires_at > $2
        )`

	var revoked bool
	if err := r.pool.QueryRow(ctx, query, TokenKey(token), r.now()).Scan(&revoked); err != nil {
		return false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return revoked, nil
}

func (r *postgresRevocationRepository) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("%w: postgres pool not configured", ErrLedgerUnavailable)
	}
	if !expiresAt.After(r.now()) {
		return nil
	}

	const query = `
        INSERT INTO revoked_tokens (token_hash, expires_at)
        VALUES ($1, $2)
        ON CONFLICT (token_hash) DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, TokenKey(token), expiresAt); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

func (r *postgresRevocationRepository) Purge(ctx context.Context, now time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("%w: postgres pool not configured", ErrLedgerUnavailable)
	}

	cmd, err := r.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return cmd.RowsAffected(), nil
}

func (r *postgresRevocationRepository) Ping(ctx context.Context) error {
	if r.pool == nil {
		return fmt.Errorf("%w: postgres pool not configured", ErrLedgerUnavailable)
	}
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}
