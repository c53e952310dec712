package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-gateway/internal/observability"
	"github.com/spec-kit/auth-gateway/internal/repository"
)

// RevocationStatus is the outcome of a ledger lookup.
type RevocationStatus int

const (
	// RevocationUnknown means the ledger could not be consulted in time.
	RevocationUnknown RevocationStatus = iota
	NotRevoked
	Revoked
)

func (s RevocationStatus) String() string {
	switch s {
	case NotRevoked:
		return "not_revoked"
	case Revoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// RevocationLedger bounds lookups and pings with a timeout and turns read
// faults into RevocationUnknown instead of an error. Writes are bounded by
// the caller's context.
type RevocationLedger struct {
	repo    repository.RevocationRepository
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewRevocationLedger wraps a repository.
func NewRevocationLedger(repo repository.RevocationRepository, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *RevocationLedger {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevocationLedger{repo: repo, timeout: timeout, logger: logger, metrics: metrics}
}

// Check never fails: an unreachable backend yields RevocationUnknown.
func (l *RevocationLedger) Check(ctx context.Context, token string) RevocationStatus {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	revoked, err := l.repo.IsRevoked(ctx, token)
	if err != nil {
		l.metrics.RecordDependencyFailure(observability.DependencyLedger)
		l.logger.Warn("revocation ledger lookup failed",
			zap.String("token_digest", tokenDigest(token)),
			zap.Error(err))
		return RevocationUnknown
	}
	if revoked {
		return Revoked
	}
	return NotRevoked
}

// Revoke records the token until expiresAt. Repeated calls are no-ops.
func (l *RevocationLedger) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	if err := l.repo.Revoke(ctx, token, expiresAt); err != nil {
		l.metrics.RecordDependencyFailure(observability.DependencyLedger)
		return err
	}
	return nil
}

// Ping checks the backend for readiness probes.
func (l *RevocationLedger) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.repo.Ping(ctx)
}

// tokenDigest is the log-safe handle of a raw token.
func tokenDigest(token string) string {
	return repository.TokenKey(token)[:12]
}
