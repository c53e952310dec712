package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-gateway/internal/auth"
	"github.com/spec-kit/auth-gateway/internal/domain"
	"github.com/spec-kit/auth-gateway/internal/events"
	"github.com/spec-kit/auth-gateway/internal/observability"
)

// AccountChecker resolves the liveness of a user id.
type AccountChecker interface {
	Status(ctx context.Context, userID int64) LivenessResult
}

// TokenDependencies encapsulates the collaborators of the token service.
type TokenDependencies struct {
	Tokens     *auth.TokenManager
	Ledger     *RevocationLedger
	Accounts   AccountChecker
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics

	// LedgerUnavailablePolicy resolves RevocationUnknown. Defaults to FailClosed.
	LedgerUnavailablePolicy domain.FailurePolicy
	// RevokeTimeout bounds the detached revocation write.
	RevokeTimeout time.Duration
}

// TokenService validates bearer credentials and revokes them on logout.
// It keeps no per-token state; the ledger and the identity authority are
// the only shared resources.
type TokenService struct {
	tokens        *auth.TokenManager
	ledger        *RevocationLedger
	accounts      AccountChecker
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	metrics       *observability.Metrics
	ledgerPolicy  domain.FailurePolicy
	revokeTimeout time.Duration

	inflight sync.WaitGroup
}

// NewTokenService builds the service.
func NewTokenService(deps TokenDependencies) (*TokenService, error) {
	if deps.Tokens == nil || deps.Ledger == nil || deps.Accounts == nil {
		return nil, errors.New("token service requires tokens, ledger and accounts")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := deps.LedgerUnavailablePolicy
	if policy == "" {
		policy = domain.FailClosed
	}
	revokeTimeout := deps.RevokeTimeout
	if revokeTimeout <= 0 {
		revokeTimeout = 3 * time.Second
	}

	return &TokenService{
		tokens:        deps.Tokens,
		ledger:        deps.Ledger,
		accounts:      deps.Accounts,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		metrics:       deps.Metrics,
		ledgerPolicy:  policy,
		revokeTimeout: revokeTimeout,
	}, nil
}

// Validate reports whether the Authorization header carries a currently
// valid bearer token.
func (s *TokenService) Validate(ctx context.Context, authHeader string) bool {
	return s.Decide(ctx, authHeader).Valid
}

// Decide validates the header and explains the outcome.
func (s *TokenService) Decide(ctx context.Context, authHeader string) domain.Decision {
	token, ok := auth.BearerToken(authHeader)
	if !ok {
		s.metrics.RecordDecision(string(domain.ReasonMissingCredential))
		return domain.Reject(domain.ReasonMissingCredential)
	}
	decision, _ := s.evaluate(ctx, token)
	return decision
}

// Identity returns subject and user id of a valid token. Every failure is
// reported as auth.ErrUnauthorized; auth.ErrMissingCredential and
// auth.ErrInvalidToken tell the two user-visible cases apart.
func (s *TokenService) Identity(ctx context.Context, authHeader string) (domain.Identity, error) {
	token, ok := auth.BearerToken(authHeader)
	if !ok {
		s.metrics.RecordDecision(string(domain.ReasonMissingCredential))
		return domain.Identity{}, auth.ErrMissingCredential
	}

	decision, claims := s.evaluate(ctx, token)
	if !decision.Valid || claims == nil {
		return domain.Identity{}, auth.ErrInvalidToken
	}
	return claims.Identity(), nil
}

// evaluate runs codec, ledger and liveness checks in order and stops at the
// first negative outcome. Claims are returned only for valid tokens.
func (s *TokenService) evaluate(ctx context.Context, token string) (decision domain.Decision, claims *auth.Claims) {
	digest := tokenDigest(token)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("token validation panicked",
				zap.String("token_digest", digest),
				zap.Any("panic", r))
			decision, claims = domain.Reject(domain.ReasonInternalError), nil
		}
		s.metrics.RecordDecision(string(decision.Reason))
		s.logger.Debug("token decision",
			zap.String("token_digest", digest),
			zap.String("reason", string(decision.Reason)))
		if !decision.Valid {
			s.publish(ctx, s.rejectedEvent(digest, claims, decision.Reason))
			claims = nil
		}
	}()

	claims, err := s.tokens.Verify(token)
	if err != nil {
		if auth.IsExpired(err) {
			return domain.Reject(domain.ReasonExpired), nil
		}
		return domain.Reject(domain.ReasonSignatureInvalid), nil
	}

	switch s.ledger.Check(ctx, token) {
	case Revoked:
		return domain.Reject(domain.ReasonRevoked), claims
	case RevocationUnknown:
		if s.ledgerPolicy != domain.FailOpen {
			return domain.Reject(domain.ReasonLedgerUnavailable), claims
		}
	}

	identity := claims.Identity()
	if !identity.HasUserID() {
		return domain.Accept(), claims
	}

	result := s.accounts.Status(ctx, *identity.UserID)
	if result.State.Active() {
		return domain.Accept(), claims
	}
	if !result.State.Exists {
		if result.ExistenceFailed {
			return domain.Reject(domain.ReasonAuthorityUnreachable), claims
		}
		return domain.Reject(domain.ReasonAccountMissing), claims
	}
	if result.EnablementFailed {
		return domain.Reject(domain.ReasonAuthorityUnreachable), claims
	}
	return domain.Reject(domain.ReasonAccountDisabled), claims
}

// Revoke records the bearer token in the ledger. It never reports failure:
// the write runs detached from ctx so it completes even if the request is
// abandoned, and its outcome is logged, counted and published.
func (s *TokenService) Revoke(ctx context.Context, authHeader string) {
	token, ok := auth.BearerToken(authHeader)
	if !ok {
		return
	}

	digest := tokenDigest(token)
	meta, err := s.tokens.DecodeUnverified(token)
	if err != nil {
		s.metrics.RecordRevocation(observability.RevocationSkipped)
		s.logger.Debug("revocation skipped: no usable expiry",
			zap.String("token_digest", digest),
			zap.Error(err))
		return
	}

	detached := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		writeCtx, cancel := context.WithTimeout(detached, s.revokeTimeout)
		defer cancel()

		if err := s.ledger.Revoke(writeCtx, token, meta.ExpiresAt); err != nil {
			s.metrics.RecordRevocation(observability.RevocationFailed)
			s.logger.Error("token revocation failed",
				zap.String("token_digest", digest),
				zap.String("subject", meta.Subject),
				zap.Time("expires_at", meta.ExpiresAt),
				zap.Error(err))
			s.publish(detached, revocationEvent(events.EventTokenRevocationFailed, digest, meta,
				events.TokenRevocationFailedPayload{ExpiresAt: meta.ExpiresAt, Error: err.Error()}))
			return
		}

		s.metrics.RecordRevocation(observability.RevocationStored)
		s.publish(detached, revocationEvent(events.EventTokenRevoked, digest, meta,
			events.TokenRevokedPayload{ExpiresAt: meta.ExpiresAt}))
	}()
}

// revocationEvent carries the unverified subject and user id of the token;
// they are informational only.
func revocationEvent(eventType events.EventType, digest string, meta domain.Token, payload any) events.Event {
	event := events.NewEvent(eventType, digest, payload)
	event.Subject = meta.Subject
	event.UserID = meta.UserID
	return event
}

// Drain waits for in-flight revocations to finish or for ctx to end.
func (s *TokenService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain revocations: %w", ctx.Err())
	}
}

// Ping reports ledger readiness.
func (s *TokenService) Ping(ctx context.Context) error {
	return s.ledger.Ping(ctx)
}

func (s *TokenService) rejectedEvent(digest string, claims *auth.Claims, reason domain.Reason) events.Event {
	event := events.NewEvent(events.EventTokenRejected, digest, events.TokenRejectedPayload{Reason: string(reason)})
	if claims != nil {
		event.Subject = claims.Subject
		event.UserID = claims.UserID
	}
	return event
}

func (s *TokenService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
