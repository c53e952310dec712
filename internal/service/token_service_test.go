package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/auth-gateway/internal/auth"
	"github.com/spec-kit/auth-gateway/internal/auth/authtest"
	"github.com/spec-kit/auth-gateway/internal/domain"
	"github.com/spec-kit/auth-gateway/internal/events"
	"github.com/spec-kit/auth-gateway/internal/repository"
)

var errBackend = errors.New("connection refused")

// countingRepository wraps the memory ledger, counts calls and can fail.
type countingRepository struct {
	*repository.MemoryRevocationRepository
	checks    atomic.Int32
	revokes   atomic.Int32
	failRead  bool
	failWrite bool
}

func newCountingRepository() *countingRepository {
	return &countingRepository{MemoryRevocationRepository: repository.NewMemoryRevocationRepository()}
}

func (r *countingRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	r.checks.Add(1)
	if r.failRead {
		return false, errBackend
	}
	return r.MemoryRevocationRepository.IsRevoked(ctx, token)
}

func (r *countingRepository) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	r.revokes.Add(1)
	if r.failWrite {
		return errBackend
	}
	return r.MemoryRevocationRepository.Revoke(ctx, token, expiresAt)
}

// fakeDirectory stands in for the identity authority.
type fakeDirectory struct {
	exists     bool
	enabled    bool
	existsErr  error
	enabledErr error
	delay      time.Duration

	existsCalls  atomic.Int32
	enabledCalls atomic.Int32
}

func activeDirectory() *fakeDirectory {
	return &fakeDirectory{exists: true, enabled: true}
}

func (d *fakeDirectory) wait(ctx context.Context) error {
	if d.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(d.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *fakeDirectory) UserExists(ctx context.Context, _ int64) (bool, error) {
	d.existsCalls.Add(1)
	if err := d.wait(ctx); err != nil {
		return false, err
	}
	return d.exists, d.existsErr
}

func (d *fakeDirectory) UserEnabled(ctx context.Context, _ int64) (bool, error) {
	d.enabledCalls.Add(1)
	if err := d.wait(ctx); err != nil {
		return false, err
	}
	return d.enabled, d.enabledErr
}

func (d *fakeDirectory) calls() int32 {
	return d.existsCalls.Load() + d.enabledCalls.Load()
}

// panickingDirectory faults inside the authority queries themselves.
type panickingDirectory struct {
	existsPanics  bool
	enabledPanics bool
}

func (d panickingDirectory) UserExists(context.Context, int64) (bool, error) {
	if d.existsPanics {
		panic("exists lookup exploded")
	}
	return true, nil
}

func (d panickingDirectory) UserEnabled(context.Context, int64) (bool, error) {
	if d.enabledPanics {
		panic("enabled lookup exploded")
	}
	return true, nil
}

// panickingAccounts simulates an unexpected fault inside a sub-check.
type panickingAccounts struct{}

func (panickingAccounts) Status(context.Context, int64) LivenessResult {
	panic("unexpected")
}

type fixture struct {
	svc        *TokenService
	repo       *countingRepository
	directory  *fakeDirectory
	logs       *observer.ObservedLogs
	dispatcher events.Dispatcher
}

type fixtureOption func(*TokenDependencies)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	tokens, err := auth.NewTokenManager(authtest.Key)
	require.NoError(t, err)

	repo := newCountingRepository()
	directory := activeDirectory()
	dispatcher := events.NewInMemoryDispatcher()

	deps := TokenDependencies{
		Tokens:        tokens,
		Ledger:        NewRevocationLedger(repo, 200*time.Millisecond, logger, nil),
		Accounts:      NewLivenessService(directory, DefaultLivenessPolicy(), 500*time.Millisecond, logger, nil),
		Dispatcher:    dispatcher,
		Logger:        logger,
		RevokeTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	svc, err := NewTokenService(deps)
	require.NoError(t, err)

	return &fixture{svc: svc, repo: repo, directory: directory, logs: logs, dispatcher: dispatcher}
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Drain(ctx))
}

func bearer(token string) string {
	return auth.BearerPrefix + token
}

func TestNewTokenService_RequiresCollaborators(t *testing.T) {
	_, err := NewTokenService(TokenDependencies{})
	assert.Error(t, err)
}

func TestValidate_MissingOrMalformedHeaderShortCircuits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := authtest.Valid(t, "alice", authtest.UserID(42))

	headers := []string{
		"",
		"Bearer",
		"Bearer ",
		"bearer " + token,
		"Basic dXNlcjpwYXNz",
		"Token " + token,
		token,
	}

	for _, header := range headers {
		assert.False(t, f.svc.Validate(ctx, header), header)
		assert.Equal(t, domain.ReasonMissingCredential, f.svc.Decide(ctx, header).Reason, header)

		_, err := f.svc.Identity(ctx, header)
		assert.ErrorIs(t, err, auth.ErrUnauthorized, header)
		assert.ErrorIs(t, err, auth.ErrMissingCredential, header)
	}

	assert.Zero(t, f.repo.checks.Load(), "ledger must not be consulted")
	assert.Zero(t, f.directory.calls(), "authority must not be consulted")
}

func TestValidate_PaddedTokenIsNotTrimmed(t *testing.T) {
	f := newFixture(t)
	token := authtest.Valid(t, "alice", authtest.UserID(42))

	for _, header := range []string{"Bearer  " + token, bearer(token) + " "} {
		decision := f.svc.Decide(context.Background(), header)
		assert.False(t, decision.Valid, header)
		assert.Equal(t, domain.ReasonSignatureInvalid, decision.Reason, header)
	}
	assert.Zero(t, f.directory.calls())
}

func TestValidate_ForeignSignature(t *testing.T) {
	f := newFixture(t)
	token := authtest.Sign(t, authtest.OtherKey, authtest.Params{
		Subject:   "alice",
		UserID:    authtest.UserID(42),
		ExpiresAt: time.Now().Add(time.Hour),
	})

	decision := f.svc.Decide(context.Background(), bearer(token))
	assert.False(t, decision.Valid)
	assert.Equal(t, domain.ReasonSignatureInvalid, decision.Reason)
	assert.Zero(t, f.repo.checks.Load())
	assert.Zero(t, f.directory.calls())
}

func TestValidate_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := authtest.Sign(t, authtest.Key, authtest.Params{
		Subject:   "alice",
		UserID:    authtest.UserID(42),
		ExpiresAt: time.Now().Add(-time.Minute),
		IssuedAt:  time.Now().Add(-time.Hour),
	})

	assert.False(t, f.svc.Validate(ctx, bearer(token)))
	assert.Equal(t, domain.ReasonExpired, f.svc.Decide(ctx, bearer(token)).Reason)

	_, err := f.svc.Identity(ctx, bearer(token))
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidate_RoundTripWithRevocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	header := bearer(authtest.Valid(t, "alice", authtest.UserID(42)))

	require.True(t, f.svc.Validate(ctx, header))

	f.svc.Revoke(ctx, header)
	f.drain(t)

	decision := f.svc.Decide(ctx, header)
	assert.False(t, decision.Valid)
	assert.Equal(t, domain.ReasonRevoked, decision.Reason)

	_, err := f.svc.Identity(ctx, header)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRevoke_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := authtest.Valid(t, "alice", authtest.UserID(42))

	f.svc.Revoke(ctx, bearer(token))
	f.drain(t)
	revoked, err := f.repo.MemoryRevocationRepository.IsRevoked(ctx, token)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, 1, f.repo.Len())

	f.svc.Revoke(ctx, bearer(token))
	f.drain(t)
	revoked, err = f.repo.MemoryRevocationRepository.IsRevoked(ctx, token)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, 1, f.repo.Len())
	assert.Equal(t, int32(2), f.repo.revokes.Load())
}

func TestRevoke_ConcurrentCallersOnSameToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	header := bearer(authtest.Valid(t, "alice", authtest.UserID(42)))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.Revoke(ctx, header)
			f.svc.Validate(ctx, header)
		}()
	}
	wg.Wait()
	f.drain(t)

	assert.False(t, f.svc.Validate(ctx, header))
	assert.Equal(t, 1, f.repo.Len())
}

func TestRevoke_IgnoresMissingCredential(t *testing.T) {
	f := newFixture(t)

	f.svc.Revoke(context.Background(), "")
	f.svc.Revoke(context.Background(), "Basic abc")
	f.drain(t)

	assert.Zero(t, f.repo.revokes.Load())
}

func TestRevoke_UnverifiableTokenStillRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := authtest.Sign(t, authtest.OtherKey, authtest.Params{Subject: "mallory", ExpiresAt: time.Now().Add(time.Hour)})

	f.svc.Revoke(ctx, bearer(token))
	f.drain(t)

	revoked, err := f.repo.MemoryRevocationRepository.IsRevoked(ctx, token)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevoke_WithoutExpiryDoesNothing(t *testing.T) {
	f := newFixture(t)

	f.svc.Revoke(context.Background(), bearer(authtest.Sign(t, authtest.Key, authtest.Params{Subject: "alice"})))
	f.svc.Revoke(context.Background(), bearer("not-a-jwt"))
	f.drain(t)

	assert.Zero(t, f.repo.revokes.Load())
	assert.Equal(t, 2, f.logs.FilterMessage("revocation skipped: no usable expiry").Len())
}

func TestRevoke_FailureIsObservableNotReturned(t *testing.T) {
	f := newFixture(t)
	f.repo.failWrite = true

	var failed atomic.Int32
	f.dispatcher.Subscribe(events.EventTokenRevocationFailed, func(context.Context, events.Event) error {
		failed.Add(1)
		return nil
	})

	header := bearer(authtest.Valid(t, "alice", authtest.UserID(42)))
	assert.NotPanics(t, func() { f.svc.Revoke(context.Background(), header) })
	f.drain(t)

	assert.Equal(t, 1, f.logs.FilterMessage("token revocation failed").Len())
	assert.Equal(t, int32(1), failed.Load())
}

func TestRevoke_WriteBoundedByRevokeTimeout(t *testing.T) {
	slow := slowWriteRepository{countingRepository: newCountingRepository(), delay: 300 * time.Millisecond}
	f := newFixture(t, func(d *TokenDependencies) {
		d.Ledger = NewRevocationLedger(slow, 50*time.Millisecond, d.Logger, nil)
		d.RevokeTimeout = time.Second
	})
	token := authtest.Valid(t, "alice", authtest.UserID(42))

	f.svc.Revoke(context.Background(), bearer(token))
	f.drain(t)

	revoked, err := slow.MemoryRevocationRepository.IsRevoked(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Zero(t, f.logs.FilterMessage("token revocation failed").Len())
}

func TestRevoke_EventsCarryTokenSubject(t *testing.T) {
	f := newFixture(t)

	var got []events.Event
	var mu sync.Mutex
	f.dispatcher.Subscribe(events.EventTokenRevoked, func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
		return nil
	})

	f.svc.Revoke(context.Background(), bearer(authtest.Valid(t, "alice", authtest.UserID(42))))
	f.drain(t)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Subject)
	require.NotNil(t, got[0].UserID)
	assert.Equal(t, int64(42), *got[0].UserID)
}

func TestRevoke_CompletesAfterRequestIsAbandoned(t *testing.T) {
	f := newFixture(t)
	token := authtest.Valid(t, "alice", authtest.UserID(42))

	ctx, cancel := context.WithCancel(context.Background())
	f.svc.Revoke(ctx, bearer(token))
	cancel()
	f.drain(t)

	revoked, err := f.repo.MemoryRevocationRepository.IsRevoked(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestValidate_AsymmetricAuthorityPolicy(t *testing.T) {
	t.Run("enablement query fails open", func(t *testing.T) {
		f := newFixture(t)
		f.directory.enabledErr = errors.New("authority unavailable")

		decision := f.svc.Decide(context.Background(), bearer(authtest.Valid(t, "alice", authtest.UserID(42))))
		assert.True(t, decision.Valid)
		assert.Equal(t, domain.ReasonValid, decision.Reason)
	})

	t.Run("existence query fails closed", func(t *testing.T) {
		f := newFixture(t)
		f.directory.existsErr = errors.New("authority unavailable")

		decision := f.svc.Decide(context.Background(), bearer(authtest.Valid(t, "alice", authtest.UserID(42))))
		assert.False(t, decision.Valid)
		assert.Equal(t, domain.ReasonAuthorityUnreachable, decision.Reason)
	})

	t.Run("policies are configurable", func(t *testing.T) {
		f := newFixture(t, func(d *TokenDependencies) {
			d.Accounts = NewLivenessService(&fakeDirectory{
				existsErr:  errors.New("down"),
				enabledErr: errors.New("down"),
			}, LivenessPolicy{OnExistenceError: domain.FailOpen, OnEnablementError: domain.FailClosed}, time.Second, nil, nil)
		})

		decision := f.svc.Decide(context.Background(), bearer(authtest.Valid(t, "alice", authtest.UserID(42))))
		assert.False(t, decision.Valid)
		assert.Equal(t, domain.ReasonAuthorityUnreachable, decision.Reason)
	})
}

func TestValidate_AccountStates(t *testing.T) {
	tests := []struct {
		name    string
		exists  bool
		enabled bool
		reason  domain.Reason
	}{
		{name: "active", exists: true, enabled: true, reason: domain.ReasonValid},
		{name: "missing", exists: false, enabled: true, reason: domain.ReasonAccountMissing},
		{name: "disabled", exists: true, enabled: false, reason: domain.ReasonAccountDisabled},
		{name: "missing and disabled", exists: false, enabled: false, reason: domain.ReasonAccountMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.directory.exists = tt.exists
			f.directory.enabled = tt.enabled

			decision := f.svc.Decide(context.Background(), bearer(authtest.Valid(t, "alice", authtest.UserID(42))))
			assert.Equal(t, tt.reason, decision.Reason)
			assert.Equal(t, tt.reason == domain.ReasonValid, decision.Valid)
			assert.Equal(t, int32(1), f.directory.existsCalls.Load())
			assert.Equal(t, int32(1), f.directory.enabledCalls.Load())
		})
	}
}

func TestValidate_NoUserIDSkipsAuthority(t *testing.T) {
	f := newFixture(t)
	f.directory.exists = false

	header := bearer(authtest.Valid(t, "service-account", nil))
	assert.True(t, f.svc.Validate(context.Background(), header))
	assert.Zero(t, f.directory.calls())
	assert.Equal(t, int32(1), f.repo.checks.Load())

	identity, err := f.svc.Identity(context.Background(), header)
	require.NoError(t, err)
	assert.Equal(t, "service-account", identity.Subject)
	assert.Nil(t, identity.UserID)
}

func TestValidate_LedgerUnavailable(t *testing.T) {
	t.Run("fails closed by default", func(t *testing.T) {
		f := newFixture(t)
		f.repo.failRead = true

		decision := f.svc.Decide(context.Background(), bearer(authtest.Valid(t, "alice", authtest.UserID(42))))
		assert.False(t, decision.Valid)
		assert.Equal(t, domain.ReasonLedgerUnavailable, decision.Reason)
		assert.Zero(t, f.directory.calls())
		assert.Equal(t, 1, f.logs.FilterMessage("revocation ledger lookup failed").Len())
	})

	t.Run("fails open when configured", func(t *testing.T) {
		f := newFixture(t, func(d *TokenDependencies) {
			d.LedgerUnavailablePolicy = domain.FailOpen
		})
		f.repo.failRead = true

		decision := f.svc.Decide(context.Background(), bearer(authtest.Valid(t, "alice", authtest.UserID(42))))
		assert.True(t, decision.Valid)
	})
}

func TestValidate_InternalFaultFailsClosed(t *testing.T) {
	f := newFixture(t, func(d *TokenDependencies) {
		d.Accounts = panickingAccounts{}
	})

	decision := f.svc.Decide(context.Background(), bearer(authtest.Valid(t, "alice", authtest.UserID(42))))
	assert.False(t, decision.Valid)
	assert.Equal(t, domain.ReasonInternalError, decision.Reason)

	_, err := f.svc.Identity(context.Background(), bearer(authtest.Valid(t, "alice", authtest.UserID(42))))
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidate_AuthorityQueryPanicIsContained(t *testing.T) {
	tests := []struct {
		name      string
		directory panickingDirectory
		valid     bool
		reason    domain.Reason
	}{
		{
			name:      "existence query",
			directory: panickingDirectory{existsPanics: true},
			reason:    domain.ReasonAuthorityUnreachable,
		},
		{
			name:      "enablement query",
			directory: panickingDirectory{enabledPanics: true},
			valid:     true,
			reason:    domain.ReasonValid,
		},
		{
			name:      "both queries",
			directory: panickingDirectory{existsPanics: true, enabledPanics: true},
			reason:    domain.ReasonAuthorityUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(d *TokenDependencies) {
				d.Accounts = NewLivenessService(tt.directory, DefaultLivenessPolicy(), time.Second, d.Logger, nil)
			})

			var decision domain.Decision
			require.NotPanics(t, func() {
				decision = f.svc.Decide(context.Background(), bearer(authtest.Valid(t, "alice", authtest.UserID(42))))
			})
			assert.Equal(t, tt.valid, decision.Valid)
			assert.Equal(t, tt.reason, decision.Reason)
		})
	}
}

func TestIdentity_ValidToken(t *testing.T) {
	f := newFixture(t)

	identity, err := f.svc.Identity(context.Background(), bearer(authtest.Valid(t, "alice", authtest.UserID(42))))
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Subject)
	require.NotNil(t, identity.UserID)
	assert.Equal(t, int64(42), *identity.UserID)
}

func TestValidate_RejectionsArePublished(t *testing.T) {
	f := newFixture(t)
	f.directory.enabled = false

	var got []events.Event
	var mu sync.Mutex
	f.dispatcher.Subscribe(events.EventTokenRejected, func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
		return nil
	})

	f.svc.Validate(context.Background(), bearer(authtest.Valid(t, "alice", authtest.UserID(42))))

	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Subject)
	assert.Equal(t, domain.ReasonAccountDisabled, domain.Reason(got[0].Payload.(events.TokenRejectedPayload).Reason))
}

func TestDrain_RespectsContext(t *testing.T) {
	f := newFixture(t)
	f.svc.inflight.Add(1)
	defer f.svc.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, f.svc.Drain(ctx), context.DeadlineExceeded)
}
