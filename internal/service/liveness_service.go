package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-gateway/internal/domain"
	"github.com/spec-kit/auth-gateway/internal/observability"
)

// AccountDirectory is the read contract of the identity authority.
type AccountDirectory interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	UserEnabled(ctx context.Context, userID int64) (bool, error)
}

// LivenessPolicy decides what a failed authority query resolves to.
//
// The two defaults differ on purpose. A failed existence query is treated
// as "absent" so a deleted account is never admitted while the authority is
// down. A failed enablement query is treated as "enabled" so a flaky
// authority does not lock out every existing user.
type LivenessPolicy struct {
	OnExistenceError  domain.FailurePolicy
	OnEnablementError domain.FailurePolicy
}

// DefaultLivenessPolicy fails closed on existence and open on enablement.
func DefaultLivenessPolicy() LivenessPolicy {
	return LivenessPolicy{
		OnExistenceError:  domain.FailClosed,
		OnEnablementError: domain.FailOpen,
	}
}

// LivenessResult is the resolved account state plus which queries failed.
type LivenessResult struct {
	State            domain.AccountState
	ExistenceFailed  bool
	EnablementFailed bool
}

// LivenessService checks account existence and enablement concurrently.
type LivenessService struct {
	directory AccountDirectory
	policy    LivenessPolicy
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewLivenessService builds the service.
func NewLivenessService(directory AccountDirectory, policy LivenessPolicy, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *LivenessService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LivenessService{
		directory: directory,
		policy:    policy,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
}

// Status issues both queries in parallel, waits for both, and resolves
// failures through the policy. It never returns an error.
func (s *LivenessService) Status(ctx context.Context, userID int64) LivenessResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		wg                    sync.WaitGroup
		exists, enabled       bool
		existsErr, enabledErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer recoverQuery("existence", &existsErr)
		exists, existsErr = s.directory.UserExists(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		defer recoverQuery("enablement", &enabledErr)
		enabled, enabledErr = s.directory.UserEnabled(ctx, userID)
	}()
	wg.Wait()

	var result LivenessResult

	if existsErr != nil {
		result.ExistenceFailed = true
		exists = s.policy.OnExistenceError == domain.FailOpen
		s.metrics.RecordDependencyFailure(observability.DependencyIdentityExists)
		s.logger.Warn("identity existence query failed",
			zap.Int64("user_id", userID),
			zap.String("policy", string(s.policy.OnExistenceError)),
			zap.Error(existsErr))
	}
	if enabledErr != nil {
		result.EnablementFailed = true
		enabled = s.policy.OnEnablementError == domain.FailOpen
		s.metrics.RecordDependencyFailure(observability.DependencyIdentityEnabled)
		s.logger.Warn("identity enablement query failed",
			zap.Int64("user_id", userID),
			zap.String("policy", string(s.policy.OnEnablementError)),
			zap.Error(enabledErr))
	}

	result.State = domain.AccountState{Exists: exists, Enabled: enabled}
	return result
}

// recoverQuery turns a panic in a sub-query goroutine into a query error.
func recoverQuery(query string, errp *error) {
	if r := recover(); r != nil {
		*errp = fmt.Errorf("identity %s query panicked: %v", query, r)
	}
}
