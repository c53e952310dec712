package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-gateway/internal/observability"
	"github.com/spec-kit/auth-gateway/internal/repository"
)

// Reclaimer periodically deletes expired ledger entries from backends
// that do not expire them on their own.
type Reclaimer struct {
	purger   repository.Purger
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewReclaimer builds a reclaimer. A non-positive interval defaults to one minute.
func NewReclaimer(purger repository.Purger, interval time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Reclaimer {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reclaimer{
		purger:   purger,
		interval: interval,
		now:      time.Now,
		logger:   logger.Named("reclaimer"),
		metrics:  metrics,
	}
}

// Run purges on every tick until ctx is cancelled.
func (r *Reclaimer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("ledger reclaimer started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("ledger reclaimer stopped")
			return
		case <-ticker.C:
			r.ReclaimOnce(ctx)
		}
	}
}

// ReclaimOnce runs a single purge and returns the number of removed entries.
func (r *Reclaimer) ReclaimOnce(ctx context.Context) int64 {
	purged, err := r.purger.Purge(ctx, r.now())
	if err != nil {
		r.metrics.RecordDependencyFailure(observability.DependencyLedger)
		r.logger.Warn("ledger purge failed", zap.Error(err))
		return 0
	}
	if purged > 0 {
		r.metrics.RecordReclaimed(purged)
		r.logger.Debug("expired revocations purged", zap.Int64("count", purged))
	}
	return purged
}
