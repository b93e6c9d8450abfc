// Package cleanup reaps ledger rows left in pending by a crashed
// pipeline run so they stop blocking their idempotency keys.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type stalePurchaseFailer interface {
	FailStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}

type Job struct {
	ledger    stalePurchaseFailer
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func New(ledger stalePurchaseFailer, retention time.Duration, logger *zap.Logger) *Job {
	if retention <= 0 {
		retention = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		ledger:    ledger,
		retention: retention,
		interval:  10 * time.Minute,
		now:       time.Now,
		logger:    logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	if j.ledger == nil {
		return nil
	}

	cutoff := j.now().Add(-j.retention)
	rows, err := j.ledger.FailStalePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("reap stale pending purchases: %w", err)
	}
	if rows > 0 {
		j.logger.Info("stale pending purchases reaped", zap.Int64("failed", rows))
	}

	return nil
}

// Start runs the job on a fixed interval until ctx is cancelled.
func (j *Job) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := j.Run(ctx); err != nil {
					j.logger.Warn("cleanup run failed", zap.Error(err))
				}
			}
		}
	}()
}
