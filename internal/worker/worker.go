// Package worker runs the periodic background jobs: re-verifying stale
// payments, transferring pending payouts and sending appointment reminders.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runEvery calls job once per interval until ctx is cancelled.  A failed
// pass is logged; the next tick tries again.
func runEvery(ctx context.Context, log *zap.Logger, name string, interval time.Duration, job func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("worker started", zap.String("worker", name), zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopped", zap.String("worker", name))
			return
		case <-ticker.C:
			if err := job(ctx); err != nil && ctx.Err() == nil {
				log.Error("worker pass failed", zap.String("worker", name), zap.Error(err))
			}
		}
	}
}
