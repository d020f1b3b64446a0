package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/service"
)

// PayoutProcessor is implemented by *service.PaymentService.
type PayoutProcessor interface {
	ProcessPendingPayouts(ctx context.Context, limit int) (service.PayoutReport, error)
}

type PayoutWorker struct {
	payments PayoutProcessor
	interval time.Duration
	batch    int
	log      *zap.Logger
}

func NewPayoutWorker(payments PayoutProcessor, interval time.Duration, batch int, log *zap.Logger) *PayoutWorker {
	return &PayoutWorker{payments: payments, interval: interval, batch: batch, log: log}
}

func (w *PayoutWorker) Run(ctx context.Context) {
	runEvery(ctx, w.log, "payouts", w.interval, w.process)
}

func (w *PayoutWorker) process(ctx context.Context) error {
	rep, err := w.payments.ProcessPendingPayouts(ctx, w.batch)
	if err != nil {
		return err
	}
	if rep.Processed+rep.Failed+rep.Skipped > 0 {
		w.log.Info("payout pass",
			zap.Int("processed", rep.Processed), zap.Int("failed", rep.Failed), zap.Int("skipped", rep.Skipped))
	}
	return nil
}
