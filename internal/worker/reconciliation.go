package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/service"
)

// Reconciler is implemented by *service.PaymentService.
type Reconciler interface {
	ReconcileStale(ctx context.Context, age time.Duration, limit int) (service.ReconcileReport, error)
}

// ReconciliationWorker re-verifies payments that stayed PENDING longer than
// After, catching charges whose webhook never arrived.
type ReconciliationWorker struct {
	payments Reconciler
	interval time.Duration
	after    time.Duration
	batch    int
	log      *zap.Logger
}

func NewReconciliationWorker(payments Reconciler, interval, after time.Duration, batch int, log *zap.Logger) *ReconciliationWorker {
	return &ReconciliationWorker{payments: payments, interval: interval, after: after, batch: batch, log: log}
}

func (w *ReconciliationWorker) Run(ctx context.Context) {
	runEvery(ctx, w.log, "reconciliation", w.interval, w.process)
}

func (w *ReconciliationWorker) process(ctx context.Context) error {
	rep, err := w.payments.ReconcileStale(ctx, w.after, w.batch)
	if err != nil {
		return err
	}
	if rep.Checked > 0 {
		w.log.Info("reconciliation pass",
			zap.Int("checked", rep.Checked), zap.Int("settled", rep.Settled),
			zap.Int("failed", rep.Failed), zap.Int("pending", rep.Pending), zap.Int("errors", rep.Errors))
	}
	return nil
}
