package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/app"
	"github.com/iliyamo/easybook/internal/config"
	"github.com/iliyamo/easybook/internal/logger"
	"github.com/iliyamo/easybook/internal/notify"
	"github.com/iliyamo/easybook/internal/obs"
	"github.com/iliyamo/easybook/internal/repository"
	"github.com/iliyamo/easybook/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env, "easybook-worker")
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("worker stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, "easybook-worker", cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	sink, err := newSink(cfg, log)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(repository.NewNotificationRepo(a.DB), repository.NewPreferenceRepo(a.DB), sink, log.Named("dispatcher"))
	consumer := notify.NewConsumer(cfg.RabbitURL, cfg.EventsExchange, cfg.NotificationsQueue, dispatcher, log.Named("consumer"))

	jobs := []func(context.Context){
		worker.NewReconciliationWorker(a.Payments, cfg.ReconcileInterval, cfg.ReconcileAfter, cfg.WorkerBatchSize, log.Named("reconcile")).Run,
		worker.NewPayoutWorker(a.Payments, cfg.PayoutInterval, cfg.WorkerBatchSize, log.Named("payouts")).Run,
		worker.NewReminderWorker(a.Store, a.Publisher, cfg.ReminderInterval, cfg.ReminderLead, cfg.WorkerBatchSize, log.Named("reminders")).Run,
		func(ctx context.Context) {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("notification consumer stopped", zap.Error(err))
			}
		},
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(job)
	}
	log.Info("worker started")
	<-ctx.Done()
	log.Info("worker stopping")
	wg.Wait()
	return nil
}

func newSink(cfg config.Config, log *zap.Logger) (notify.Sink, error) {
	switch cfg.EmailSink {
	case "brevo":
		if cfg.BrevoAPIKey == "" {
			return nil, errors.New("EMAIL_SINK=brevo requires BREVO_API_KEY")
		}
		return notify.NewBrevoSink(cfg.BrevoBaseURL, cfg.BrevoAPIKey, cfg.EmailSenderName, cfg.EmailSenderAddress,
			&http.Client{Timeout: 10 * time.Second}, log.Named("brevo")), nil
	case "", "log":
		return notify.LogSink{Log: log.Named("email")}, nil
	}
	return nil, errors.New("EMAIL_SINK must be log or brevo")
}
