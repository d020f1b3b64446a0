// Package app wires configuration into the long-lived components shared by
// the server, the worker and the CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/config"
	"github.com/iliyamo/easybook/internal/database"
	"github.com/iliyamo/easybook/internal/fee"
	"github.com/iliyamo/easybook/internal/gateway"
	"github.com/iliyamo/easybook/internal/notify"
	"github.com/iliyamo/easybook/internal/repository"
	"github.com/iliyamo/easybook/internal/service"
)

// App holds the opened resources and the services built on them.
type App struct {
	Cfg       config.Config
	Log       *zap.Logger
	DB        *sql.DB
	Store     *repository.Store
	Gateway   *gateway.Client
	Fees      fee.Calculator
	Publisher *notify.Publisher

	Appointments *service.AppointmentService
	Payments     *service.PaymentService
	Settlements  *service.SettlementService
}

// New opens MySQL and builds the services.  The RabbitMQ publisher connects
// lazily, so a broker outage does not prevent startup.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	fees, err := fee.NewCalculator(cfg.FeeRate())
	if err != nil {
		return nil, fmt.Errorf("fee calculator: %w", err)
	}
	db, err := database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		return nil, err
	}

	store := repository.NewStore(db)
	gw := gateway.New(gateway.Config{
		BaseURL:       cfg.GatewayBaseURL,
		SecretKey:     cfg.GatewaySecretKey,
		WebhookSecret: cfg.WebhookSecret,
		Timeout:       cfg.GatewayTimeout,
	}, nil)
	pub := notify.NewPublisher(cfg.RabbitURL, cfg.EventsExchange, log.Named("publisher"))

	return &App{
		Cfg:          cfg,
		Log:          log,
		DB:           db,
		Store:        store,
		Gateway:      gw,
		Fees:         fees,
		Publisher:    pub,
		Appointments: service.NewAppointmentService(store, pub, log.Named("appointments")),
		Payments:     service.NewPaymentService(store, gw, fees, pub, log.Named("payments"), cfg.CallbackURL()),
		Settlements:  service.NewSettlementService(store, gw, fees, cfg.Currency, log.Named("settlement")),
	}, nil
}

// Close releases the broker connection and the database pool.
func (a *App) Close() {
	if err := a.Publisher.Close(); err != nil {
		a.Log.Warn("close publisher", zap.Error(err))
	}
	if err := a.DB.Close(); err != nil {
		a.Log.Warn("close database", zap.Error(err))
	}
}
