package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/app"
	"github.com/iliyamo/easybook/internal/config"
	"github.com/iliyamo/easybook/internal/database"
	"github.com/iliyamo/easybook/internal/handler"
	"github.com/iliyamo/easybook/internal/logger"
	"github.com/iliyamo/easybook/internal/middleware"
	"github.com/iliyamo/easybook/internal/obs"
	"github.com/iliyamo/easybook/internal/repository"
	"github.com/iliyamo/easybook/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env, "easybook-api")
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, "easybook-api", cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	applied, err := database.Migrate(ctx, a.DB)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		log.Info("migrations applied", zap.Strings("versions", applied))
	}

	// Redis is optional: without it the limiter and cache pass through.
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Warn("redis unavailable, rate limiting and caching disabled", zap.Error(err))
	} else {
		defer func() { _ = rdb.Close() }()
	}
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log.Named("ratelimit"))
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log.Named("cache"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log.Named("http")))

	catalog := handler.NewCatalogHandler(a.Store.Catalog, cfg.Currency, log)
	appointments := handler.NewAppointmentHandler(a.Appointments, log)
	payments := handler.NewPaymentHandler(a.Payments, log)
	settlement := handler.NewSettlementHandler(a.Settlements, log)
	notifications := handler.NewNotificationHandler(repository.NewNotificationRepo(a.DB), repository.NewPreferenceRepo(a.DB), log)
	auth := handler.NewAuthHandler(cfg, repository.NewUserRepo(a.DB), repository.NewTokenRepo(a.DB), log)

	router.RegisterRoutes(e, a.DB)
	router.RegisterAuth(e, auth, cfg.JWTSecret)
	router.RegisterPublic(e, catalog, payments, cache)
	router.RegisterAppointments(e, appointments, payments, notifications, cfg.JWTSecret)
	router.RegisterCustomer(e, appointments, payments, cfg.JWTSecret, limit)
	router.RegisterBusiness(e, router.BusinessHandlers{
		Catalog:      catalog,
		Appointments: appointments,
		Payments:     payments,
		Settlement:   settlement,
	}, cfg.JWTSecret, limit)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
