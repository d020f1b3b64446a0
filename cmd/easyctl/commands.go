package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/app"
	"github.com/iliyamo/easybook/internal/config"
	"github.com/iliyamo/easybook/internal/database"
	"github.com/iliyamo/easybook/internal/fee"
	"github.com/iliyamo/easybook/internal/logger"
)

// withApp loads configuration, opens the application and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Env, "easyctl")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				applied, err := database.Migrate(ctx, a.DB)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
					return nil
				}
				for _, v := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", v)
				}
				return nil
			})
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <reference>",
		Short: "Ask the processor for a payment's outcome and apply it",
		Long: `Verify runs the same path as the customer-facing verify endpoint: a
successful charge is settled (payout and confirmation exactly once), a
failed or abandoned one is marked failed, anything else is left pending.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Payments.Verify(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func reconcileCmd() *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-verify stale pending payments once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				rep, err := a.Payments.ReconcileStale(ctx, olderThan, limit)
				if err != nil {
					return err
				}
				a.Log.Info("reconcile finished", zap.Int("checked", rep.Checked), zap.Int("errors", rep.Errors))
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 10*time.Minute, "only payments pending for at least this long")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum payments to check")
	return cmd
}

func payoutsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Initiate transfers for pending payouts once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				rep, err := a.Payments.ProcessPendingPayouts(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum payouts to process")
	return cmd
}

// feeCmd prints the split for an amount without touching the database.
func feeCmd() *cobra.Command {
	var rate string
	cmd := &cobra.Command{
		Use:   "fee <amount>",
		Short: "Show the platform fee split for an amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			r, err := decimal.NewFromString(rate)
			if err != nil {
				return fmt.Errorf("rate: %w", err)
			}
			calc, err := fee.NewCalculator(r)
			if err != nil {
				return err
			}
			platform, provider := calc.Split(amount)
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"amount":          amount.StringFixed(2),
				"platform_fee":    platform.StringFixed(2),
				"provider_amount": provider.StringFixed(2),
			})
		},
	}
	cmd.Flags().StringVar(&rate, "rate", "0.05", "platform fee rate in [0,1]")
	return cmd
}
