package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zoeplatform/zoefinan/internal/cli"
	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/report"
	"github.com/zoeplatform/zoefinan/internal/services"
)

func newMonthsCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "months",
		Short: "List the most recent month keys with their labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := core.NewMonthKeyService(time.Now)
			for _, key := range svc.MonthList(count) {
				label, err := svc.FormatMonthLabel(string(key))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key, label)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 12, "number of months")
	return cmd
}

func newHealthCmd() *cobra.Command {
	var income, committed, format string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Score a month from its income and committed spending",
		Example: `  zoefinan health --income "3.500,00" --committed 2100
  zoefinan health --income 0 --committed 0 --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			in, err := parseNonNegative(income)
			if err != nil {
				return fmt.Errorf("income: %w", err)
			}
			out, err := parseNonNegative(committed)
			if err != nil {
				return fmt.Errorf("committed: %w", err)
			}
			return report.Write(cmd.OutOrStdout(), f, core.EvaluateFinancialHealth(in, out))
		},
	}
	cmd.Flags().StringVar(&income, "income", "0", "monthly income, pt-BR notation accepted")
	cmd.Flags().StringVar(&committed, "committed", "0", "committed spending, pt-BR notation accepted")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	return cmd
}

func newReportCmd() *cobra.Command {
	var uid, month, format string
	var count int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export a user's ledger views",
	}
	cmd.PersistentFlags().StringVarP(&uid, "user", "u", "", "user id (required)")
	cmd.PersistentFlags().StringVarP(&format, "format", "f", "csv", "output format: csv, yaml or json")
	_ = cmd.MarkPersistentFlagRequired("user")

	evolution := &cobra.Command{
		Use:   "evolution",
		Short: "Income, outflow and balance for the last months",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ledger *services.LedgerService) error {
				f, err := report.ParseFormat(format)
				if err != nil {
					return err
				}
				points, err := ledger.Evolution(cmd.Context(), uid, count)
				if err != nil {
					return err
				}
				return report.Write(cmd.OutOrStdout(), f, points)
			})
		},
	}
	evolution.Flags().IntVarP(&count, "count", "n", 6, "number of months")

	breakdown := &cobra.Command{
		Use:   "breakdown",
		Short: "Category shares of one month's income",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ledger *services.LedgerService) error {
				f, err := report.ParseFormat(format)
				if err != nil {
					return err
				}
				key, err := optionalMonth(month)
				if err != nil {
					return err
				}
				d, err := ledger.Diagnosis(cmd.Context(), uid, key)
				if err != nil {
					return err
				}
				return report.Write(cmd.OutOrStdout(), f, d.Categories)
			})
		},
	}
	breakdown.Flags().StringVarP(&month, "month", "m", "", "month key YYYY-MM (default current)")

	diagnosis := &cobra.Command{
		Use:   "diagnosis",
		Short: "Full diagnosis with the action plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ledger *services.LedgerService) error {
				f, err := report.ParseFormat(format)
				if err != nil {
					return err
				}
				if f == report.FormatCSV {
					return fmt.Errorf("%w: diagnosis has no csv form", report.ErrUnsupportedFormat)
				}
				key, err := optionalMonth(month)
				if err != nil {
					return err
				}
				d, err := ledger.Diagnosis(cmd.Context(), uid, key)
				if err != nil {
					return err
				}
				return report.Write(cmd.OutOrStdout(), f, d)
			})
		},
	}
	diagnosis.Flags().StringVarP(&month, "month", "m", "", "month key YYYY-MM (default current)")

	cmd.AddCommand(evolution, breakdown, diagnosis)
	return cmd
}

func newRolloverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollover",
		Short: "Materialize the current month for every user now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(configFile)
			if err != nil {
				return err
			}
			logger := cli.SetupLogger(cfg, log.ComponentRollover)
			_, _, backend := cli.OpenBackend(cmd.Context(), logger, cfg)
			defer backend.Close()

			p := services.NewRolloverProcessor(backend.Store, core.NewMonthKeyService(time.Now),
				backend.Publisher(), cfg.Rollover.Concurrency, logger)
			result, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}
			return report.Write(cmd.OutOrStdout(), report.FormatYAML, result)
		},
	}
}

// withLedger opens the configured backend for the duration of fn. Logs go to
// stderr so reports can be piped.
func withLedger(ctx context.Context, fn func(*services.LedgerService) error) error {
	cfg, err := cli.LoadConfig(configFile)
	if err != nil {
		return err
	}
	logger := log.New(log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Component: log.ComponentApp, Output: os.Stderr})
	_, _, backend := cli.OpenBackend(ctx, logger, cfg)
	defer backend.Close()

	return fn(services.NewLedgerService(backend.Store, core.NewMonthKeyService(time.Now), services.WithLedgerLogger(logger)))
}

func optionalMonth(s string) (core.MonthKey, error) {
	if s == "" {
		return "", nil
	}
	return core.ParseMonthKey(s)
}
