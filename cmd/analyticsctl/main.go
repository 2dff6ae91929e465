// analyticsctl runs one-shot token analyses and inspects the automation setup
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/token-analytics/internal/adapter"
	"github.com/token-analytics/internal/config"
	"github.com/token-analytics/internal/job"
	"github.com/token-analytics/internal/logging"
	"github.com/token-analytics/internal/models"
	"github.com/token-analytics/internal/service"
	sig "github.com/token-analytics/internal/signal"
	"github.com/token-analytics/internal/storage"
)

var (
	useFallback bool
	strategy    string
	verbose     bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "analyticsctl",
		Short: "Token analytics command line",
		Long: `analyticsctl computes token metrics and trading signals once and prints
them as JSON. It reads the same environment as the server.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logging.LevelWarn
			if verbose {
				level = logging.LevelDebug
			}
			logging.InitGlobalLogger(level, logging.FormatText)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&useFallback, "fallback", false, "Use deterministic fallback market data instead of the RPC endpoint")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(signalCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(tokensCmd())

	return rootCmd
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [address]",
		Short: "Analyze one token, or every configured token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := newService(ctx, sig.StrategyBasic)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				analysis, err := svc.AnalyzeToken(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), analysis)
			}

			result, err := svc.RunPass(ctx)
			if result == nil {
				return err
			}
			if err != nil {
				logging.WithError(err).Warn("Some tokens failed")
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func signalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal <address>",
		Short: "Print the trading signal for a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := newService(ctx, strategy)
			if err != nil {
				return err
			}
			if _, err := svc.AnalyzeToken(ctx, args[0]); err != nil {
				return err
			}
			detail, err := svc.Signal(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), detail)
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", sig.StrategyBasic, fmt.Sprintf("Signal strategy: %v", sig.Names()))
	return cmd
}

func jobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the default automation jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJobs(cmd.OutOrStdout(), job.DefaultJobs())
		},
	}
}

func tokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens",
		Short: "List the configured tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			return printTokens(cmd.OutOrStdout(), cfg.Tokens)
		},
	}
}

// newService builds an analytics service backed by in-memory stores
func newService(ctx context.Context, strategyName string) (*service.AnalyticsService, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	strat, err := sig.ForName(strategyName)
	if err != nil {
		return nil, err
	}

	var source adapter.MarketDataSource = adapter.NewFallbackSource()
	if !useFallback && cfg.Chain.RPCPrimary != "" {
		ethereum, err := adapter.NewEthereumSource(ctx, &cfg.Chain)
		if err != nil {
			return nil, fmt.Errorf("connect to ethereum RPC (use --fallback to skip): %w", err)
		}
		source = adapter.NewGuardedSource(ethereum, adapter.NewFallbackSource(), nil, adapter.DefaultGuardedConfig())
	}

	return service.NewAnalyticsService(service.Config{
		Source:        source,
		Store:         storage.NewMemoryAnalysisStore(cfg.Analytics.HistoryTTL),
		Signals:       storage.NewMemorySignalStore(),
		Strategy:      strat,
		DefaultTokens: cfg.Tokens,
		Workers:       cfg.Analytics.Workers,
	})
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJobs(w io.Writer, jobs []models.AutomationJob) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tINTERVAL\tACTIVE\tDESCRIPTION")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", j.ID, j.Type, j.Interval, j.IsActive, j.Description)
	}
	return tw.Flush()
}

func printTokens(w io.Writer, tokens []models.TrackedToken) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tADDRESS\tDECIMALS\tACTIVE")
	for _, t := range tokens {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\n", t.Symbol, t.Address, t.Decimals, t.IsActive)
	}
	return tw.Flush()
}
