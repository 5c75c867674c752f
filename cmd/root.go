// Package cmd defines the racecards command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/racecards-crawler/internal/app"
	"github.com/JakeFAU/racecards-crawler/internal/config"
	"github.com/JakeFAU/racecards-crawler/internal/discovery"
	"github.com/JakeFAU/racecards-crawler/internal/logging"
	"github.com/JakeFAU/racecards-crawler/internal/worker"
)

const usage = "Usage: racecards [today|tomorrow]"

// Runner is the part of the application the command drives.
type Runner interface {
	Run(ctx context.Context, day discovery.Day) (worker.Completion, error)
	Close()
}

// newRunner builds the application. Tests replace it.
var newRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "racecards [today|tomorrow]",
		Short: "Snapshot the day's racecards",
		Long: `racecards crawls the racecards index for today or tomorrow, assembles
every race with its runners and going, and writes one JSON snapshot
keyed by region, course and off time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, ok := parseArgs(args)
			if !ok {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), usage)
				return nil
			}
			return run(cmd.Context(), cfgFile, day, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (env RACECARDS_* overrides)")
	cmd.SetFlagErrorFunc(func(c *cobra.Command, _ error) error {
		_, _ = fmt.Fprintln(c.OutOrStdout(), usage)
		return nil
	})
	return cmd
}

func parseArgs(args []string) (discovery.Day, bool) {
	if len(args) != 1 {
		return 0, false
	}
	day, err := discovery.ParseDay(args[0])
	if err != nil {
		return 0, false
	}
	return day, true
}

func run(ctx context.Context, cfgFile string, day discovery.Day, out io.Writer) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	runner, err := newRunner(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer runner.Close()

	done, err := runner.Run(ctx, day)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s: %d races written to %s\n", done.Date, done.Races, done.BlobURI)
	return nil
}

// Execute runs the root command until completion or a termination signal.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "racecards: %v\n", err)
		stop()
		os.Exit(1)
	}
}
