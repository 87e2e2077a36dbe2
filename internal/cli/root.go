package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/app"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/config"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	db "github.com/MayukhDg/BidWinnerAI-prod/internal/core/database"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/logger"
)

// env is what every subcommand starts from.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func loadEnv(verbose bool) (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if level == "" && !verbose {
		level = "warn"
	}
	l, err := logger.NewLogger(cfg.Env, level)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: l}, nil
}

// openStore opens only the database, for commands that need nothing else.
func (e *env) openStore(ctx context.Context) (core.DbClient, error) {
	if e.cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}
	return db.Open(ctx, e.cfg, e.logger)
}

func (e *env) openApp(ctx context.Context) (*app.App, error) {
	return app.NewApp(ctx, e.cfg, config.RoleCLI, e.logger)
}

// NewRootCmd builds the bidwinnerctl command tree.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "bidwinnerctl",
		Short:         "Operate the BidWinner ingestion and retrieval pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at info level")

	envFn := func() (*env, error) { return loadEnv(verbose) }

	root.AddCommand(
		newIngestCmd(envFn),
		newSearchCmd(envFn),
		newReapCmd(envFn),
		newMigrateCmd(envFn),
	)
	return root
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
