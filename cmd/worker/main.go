package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/app"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/config"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/logger"
)

// The worker runs the ingestion pipeline behind POST /process-document for an
// API started with INGEST_MODE=remote. It also runs the stale-processing reaper.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	worker, err := app.NewApp(ctx, cfg, config.RoleWorker, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}

	log.Info("BidWinner worker is running", zap.String("port", cfg.WorkerPort))
	runErr := worker.Run(ctx)
	worker.Close()
	if runErr != nil {
		log.Error("worker stopped with error", zap.Error(runErr))
		os.Exit(1)
	}
}
