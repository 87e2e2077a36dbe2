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

func main() {
	os.Exit(run())
}

func run() int {
	// Handle SIGINT/SIGTERM for graceful shutdown
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

	application, err := app.NewApp(ctx, cfg, config.RoleAPI, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return 1
	}
	defer application.Close()

	log.Info("BidWinner API is running",
		zap.String("env", cfg.Env),
		zap.String("port", cfg.Port),
		zap.String("ingest_mode", cfg.IngestMode),
	)
	if err := application.Run(ctx); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return 1
	}
	log.Info("shut down cleanly")
	return 0
}
