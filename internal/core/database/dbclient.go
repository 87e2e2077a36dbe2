package db

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/config"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
)

// Open picks the backend from DATABASE_URL: "sqlite:<path>" opens the embedded
// store, anything else is handed to pgx.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (core.DbClient, error) {
	if cfg.UsesSQLite() {
		path := strings.TrimPrefix(cfg.DatabaseURL, "sqlite:")
		logger.Info("using sqlite store", zap.String("path", path))
		return OpenSQLite(ctx, path)
	}
	return NewPostgresClient(ctx, cfg, logger)
}
