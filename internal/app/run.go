package app

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/config"
)

// Run starts the role's long-running parts under one errgroup and returns once
// they have all stopped. A failing part cancels the others.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	switch a.Role {
	case config.RoleAPI:
		srv := NewAPIServer(a.Cfg, a)
		g.Go(func() error { return srv.Start(gctx) })
		g.Go(func() error {
			a.Dispatcher.Start(gctx, a.Cfg.IngestWorkers)
			return nil
		})
	case config.RoleWorker:
		srv := NewWorkerServer(a.Cfg, a)
		g.Go(func() error { return srv.Start(gctx) })
	}

	if a.Reaper != nil && a.Role != config.RoleCLI {
		g.Go(func() error { return a.Reaper.Run(gctx) })
	}

	err := g.Wait()
	a.Logger.Info("all components stopped", zap.Error(err))
	return err
}
