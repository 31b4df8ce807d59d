package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/cointax/internal/events"
	"github.com/vadiminshakov/cointax/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard and reconcile periodically",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		l := g.logger
		cfg := g.cfg.Web
		bus := events.NewRunBroadcaster(0)
		reports := web.NewReportCache(l.Named("reports"), app.Reconcile, cfg.RefreshInterval, app.Runs, bus)
		server := web.NewServer(l.Named("web"), cfg.Addr, reports, app.Runs, bus, g.cfg.Tax)

		eg, ctx := errgroup.WithContext(cmd.Context())
		eg.Go(func() error {
			if cfg.Domain != "" {
				return server.StartWithAutoTLS(ctx, []string{cfg.Domain}, cfg.CertCacheDir)
			}
			return server.Start(ctx)
		})
		eg.Go(func() error {
			err := app.Run(ctx, cfg.RefreshInterval, reports.Refresh)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})

		return eg.Wait()
	},
}
