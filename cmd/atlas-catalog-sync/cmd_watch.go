package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/api"
)

func watchCmd() *cobra.Command {
	var fullSyncFirst bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow Atlas change notifications and apply them incrementally",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			feed, err := newFeed(ctx, logger)
			if err != nil {
				return fmt.Errorf("watch: connecting to event feed: %w", err)
			}
			defer func() { _ = feed.Close() }()

			cat, err := newCatalog(ctx, logger)
			if err != nil {
				return fmt.Errorf("watch: connecting to catalog: %w", err)
			}
			defer func() { _ = cat.Close(context.WithoutCancel(ctx)) }()

			s := newSynchronizer(newSource(logger), cat, logger)

			if fullSyncFirst {
				if _, err := s.FullSync(ctx); err != nil {
					return fmt.Errorf("watch: initial full sync: %w", err)
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := s.Run(gctx, feed); err != nil {
					return fmt.Errorf("watch: event loop: %w", err)
				}
				return nil
			})
			if cfg.API.ListenAddr != "" {
				httpSrv := newHTTPServer(api.NewServer(s, cat, logger, cfg.API.AuthToken), logger)
				g.Go(func() error {
					return runHTTP(gctx, httpSrv, logger)
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&fullSyncFirst, "full-sync-first", false, "run a full sync before consuming events")
	return cmd
}
