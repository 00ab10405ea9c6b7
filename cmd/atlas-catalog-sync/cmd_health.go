package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// healthCheck is one named connectivity probe.
type healthCheck struct {
	name  string
	probe func(ctx context.Context) error
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to required services",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			checks := []healthCheck{
				{name: "Atlas", probe: func(ctx context.Context) error {
					_, err := newSource(logger).AdminMetrics(ctx)
					return err
				}},
				{name: "Catalog (" + cfg.Catalog.Backend + ")", probe: func(ctx context.Context) error {
					cat, err := newCatalog(ctx, logger)
					if err != nil {
						return err
					}
					return cat.Close(ctx)
				}},
			}
			if cfg.Events.DSN != "" {
				checks = append(checks, healthCheck{name: "Event feed", probe: func(ctx context.Context) error {
					feed, err := newFeed(ctx, logger)
					if err != nil {
						return err
					}
					defer func() { _ = feed.Close() }()
					return feed.Ping(ctx)
				}})
			}

			results := runHealthChecks(ctx, checks)

			allOK := true
			for i, c := range checks {
				if results[i] != nil {
					fmt.Printf("%s: FAIL (%v)\n", c.name, results[i])
					allOK = false
				} else {
					fmt.Printf("%s: OK\n", c.name)
				}
			}
			if !allOK {
				return fmt.Errorf("one or more health checks failed")
			}
			return nil
		},
	}
}

// runHealthChecks probes concurrently and returns one result per check.
func runHealthChecks(ctx context.Context, checks []healthCheck) []error {
	results := make([]error, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			results[i] = c.probe(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
