package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func cleanupCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every entry and template published from this Atlas instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("cleanup: refusing to delete without --yes")
			}
			logger := newLogger()
			ctx := cmd.Context()

			cat, err := newCatalog(ctx, logger)
			if err != nil {
				return fmt.Errorf("cleanup: connecting to catalog: %w", err)
			}
			defer func() { _ = cat.Close(ctx) }()

			entries, tpls, err := newSynchronizer(newSource(logger), cat, logger).Cleanup(ctx)
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			fmt.Printf("Deleted %d entries and %d templates.\n", entries, tpls)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
