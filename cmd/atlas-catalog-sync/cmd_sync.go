package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	var (
		dryRun  bool
		asJSON  bool
		typesFl []string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one full synchronization",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			if len(typesFl) > 0 {
				cfg.Atlas.EntityTypes = typesFl
			}

			cat, err := newCatalog(ctx, logger)
			if err != nil {
				return fmt.Errorf("sync: connecting to catalog: %w", err)
			}
			defer func() { _ = cat.Close(ctx) }()

			s := newSynchronizer(newSource(logger), cat, logger)

			if dryRun {
				tpls, records, err := s.DryRun(ctx)
				if err != nil {
					return fmt.Errorf("sync: dry run: %w", err)
				}
				if asJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]any{"templates": tpls, "records": records})
				}
				fmt.Printf("Dry run: %d templates, %d records would be published\n", len(tpls), len(records))
				for i := range records {
					fmt.Printf("  %s (%s, %d tags)\n", records[i].Entry.Locator, records[i].SourceGUID, len(records[i].Tags))
				}
				return nil
			}

			report, err := s.FullSync(ctx)
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Printf("Task %s: %d entities, %d records, %d templates, %d deleted in %s\n",
				report.TaskID, report.Entities, report.Records, report.Templates, report.Deleted,
				report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
			if report.Resolve.Unresolved > 0 {
				fmt.Printf("  %d relationship references could not be resolved\n", report.Resolve.Unresolved)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "scrape and assemble without publishing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().StringSliceVar(&typesFl, "types", nil, "only synchronize these Atlas entity types")
	return cmd
}
