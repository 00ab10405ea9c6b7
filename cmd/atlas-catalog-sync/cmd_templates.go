package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/normalize"
)

func templatesCmd() *cobra.Command {
	var (
		published bool
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Show the tag templates derived from the Atlas type system",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			cat, err := newCatalog(ctx, logger)
			if err != nil {
				return fmt.Errorf("templates: connecting to catalog: %w", err)
			}
			defer func() { _ = cat.Close(ctx) }()

			if published {
				ids, err := cat.ListTemplates(ctx, normalize.TemplatePrefix)
				if err != nil {
					return fmt.Errorf("templates: listing: %w", err)
				}
				for _, id := range ids {
					fmt.Println(id)
				}
				if len(ids) == 0 {
					fmt.Println("No templates published.")
				}
				return nil
			}

			tpls, _, err := newSynchronizer(newSource(logger), cat, logger).DryRun(ctx)
			if err != nil {
				return fmt.Errorf("templates: deriving: %w", err)
			}
			for i := range tpls {
				t := &tpls[i]
				fmt.Printf("%s  %q  (%d fields)\n", t.ID, t.DisplayName, len(t.Fields))
				if !verbose {
					continue
				}
				for _, f := range t.Fields {
					fmt.Printf("    %-32s %-8s %s\n", f.ID, f.Kind, f.DisplayName)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&published, "published", false, "list templates already in the catalog instead")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print template fields")
	return cmd
}
