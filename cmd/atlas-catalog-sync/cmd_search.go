package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/catalog"
)

func searchCmd() *cobra.Command {
	var (
		system string
		guid   string
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search published catalog entries",
		Long:  `Search published entries. The query is a space-separated list of terms: system=<name>, type=<name> and tag:<field>:<value>, e.g. "type=table tag:db_name:sales".`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			q, err := catalog.ParseQuery(strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if q.System == "" {
				q.System = system
			}
			if guid != "" {
				q = q.WithTag("guid", guid)
			}

			cat, err := newCatalog(ctx, logger)
			if err != nil {
				return fmt.Errorf("search: connecting to catalog: %w", err)
			}
			defer func() { _ = cat.Close(ctx) }()

			locators, err := cat.SearchByQuery(ctx, q)
			if err != nil {
				return fmt.Errorf("search: querying catalog: %w", err)
			}

			for i, locator := range locators {
				fmt.Printf("[%d] %s\n", i+1, locator)
			}
			if len(locators) == 0 {
				fmt.Println("No results found.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&system, "system", "apache_atlas", "system to search when the query names none")
	cmd.Flags().StringVar(&guid, "guid", "", "only entries of this Atlas GUID")
	return cmd
}
