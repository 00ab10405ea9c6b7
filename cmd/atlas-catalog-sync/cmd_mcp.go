package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	catalogmcp "github.com/ajitpratap0/atlas-catalog-sync/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  search_entries  search mirrored catalog entries
  entity_entries  entries published for an Atlas GUID
  list_templates  tag templates derived from Atlas types
  sync_status     synchronizer stage and last cycle

If the catalog is unavailable at startup the server still starts;
individual tool calls will return MCP error responses.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			srv := catalogmcp.NewServer(nil, nil, cfg.Catalog.System, logger)
			cat, catErr := newCatalog(ctx, logger)
			if catErr != nil {
				logger.Error("mcp: failed to connect to catalog; tool calls will fail", "error", catErr)
			} else {
				defer func() { _ = cat.Close(context.WithoutCancel(ctx)) }()
				s := newSynchronizer(newSource(logger), cat, logger)
				srv = catalogmcp.NewServer(cat, s, cfg.Catalog.System, logger)
			}

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: atlas-catalog-sync MCP server starting", "transport", "stdio")

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	return cmd
}
