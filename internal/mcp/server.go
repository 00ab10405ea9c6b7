// Package mcp implements a Model Context Protocol server over the synced catalog.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/catalog"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/normalize"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/syncer"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/templates"
)

// defaultSearchLimit is the default number of entries returned by search.
const defaultSearchLimit = 50

// StatusProvider reports synchronizer status.
type StatusProvider interface {
	Status() syncer.Status
}

// Server wraps an MCPServer with the catalog it answers from.
type Server struct {
	mcp    *mcpserver.MCPServer
	cat    catalog.Client
	status StatusProvider
	system string
	logger *slog.Logger
}

// NewServer creates a new MCP server. If cat or status are nil, the
// corresponding tool calls return an error response instead of panicking.
func NewServer(cat catalog.Client, status StatusProvider, system string, logger *slog.Logger) *Server {
	s := &Server{
		cat:    cat,
		status: status,
		system: system,
		logger: logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"atlas-catalog-sync",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildSearchTool(), s.handleSearch)
	mcpSrv.AddTool(buildEntityTool(), s.handleEntity)
	mcpSrv.AddTool(buildTemplatesTool(), s.handleTemplates)
	mcpSrv.AddTool(buildStatusTool(), s.handleStatus)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleSearch is the exported handler for the "search_entries" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleSearch(ctx, req)
}

// HandleEntity is the exported handler for the "entity_entries" tool.
func (s *Server) HandleEntity(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleEntity(ctx, req)
}

// HandleTemplates is the exported handler for the "list_templates" tool.
func (s *Server) HandleTemplates(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleTemplates(ctx, req)
}

// HandleStatus is the exported handler for the "sync_status" tool.
func (s *Server) HandleStatus(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleStatus(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// --- tool definitions ---

func buildSearchTool() mcpgo.Tool {
	return mcpgo.NewTool("search_entries",
		mcpgo.WithDescription("Search catalog entries mirrored from Apache Atlas. Returns entry names."),
		mcpgo.WithString("query",
			mcpgo.Required(),
			mcpgo.Description(`Space-separated terms: type=<name>, system=<name>, tag:<field>:<value>. Example: "type=table tag:db_name:sales"`),
		),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of entries (default: 50)"),
		),
	)
}

func buildEntityTool() mcpgo.Tool {
	return mcpgo.NewTool("entity_entries",
		mcpgo.WithDescription("Find the catalog entries published for one Apache Atlas entity GUID."),
		mcpgo.WithString("guid",
			mcpgo.Required(),
			mcpgo.Description("The Atlas entity GUID"),
		),
	)
}

func buildTemplatesTool() mcpgo.Tool {
	return mcpgo.NewTool("list_templates",
		mcpgo.WithDescription("List tag templates created from the Atlas type system."),
		mcpgo.WithString("prefix",
			mcpgo.Description("Template id prefix (default: all templates created by this tool)"),
		),
	)
}

func buildStatusTool() mcpgo.Tool {
	return mcpgo.NewTool("sync_status",
		mcpgo.WithDescription("Report the synchronizer's current stage and its last completed cycle."),
	)
}

// --- tool handlers ---

func (s *Server) handleSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.cat == nil {
		return mcpgo.NewToolResultError("catalog is unavailable"), nil
	}

	text := req.GetString("query", "")
	if strings.TrimSpace(text) == "" {
		return mcpgo.NewToolResultError("query is required and must not be empty"), nil
	}
	q, err := catalog.ParseQuery(text)
	if err != nil {
		return mcpgo.NewToolResultErrorf("invalid query: %s", err.Error()), nil
	}
	if q.System == "" {
		q.System = s.system
	}

	limit := req.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	locators, err := s.cat.SearchByQuery(ctx, q)
	if err != nil {
		return mcpgo.NewToolResultErrorf("search failed: %s", err.Error()), nil
	}
	total := len(locators)
	if total > limit {
		locators = locators[:limit]
	}

	s.logger.Debug("mcp: search_entries", "query", q.String(), "total", total)
	return toolResultJSON(map[string]any{
		"query":   q.String(),
		"total":   total,
		"entries": locators,
	})
}

func (s *Server) handleEntity(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.cat == nil {
		return mcpgo.NewToolResultError("catalog is unavailable"), nil
	}

	guid := strings.TrimSpace(req.GetString("guid", ""))
	if guid == "" {
		return mcpgo.NewToolResultError("guid is required and must not be empty"), nil
	}

	q := catalog.Query{System: s.system}.WithTag(templates.FieldGUID, guid)
	locators, err := s.cat.SearchByQuery(ctx, q)
	if err != nil {
		return mcpgo.NewToolResultErrorf("search failed: %s", err.Error()), nil
	}
	if locators == nil {
		locators = []string{}
	}
	return toolResultJSON(map[string]any{
		"guid":    guid,
		"entries": locators,
	})
}

func (s *Server) handleTemplates(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.cat == nil {
		return mcpgo.NewToolResultError("catalog is unavailable"), nil
	}

	prefix := req.GetString("prefix", normalize.TemplatePrefix)
	ids, err := s.cat.ListTemplates(ctx, prefix)
	if err != nil {
		return mcpgo.NewToolResultErrorf("listing templates failed: %s", err.Error()), nil
	}
	if ids == nil {
		ids = []string{}
	}
	return toolResultJSON(map[string]any{
		"templates": ids,
	})
}

func (s *Server) handleStatus(_ context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.status == nil {
		return mcpgo.NewToolResultError("synchronizer is unavailable"), nil
	}
	return toolResultJSON(s.status.Status())
}
