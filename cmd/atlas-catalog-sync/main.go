package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/assemble"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/catalog"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/config"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/events"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/source"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/syncer"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := newRootCmd()
	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "atlas-catalog-sync",
		Short: "Synchronize Apache Atlas metadata into a data catalog",
		Long:  "Mirrors Apache Atlas entities, classifications and relationships into catalog entries and tag templates, by full sync or by following Atlas change notifications.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		syncCmd(),
		watchCmd(),
		serveCmd(),
		templatesCmd(),
		searchCmd(),
		cleanupCmd(),
		publishEventCmd(),
		healthCmd(),
		mcpCmd(),
	)
	return rootCmd
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newSource(logger *slog.Logger) *source.AtlasClient {
	return source.NewAtlasClient(source.AtlasConfig{
		BaseURL:        cfg.Atlas.Host,
		Username:       cfg.Atlas.User,
		Password:       cfg.Atlas.Password,
		PageSize:       cfg.Atlas.PageSize,
		FetchChunkSize: cfg.Atlas.FetchChunkSize,
		RateLimit:      cfg.Atlas.RateLimit,
		Timeout:        cfg.Atlas.Timeout,
	}, logger)
}

// newCatalog connects to the configured target catalog and prepares its schema.
func newCatalog(ctx context.Context, logger *slog.Logger) (catalog.Client, error) {
	var cat catalog.Client
	switch cfg.Catalog.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory catalog; published entries are lost on exit")
		cat = catalog.NewMockCatalog()
	default:
		n, err := catalog.NewNeo4jCatalog(ctx, catalog.Neo4jConfig{
			URI:      cfg.Catalog.Neo4j.URI,
			Username: cfg.Catalog.Neo4j.Username,
			Password: cfg.Catalog.Neo4j.Password,
			Database: cfg.Catalog.Neo4j.Database,
		}, logger)
		if err != nil {
			return nil, err
		}
		cat = n
	}
	if err := cat.EnsureSchema(ctx); err != nil {
		_ = cat.Close(ctx)
		return nil, fmt.Errorf("preparing catalog schema: %w", err)
	}
	return cat, nil
}

func newFeed(ctx context.Context, logger *slog.Logger) (*events.PostgresFeed, error) {
	if err := cfg.ValidateEvents(); err != nil {
		return nil, err
	}
	return events.NewPostgresFeed(ctx, events.PostgresConfig{
		DSN:      cfg.Events.DSN,
		Table:    cfg.Events.Table,
		Channel:  cfg.Events.Channel,
		MaxBatch: cfg.Events.MaxBatch,
	}, cfg.Roles, logger)
}

func newSynchronizer(src source.Client, cat catalog.Client, logger *slog.Logger) *syncer.Synchronizer {
	return syncer.New(src, cat, syncer.Options{
		Target: assemble.Options{
			ProjectID:    cfg.Catalog.ProjectID,
			LocationID:   cfg.Catalog.LocationID,
			EntryGroupID: cfg.Catalog.EntryGroupID,
			System:       cfg.Catalog.System,
			InstanceURL:  cfg.Atlas.Host,
		},
		Roles:              cfg.Roles,
		EntityTypes:        cfg.Atlas.EntityTypes,
		MaxDepth:           cfg.Enrich.MaxDepth,
		UIBaseURL:          cfg.Catalog.UIBaseURL,
		PollTimeout:        cfg.Events.PollTimeout,
		SleepInterval:      cfg.Events.SleepInterval,
		TrustInlinePayload: cfg.Events.TrustInlinePayload,
	}, logger)
}
