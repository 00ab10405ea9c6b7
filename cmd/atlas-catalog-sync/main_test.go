package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/catalog"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/config"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

func TestRootCmd_RegistersCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"sync", "watch", "serve", "templates", "search", "cleanup", "publish-event", "health", "mcp"} {
		assert.Contains(t, names, want)
	}
}

func TestNewCatalog_MemoryBackend(t *testing.T) {
	cfg = &config.Config{Catalog: config.CatalogConfig{Backend: config.BackendMemory}}
	t.Cleanup(func() { cfg = nil })

	cat, err := newCatalog(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	_, ok := cat.(*catalog.MockCatalog)
	assert.True(t, ok)
}

func TestNewFeed_RequiresDSN(t *testing.T) {
	cfg = &config.Config{Roles: models.DefaultRoles()}
	t.Cleanup(func() { cfg = nil })

	_, err := newFeed(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "events.dsn")
}

func TestRunHealthChecks_KeepsOrder(t *testing.T) {
	boom := errors.New("boom")
	results := runHealthChecks(context.Background(), []healthCheck{
		{name: "a", probe: func(context.Context) error { return nil }},
		{name: "b", probe: func(context.Context) error { return boom }},
		{name: "c", probe: func(context.Context) error { return nil }},
	})
	require.Len(t, results, 3)
	assert.NoError(t, results[0])
	assert.ErrorIs(t, results[1], boom)
	assert.NoError(t, results[2])
}

func TestCleanupCmd_RequiresConfirmation(t *testing.T) {
	cfg = &config.Config{Catalog: config.CatalogConfig{Backend: config.BackendMemory}}
	t.Cleanup(func() { cfg = nil })

	cmd := cleanupCmd()
	cmd.SetContext(context.Background())
	err := cmd.RunE(cmd, nil)
	assert.ErrorContains(t, err, "--yes")
}
