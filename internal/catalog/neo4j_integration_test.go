//go:build integration

package catalog

// Integration tests for Neo4jCatalog; they need a running Neo4j 5.
//
// Run with:
//
//	go test -tags=integration -run TestNeo4jCatalog ./internal/catalog/...
//
// Override the connection via NEO4J_URI, NEO4J_USERNAME and NEO4J_PASSWORD.

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newIntegrationCatalog(t *testing.T) *Neo4jCatalog {
	t.Helper()
	ctx := context.Background()
	c, err := NewNeo4jCatalog(ctx, Neo4jConfig{
		URI:      envOr("NEO4J_URI", "neo4j://localhost:7687"),
		Username: envOr("NEO4J_USERNAME", "neo4j"),
		Password: envOr("NEO4J_PASSWORD", "password"),
	}, slog.Default())
	if err != nil {
		t.Skipf("Neo4j not available: %v", err)
	}
	require.NoError(t, c.EnsureSchema(ctx))
	t.Cleanup(func() { _ = c.Close(ctx) })
	return c
}

func TestNeo4jCatalog_EntryRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newIntegrationCatalog(t)

	rec := mockRecord("table_integ_t1", "integ-t1", "table", "integ-c1")
	require.NoError(t, c.CreateOrUpdateEntry(ctx, rec))
	t.Cleanup(func() { _ = c.DeleteEntry(ctx, rec.Entry.Locator) })

	locators, err := c.SearchByQuery(ctx, Query{System: "apache_atlas", Type: "table"}.WithTag("guid", "integ-t1"))
	require.NoError(t, err)
	assert.Equal(t, []string{rec.Entry.Locator}, locators)

	owners, err := c.SearchTagValues(ctx, Query{Type: "table"}.WithTag("column_guid", "integ-c1"),
		"apache_atlas_entity_type_table", "guid")
	require.NoError(t, err)
	assert.Equal(t, []string{"integ-t1"}, owners)

	require.NoError(t, c.DeleteEntry(ctx, rec.Entry.Locator))
	assert.ErrorIs(t, c.DeleteEntry(ctx, rec.Entry.Locator), ErrNotFound)
}

func TestNeo4jCatalog_Templates(t *testing.T) {
	ctx := context.Background()
	c := newIntegrationCatalog(t)

	tpl := models.Template{ID: "apache_atlas_integ_template", DisplayName: "Integ", Fields: []models.TemplateField{
		{ID: "guid", DisplayName: "guid", Kind: models.FieldString},
	}}
	require.NoError(t, c.CreateOrUpdateTemplate(ctx, tpl))

	ids, err := c.ListTemplates(ctx, "apache_atlas_integ")
	require.NoError(t, err)
	assert.Contains(t, ids, tpl.ID)

	require.NoError(t, c.DeleteTemplate(ctx, tpl.ID))
}
