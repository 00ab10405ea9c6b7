package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

// validCfg returns a fully-valid Config for mutation testing.
func validCfg() *Config {
	return &Config{
		Atlas: AtlasConfig{
			Host:           "http://atlas:21000",
			PageSize:       100,
			FetchChunkSize: 300,
		},
		Catalog: CatalogConfig{
			Backend:      BackendMemory,
			LocationID:   "us-central1",
			EntryGroupID: "apache_atlas",
			System:       "apache_atlas",
		},
		Events: EventsConfig{
			MaxBatch:      500,
			PollTimeout:   10 * time.Second,
			SleepInterval: 5 * time.Second,
		},
		Enrich: EnrichConfig{MaxDepth: 1},
		Roles:  models.DefaultRoles(),
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Setenv("ATLAS_CATALOG_SYNC_ATLAS_HOST", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:21000", cfg.Atlas.Host)
	assert.Equal(t, 100, cfg.Atlas.PageSize)
	assert.Equal(t, 300, cfg.Atlas.FetchChunkSize)
	assert.Equal(t, BackendNeo4j, cfg.Catalog.Backend)
	assert.Equal(t, "us-central1", cfg.Catalog.LocationID)
	assert.Equal(t, "apache_atlas", cfg.Catalog.System)
	assert.Equal(t, 500, cfg.Events.MaxBatch)
	assert.Equal(t, 10*time.Second, cfg.Events.PollTimeout)
	assert.Equal(t, 5*time.Second, cfg.Events.SleepInterval)
	assert.Equal(t, 1, cfg.Enrich.MaxDepth)
	assert.Equal(t, "Table", cfg.Roles.Table)
	assert.Equal(t, "StorageDesc", cfg.Roles.StorageDesc)
}

func TestConfigEnvOverride(t *testing.T) {
	t.Setenv("ATLAS_CATALOG_SYNC_ATLAS_HOST", "http://atlas.example.com:21000")
	t.Setenv("ATLAS_CATALOG_SYNC_CATALOG_BACKEND", "memory")
	t.Setenv("ATLAS_CATALOG_SYNC_EVENTS_POLL_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://atlas.example.com:21000", cfg.Atlas.Host)
	assert.Equal(t, BackendMemory, cfg.Catalog.Backend)
	assert.Equal(t, 3*time.Second, cfg.Events.PollTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty host", func(c *Config) { c.Atlas.Host = "" }, "atlas.host"},
		{"chunk too large", func(c *Config) { c.Atlas.FetchChunkSize = 301 }, "fetch_chunk_size"},
		{"negative rate", func(c *Config) { c.Atlas.RateLimit = -1 }, "rate_limit"},
		{"unknown backend", func(c *Config) { c.Catalog.Backend = "bigquery" }, "catalog.backend"},
		{"neo4j without uri", func(c *Config) { c.Catalog.Backend = BackendNeo4j }, "catalog.neo4j.uri"},
		{"empty system", func(c *Config) { c.Catalog.System = "" }, "catalog.system"},
		{"zero batch", func(c *Config) { c.Events.MaxBatch = 0 }, "max_batch"},
		{"zero poll timeout", func(c *Config) { c.Events.PollTimeout = 0 }, "poll_timeout"},
		{"negative depth", func(c *Config) { c.Enrich.MaxDepth = -1 }, "max_depth"},
		{"missing role", func(c *Config) { c.Roles.Column = "" }, "roles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validCfg()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateEvents(t *testing.T) {
	cfg := validCfg()
	cfg.Events.Table = "events"
	cfg.Events.Channel = "events"
	assert.Error(t, cfg.ValidateEvents())

	cfg.Events.DSN = "postgres://localhost/atlas"
	assert.NoError(t, cfg.ValidateEvents())
}

func TestAtlasConfigStringMasksPassword(t *testing.T) {
	c := AtlasConfig{Host: "h", User: "admin", Password: "supersecret"}
	assert.NotContains(t, c.String(), "supersecret")
	assert.Contains(t, c.String(), "su****et")
}
