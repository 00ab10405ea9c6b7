package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

const (
	// DefaultPageSize is the Atlas search page size.
	DefaultPageSize = 100

	// DefaultFetchChunkSize is the largest GUID list sent in one bulk fetch.
	DefaultFetchChunkSize = 300

	// DefaultMaxDepth bounds how far enrichment follows references.
	DefaultMaxDepth = 1

	// Catalog backends.
	BackendNeo4j  = "neo4j"
	BackendMemory = "memory"
)

// Config holds all configuration for the sync engine.
type Config struct {
	Atlas   AtlasConfig   `mapstructure:"atlas"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Events  EventsConfig  `mapstructure:"events"`
	Enrich  EnrichConfig  `mapstructure:"enrich"`
	Roles   models.Roles  `mapstructure:"roles"`
	Logging LoggingConfig `mapstructure:"logging"`
	API     APIConfig     `mapstructure:"api"`
}

// AtlasConfig holds Apache Atlas connection settings.
type AtlasConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// EntityTypes restricts synchronization to these types; empty means all.
	EntityTypes    []string      `mapstructure:"entity_types"`
	PageSize       int           `mapstructure:"page_size"`
	FetchChunkSize int           `mapstructure:"fetch_chunk_size"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// String returns a safe representation of AtlasConfig with the password masked.
func (c AtlasConfig) String() string {
	return fmt.Sprintf("AtlasConfig{Host:%s, User:%s, Password:%s}", c.Host, c.User, maskSecret(c.Password))
}

// CatalogConfig holds target catalog settings.
type CatalogConfig struct {
	Backend      string      `mapstructure:"backend"`
	ProjectID    string      `mapstructure:"project_id"`
	LocationID   string      `mapstructure:"location_id"`
	EntryGroupID string      `mapstructure:"entry_group_id"`
	System       string      `mapstructure:"system"`
	UIBaseURL    string      `mapstructure:"ui_base_url"`
	Neo4j        Neo4jConfig `mapstructure:"neo4j"`
}

// Neo4jConfig holds graph database connection settings.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// EventsConfig holds change feed settings.
type EventsConfig struct {
	DSN           string        `mapstructure:"dsn"`
	Table         string        `mapstructure:"table"`
	Channel       string        `mapstructure:"channel"`
	MaxBatch      int           `mapstructure:"max_batch"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
	SleepInterval time.Duration `mapstructure:"sleep_interval"`
	// TrustInlinePayload uses entity payloads carried by notifications
	// instead of re-fetching them.
	TrustInlinePayload bool `mapstructure:"trust_inline_payload"`
}

// EnrichConfig holds reference enrichment settings.
type EnrichConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig holds status server settings. An empty ListenAddr disables it.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	// AuthToken, when set, is required as a Bearer token on /v1 routes.
	AuthToken string `mapstructure:"auth_token"`
}

// maskSecret shows the first and last 2 chars, replacing the middle with asterisks.
func maskSecret(secret string) string {
	const visible = 2
	if len(secret) <= visible*2 {
		return "***"
	}
	return secret[:visible] + "****" + secret[len(secret)-visible:]
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("atlas.host", "http://localhost:21000")
	v.SetDefault("atlas.user", "admin")
	v.SetDefault("atlas.password", "")
	v.SetDefault("atlas.entity_types", []string{})
	v.SetDefault("atlas.page_size", DefaultPageSize)
	v.SetDefault("atlas.fetch_chunk_size", DefaultFetchChunkSize)
	v.SetDefault("atlas.rate_limit", 0)
	v.SetDefault("atlas.timeout", 30*time.Second)

	v.SetDefault("catalog.backend", BackendNeo4j)
	v.SetDefault("catalog.project_id", "")
	v.SetDefault("catalog.location_id", "us-central1")
	v.SetDefault("catalog.entry_group_id", "apache_atlas")
	v.SetDefault("catalog.system", "apache_atlas")
	v.SetDefault("catalog.ui_base_url", "https://console.cloud.google.com/datacatalog")
	v.SetDefault("catalog.neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("catalog.neo4j.username", "neo4j")
	v.SetDefault("catalog.neo4j.password", "")
	v.SetDefault("catalog.neo4j.database", "neo4j")

	v.SetDefault("events.dsn", "")
	v.SetDefault("events.table", "atlas_entity_events")
	v.SetDefault("events.channel", "atlas_entity_events")
	v.SetDefault("events.max_batch", 500)
	v.SetDefault("events.poll_timeout", 10*time.Second)
	v.SetDefault("events.sleep_interval", 5*time.Second)
	v.SetDefault("events.trust_inline_payload", false)

	v.SetDefault("enrich.max_depth", DefaultMaxDepth)

	roles := models.DefaultRoles()
	v.SetDefault("roles.table", roles.Table)
	v.SetDefault("roles.view", roles.View)
	v.SetDefault("roles.process", roles.Process)
	v.SetDefault("roles.column", roles.Column)
	v.SetDefault("roles.database", roles.Database)
	v.SetDefault("roles.storage_desc", roles.StorageDesc)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("api.listen_addr", "")
	v.SetDefault("api.auth_token", "")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".atlas-catalog-sync"))
	v.AddConfigPath(".")

	// Environment variables: ATLAS_CATALOG_SYNC_ATLAS_HOST, ...
	v.SetEnvPrefix("ATLAS_CATALOG_SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK: use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if c.Atlas.Host == "" {
		return fmt.Errorf("atlas.host must not be empty")
	}
	if c.Atlas.PageSize <= 0 {
		return fmt.Errorf("atlas.page_size must be greater than 0")
	}
	if c.Atlas.FetchChunkSize <= 0 || c.Atlas.FetchChunkSize > DefaultFetchChunkSize {
		return fmt.Errorf("atlas.fetch_chunk_size must be between 1 and %d", DefaultFetchChunkSize)
	}
	if c.Atlas.RateLimit < 0 {
		return fmt.Errorf("atlas.rate_limit must be >= 0")
	}
	switch c.Catalog.Backend {
	case BackendNeo4j:
		if c.Catalog.Neo4j.URI == "" {
			return fmt.Errorf("catalog.neo4j.uri must not be empty")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("catalog.backend must be %q or %q, got %q", BackendNeo4j, BackendMemory, c.Catalog.Backend)
	}
	if c.Catalog.LocationID == "" {
		return fmt.Errorf("catalog.location_id must not be empty")
	}
	if c.Catalog.EntryGroupID == "" {
		return fmt.Errorf("catalog.entry_group_id must not be empty")
	}
	if c.Catalog.System == "" {
		return fmt.Errorf("catalog.system must not be empty")
	}
	if c.Events.MaxBatch <= 0 {
		return fmt.Errorf("events.max_batch must be greater than 0")
	}
	if c.Events.PollTimeout <= 0 {
		return fmt.Errorf("events.poll_timeout must be greater than 0")
	}
	if c.Events.SleepInterval < 0 {
		return fmt.Errorf("events.sleep_interval must be >= 0")
	}
	if c.Enrich.MaxDepth < 0 {
		return fmt.Errorf("enrich.max_depth must be >= 0")
	}
	if c.Roles.Table == "" || c.Roles.Column == "" || c.Roles.Database == "" {
		return fmt.Errorf("roles.table, roles.column and roles.database must not be empty")
	}
	return nil
}

// ValidateEvents checks the settings event mode needs on top of Validate.
func (c *Config) ValidateEvents() error {
	if c.Events.DSN == "" {
		return fmt.Errorf("events.dsn must not be empty in event mode")
	}
	if c.Events.Table == "" || c.Events.Channel == "" {
		return fmt.Errorf("events.table and events.channel must not be empty")
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
