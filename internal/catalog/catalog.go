// Package catalog publishes records and templates to the target metadata
// catalog and searches what was published.
package catalog

import (
	"context"
	"errors"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

// ErrNotFound is returned when an entry or template does not exist.
var ErrNotFound = errors.New("catalog object not found")

// Client defines the target catalog operations the sync engine needs.
type Client interface {
	// EnsureSchema prepares the backend (constraints, indexes). Idempotent.
	EnsureSchema(ctx context.Context) error

	// CreateOrUpdateTemplate creates the template or replaces its fields.
	CreateOrUpdateTemplate(ctx context.Context, tpl models.Template) error

	// CreateOrUpdateEntry writes the record's entry and replaces all of
	// its tags with the record's tags.
	CreateOrUpdateEntry(ctx context.Context, rec models.Record) error

	// DeleteEntry removes an entry and its tags by locator.
	DeleteEntry(ctx context.Context, locator string) error

	// SearchByQuery returns the locators of entries matching q, sorted.
	SearchByQuery(ctx context.Context, q Query) ([]string, error)

	// SearchTagValues returns the distinct values of one field of one tag
	// template over the entries matching q, sorted.
	SearchTagValues(ctx context.Context, q Query, templateID, fieldID string) ([]string, error)

	// ListTemplates returns the ids of templates starting with prefix, sorted.
	ListTemplates(ctx context.Context, prefix string) ([]string, error)

	// DeleteTemplate removes a template by id.
	DeleteTemplate(ctx context.Context, id string) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}
