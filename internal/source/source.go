// Package source reads type definitions and entities from the source
// metadata catalog.
package source

import (
	"context"
	"errors"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

// ErrUnexpectedStatus is returned when the source answers with a non-2xx status.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// DefaultFetchChunkSize is the largest number of GUIDs requested at once.
const DefaultFetchChunkSize = 300

// Client is the read-side capability of the source catalog.
type Client interface {
	// ListTypeDefs returns every entity, classification and enum definition.
	ListTypeDefs(ctx context.Context) (models.TypeDictionary, error)

	// SearchEntitiesByType lists active entities of exactly typeName,
	// following pagination to the end.
	SearchEntitiesByType(ctx context.Context, typeName string) ([]models.EntityHeader, error)

	// FetchEntities loads full entities by GUID. GUIDs the source does not
	// know are absent from the result.
	FetchEntities(ctx context.Context, guids []string) (map[string]*models.Entity, error)

	// FetchClassifications returns the classifications of one entity,
	// keeping one instance per classification type and preferring the one
	// attached directly to guid over an inherited one.
	FetchClassifications(ctx context.Context, guid string) ([]models.Classification, error)

	// AdminMetrics returns the source's own entity statistics.
	AdminMetrics(ctx context.Context) (map[string]any, error)
}

// dedupClassifications keeps one classification per type name. When a type
// appears more than once, the instance attached to entityGUID wins.
func dedupClassifications(list []models.Classification, entityGUID string) []models.Classification {
	index := make(map[string]int, len(list))
	out := make([]models.Classification, 0, len(list))
	for _, c := range list {
		i, dup := index[c.TypeName]
		if !dup {
			index[c.TypeName] = len(out)
			out = append(out, c)
			continue
		}
		if c.EntityGUID == entityGUID {
			out[i] = c
		}
	}
	return out
}
