// Package enrich resolves stub references between entities of one batch,
// fetching referenced entities that are not yet part of it.
package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

// Fetcher loads entities the batch does not contain yet.
type Fetcher interface {
	FetchEntities(ctx context.Context, guids []string) (map[string]*models.Entity, error)
	FetchClassifications(ctx context.Context, guid string) ([]models.Classification, error)
}

// Report summarizes one enrichment pass.
type Report struct {
	Spliced int `json:"spliced"`
	Fetched int `json:"fetched"`
	Missing int `json:"missing"`
}

// Enricher rewrites stub references in place. A reference is marked loaded
// once the referenced entity is present in the graph; the payload itself
// stays in the graph and is read by GUID.
type Enricher struct {
	fetcher  Fetcher
	dict     models.TypeDictionary
	maxDepth int
	logger   *slog.Logger
}

// NewEnricher creates an enricher. Entities fetched to satisfy a reference
// are themselves enriched, fetching further only while their distance from
// the initial batch is below maxDepth.
func NewEnricher(fetcher Fetcher, dict models.TypeDictionary, maxDepth int, logger *slog.Logger) *Enricher {
	return &Enricher{
		fetcher:  fetcher,
		dict:     dict,
		maxDepth: maxDepth,
		logger:   logger,
	}
}

// Enrich resolves every stub reference reachable from g's entities. Running
// it again on an enriched graph changes nothing.
func (en *Enricher) Enrich(ctx context.Context, g *models.Graph) (Report, error) {
	var report Report

	depth := make(map[string]int, g.Len())
	queue := make([]string, 0, g.Len())
	for _, e := range g.Entities() {
		depth[e.GUID] = 0
		queue = append(queue, e.GUID)
	}
	missing := make(map[string]bool)

	for len(queue) > 0 {
		guid := queue[0]
		queue = queue[1:]

		entity, ok := g.Get(guid)
		if !ok {
			continue
		}

		var pending []*models.Ref
		for _, name := range entity.AttributeNames() {
			for _, ref := range entity.Attributes[name].Refs() {
				if !ref.IsStub() {
					continue
				}
				if _, known := en.dict.EntityTypes[ref.TypeName]; !known {
					continue
				}
				if _, ok := g.Get(ref.GUID); ok {
					ref.Loaded = true
					report.Spliced++
					continue
				}
				pending = append(pending, ref)
			}
		}

		if len(pending) == 0 || depth[guid] >= en.maxDepth {
			continue
		}

		fetched, err := en.fetch(ctx, pending, missing)
		if err != nil {
			return report, fmt.Errorf("enriching references of %s: %w", guid, err)
		}
		for _, e := range fetched {
			g.Put(e)
			depth[e.GUID] = depth[guid] + 1
			queue = append(queue, e.GUID)
			report.Fetched++
		}

		for _, ref := range pending {
			if _, ok := g.Get(ref.GUID); ok {
				ref.Loaded = true
				report.Spliced++
				continue
			}
			report.Missing++
			en.logger.Warn("reference could not be resolved", "entity", guid, "ref_guid", ref.GUID, "ref_type", ref.TypeName)
		}
	}

	en.logger.Info("enrichment complete", "spliced", report.Spliced, "fetched", report.Fetched, "missing", report.Missing)
	return report, nil
}

// fetch loads the distinct, not previously missed targets of refs together
// with their classifications. GUIDs the source does not return, or returns
// soft-deleted, are recorded in missing so they are requested once per batch.
func (en *Enricher) fetch(ctx context.Context, refs []*models.Ref, missing map[string]bool) ([]*models.Entity, error) {
	seen := make(map[string]bool, len(refs))
	guids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if seen[ref.GUID] || missing[ref.GUID] {
			continue
		}
		seen[ref.GUID] = true
		guids = append(guids, ref.GUID)
	}
	if len(guids) == 0 {
		return nil, nil
	}

	entities, err := en.fetcher.FetchEntities(ctx, guids)
	if err != nil {
		return nil, fmt.Errorf("fetching %d referenced entities: %w", len(guids), err)
	}

	out := make([]*models.Entity, 0, len(entities))
	for _, guid := range guids {
		e, ok := entities[guid]
		if !ok || e == nil {
			missing[guid] = true
			continue
		}
		if e.Status == models.StatusDeleted {
			en.logger.Debug("referenced entity is deleted; treating as missing", "guid", guid, "type", e.TypeName)
			missing[guid] = true
			continue
		}
		classifications, err := en.fetcher.FetchClassifications(ctx, guid)
		if err != nil {
			return nil, fmt.Errorf("fetching classifications of %s: %w", guid, err)
		}
		e.Classifications = classifications
		out = append(out, e)
	}
	return out, nil
}
