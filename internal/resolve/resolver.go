// Package resolve rewrites placeholder source ids in assembled records into
// locators of other records from the same batch.
package resolve

import (
	"log/slog"
	"strings"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/normalize"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/templates"
)

// DefaultUIBaseURL prefixes entry locators to form browsable links.
const DefaultUIBaseURL = "https://console.cloud.google.com/datacatalog"

// Rule resolves one placeholder field on records of one type.
type Rule struct {
	// RecordType is the source type of the records the rule rewrites.
	RecordType string
	// TargetType is the source type of the referenced records.
	TargetType string
	GUIDField  string
	EntryField string
}

// DefaultRules returns the rules for the structural roles, container types
// before dependent types.
func DefaultRules(roles models.Roles) []Rule {
	return []Rule{
		{RecordType: roles.Table, TargetType: roles.Database, GUIDField: templates.FieldDBGUID, EntryField: templates.FieldDBEntry},
		{RecordType: roles.Table, TargetType: roles.StorageDesc, GUIDField: templates.FieldSDGUID, EntryField: templates.FieldSDEntry},
		{RecordType: roles.Table, TargetType: roles.Column, GUIDField: templates.FieldColumnGUID, EntryField: templates.FieldColumnEntry},
		{RecordType: roles.View, TargetType: roles.Database, GUIDField: templates.FieldDBGUID, EntryField: templates.FieldDBEntry},
	}
}

// Report counts the placeholders one Resolve call handled.
type Report struct {
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
}

// Resolver applies a fixed rule set to whole batches.
type Resolver struct {
	rules     []Rule
	uiBaseURL string
	logger    *slog.Logger
}

// NewResolver creates a resolver. An empty uiBaseURL uses DefaultUIBaseURL.
func NewResolver(rules []Rule, uiBaseURL string, logger *slog.Logger) *Resolver {
	if uiBaseURL == "" {
		uiBaseURL = DefaultUIBaseURL
	}
	return &Resolver{
		rules:     rules,
		uiBaseURL: strings.TrimSuffix(uiBaseURL, "/"),
		logger:    logger,
	}
}

type indexKey struct {
	typeName string
	guid     string
}

// Resolve rewrites records in place. The index is built from the whole batch
// before any record is touched. A placeholder whose target is not in the
// batch leaves its entry field unset.
func (r *Resolver) Resolve(records []models.Record) Report {
	index := make(map[indexKey]string, len(records))
	for _, rec := range records {
		index[indexKey{typeName: rec.Entry.Type, guid: rec.SourceGUID}] = r.uiBaseURL + "/" + rec.Entry.Locator
	}

	var report Report
	for _, rule := range r.rules {
		recordType := normalize.FormatName(rule.RecordType)
		targetType := normalize.FormatName(rule.TargetType)

		for i := range records {
			if records[i].Entry.Type != recordType {
				continue
			}
			for j := range records[i].Tags {
				tag := &records[i].Tags[j]
				guid, ok := tag.StringValue(rule.GUIDField)
				if !ok || guid == "" {
					continue
				}
				locator, ok := index[indexKey{typeName: targetType, guid: guid}]
				if !ok {
					report.Unresolved++
					r.logger.Debug("reference target not in batch",
						"record", records[i].ID, "field", rule.GUIDField, "guid", guid)
					continue
				}
				tag.Fields[rule.EntryField] = models.StringField(locator)
				report.Resolved++
			}
		}
	}

	r.logger.Info("relationships resolved", "resolved", report.Resolved, "unresolved", report.Unresolved)
	return report
}
