package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

const (
	neo4jConnectTimeout = 10 * time.Second
	neo4jReadTimeout    = 10 * time.Second
	neo4jWriteTimeout   = 30 * time.Second
)

func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}

// Neo4jConfig configures the graph-backed catalog.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jCatalog implements Client on a Neo4j property graph:
//
//	(:Entry {locator, ...})-[:HAS_TAG]->(:Tag {template, column, fields, kv})
//	(:TagTemplate {id, display_name, fields})
//
// Tag.kv holds "field=value" terms so exact tag-value search is a list
// membership test.
type Neo4jCatalog struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewNeo4jCatalog connects to Neo4j and verifies connectivity.
func NewNeo4jCatalog(ctx context.Context, cfg Neo4jConfig, logger *slog.Logger) (*Neo4jCatalog, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating Neo4j driver for %s: %w", cfg.URI, err)
	}

	vctx, cancel := withTimeout(ctx, neo4jConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verifying Neo4j connection at %s: %w", cfg.URI, err)
	}

	logger.Info("connected to Neo4j", "uri", cfg.URI, "database", cfg.Database)
	return &Neo4jCatalog{driver: driver, database: cfg.Database, logger: logger}, nil
}

func (n *Neo4jCatalog) EnsureSchema(ctx context.Context) error {
	statements := []string{
		"CREATE CONSTRAINT entry_locator IF NOT EXISTS FOR (e:Entry) REQUIRE e.locator IS UNIQUE",
		"CREATE CONSTRAINT tag_template_id IF NOT EXISTS FOR (t:TagTemplate) REQUIRE t.id IS UNIQUE",
		"CREATE INDEX entry_system IF NOT EXISTS FOR (e:Entry) ON (e.system)",
	}
	for _, stmt := range statements {
		wctx, cancel := withTimeout(ctx, neo4jWriteTimeout)
		_, err := n.write(wctx, stmt, nil)
		cancel()
		if err != nil {
			return fmt.Errorf("ensuring catalog schema: %w", err)
		}
	}
	n.logger.Info("catalog schema ensured")
	return nil
}

func (n *Neo4jCatalog) CreateOrUpdateTemplate(ctx context.Context, tpl models.Template) error {
	ctx, cancel := withTimeout(ctx, neo4jWriteTimeout)
	defer cancel()

	fields, err := json.Marshal(tpl.Fields)
	if err != nil {
		return fmt.Errorf("encoding fields of template %s: %w", tpl.ID, err)
	}
	_, err = n.write(ctx,
		"MERGE (t:TagTemplate {id: $id}) SET t.display_name = $display_name, t.fields = $fields",
		map[string]any{"id": tpl.ID, "display_name": tpl.DisplayName, "fields": string(fields)},
	)
	if err != nil {
		return fmt.Errorf("writing template %s: %w", tpl.ID, err)
	}
	return nil
}

func (n *Neo4jCatalog) CreateOrUpdateEntry(ctx context.Context, rec models.Record) error {
	ctx, cancel := withTimeout(ctx, neo4jWriteTimeout)
	defer cancel()

	props, err := entryProps(rec)
	if err != nil {
		return err
	}
	tags := make([]map[string]any, 0, len(rec.Tags))
	for _, t := range rec.Tags {
		fields, err := json.Marshal(t.Fields)
		if err != nil {
			return fmt.Errorf("encoding tag %s of %s: %w", t.TemplateID, rec.ID, err)
		}
		tags = append(tags, map[string]any{
			"template": t.TemplateID,
			"column":   t.Column,
			"fields":   string(fields),
			"kv":       tagTerms(t),
		})
	}

	session := n.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database, AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = session.Close(ctx) }()

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := run(ctx, tx, `
			MERGE (e:Entry {locator: $locator})
			SET e += $props
			WITH e
			OPTIONAL MATCH (e)-[:HAS_TAG]->(old:Tag)
			DETACH DELETE old`,
			map[string]any{"locator": rec.Entry.Locator, "props": props},
		); err != nil {
			return nil, err
		}
		return nil, run(ctx, tx, `
			MATCH (e:Entry {locator: $locator})
			UNWIND $tags AS tag
			CREATE (e)-[:HAS_TAG]->(:Tag {template: tag.template, column: tag.column, fields: tag.fields, kv: tag.kv})`,
			map[string]any{"locator": rec.Entry.Locator, "tags": tags},
		)
	})
	if err != nil {
		return fmt.Errorf("writing entry %s: %w", rec.Entry.Locator, err)
	}
	return nil
}

func (n *Neo4jCatalog) DeleteEntry(ctx context.Context, locator string) error {
	ctx, cancel := withTimeout(ctx, neo4jWriteTimeout)
	defer cancel()

	result, err := n.write(ctx, `
		MATCH (e:Entry {locator: $locator})
		OPTIONAL MATCH (e)-[:HAS_TAG]->(t:Tag)
		DETACH DELETE t, e`,
		map[string]any{"locator": locator},
	)
	if err != nil {
		return fmt.Errorf("deleting entry %s: %w", locator, err)
	}
	if result.Summary.Counters().NodesDeleted() == 0 {
		return fmt.Errorf("entry %s: %w", locator, ErrNotFound)
	}
	return nil
}

func (n *Neo4jCatalog) SearchByQuery(ctx context.Context, q Query) ([]string, error) {
	ctx, cancel := withTimeout(ctx, neo4jReadTimeout)
	defer cancel()

	where, params := matchClause(q)
	result, err := n.read(ctx, "MATCH (e:Entry) "+where+" RETURN e.locator AS locator ORDER BY locator", params)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", q.String(), err)
	}

	out := make([]string, 0, len(result.Records))
	for _, record := range result.Records {
		locator, _, err := neo4j.GetRecordValue[string](record, "locator")
		if err != nil {
			return nil, fmt.Errorf("reading search result: %w", err)
		}
		out = append(out, locator)
	}
	return out, nil
}

func (n *Neo4jCatalog) SearchTagValues(ctx context.Context, q Query, templateID, fieldID string) ([]string, error) {
	ctx, cancel := withTimeout(ctx, neo4jReadTimeout)
	defer cancel()

	where, params := matchClause(q)
	params["template"] = templateID
	result, err := n.read(ctx,
		"MATCH (e:Entry) "+where+" MATCH (e)-[:HAS_TAG]->(t:Tag {template: $template}) RETURN t.fields AS fields",
		params,
	)
	if err != nil {
		return nil, fmt.Errorf("searching tag values of %s.%s for %q: %w", templateID, fieldID, q.String(), err)
	}

	seen := make(map[string]struct{})
	for _, record := range result.Records {
		raw, _, err := neo4j.GetRecordValue[string](record, "fields")
		if err != nil {
			return nil, fmt.Errorf("reading tag fields: %w", err)
		}
		var fields map[string]models.FieldValue
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, fmt.Errorf("decoding tag fields: %w", err)
		}
		if f, ok := fields[fieldID]; ok && f.Kind == models.FieldString {
			seen[f.String] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (n *Neo4jCatalog) ListTemplates(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := withTimeout(ctx, neo4jReadTimeout)
	defer cancel()

	result, err := n.read(ctx,
		"MATCH (t:TagTemplate) WHERE t.id STARTS WITH $prefix RETURN t.id AS id ORDER BY id",
		map[string]any{"prefix": prefix},
	)
	if err != nil {
		return nil, fmt.Errorf("listing templates with prefix %q: %w", prefix, err)
	}
	out := make([]string, 0, len(result.Records))
	for _, record := range result.Records {
		id, _, err := neo4j.GetRecordValue[string](record, "id")
		if err != nil {
			return nil, fmt.Errorf("reading template id: %w", err)
		}
		out = append(out, id)
	}
	return out, nil
}

func (n *Neo4jCatalog) DeleteTemplate(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, neo4jWriteTimeout)
	defer cancel()

	result, err := n.write(ctx, "MATCH (t:TagTemplate {id: $id}) DETACH DELETE t", map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("deleting template %s: %w", id, err)
	}
	if result.Summary.Counters().NodesDeleted() == 0 {
		return fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	return nil
}

func (n *Neo4jCatalog) Close(ctx context.Context) error {
	return n.driver.Close(ctx)
}

func (n *Neo4jCatalog) read(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, n.driver, query, params, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database), neo4j.ExecuteQueryWithReadersRouting())
}

func (n *Neo4jCatalog) write(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, n.driver, query, params, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database), neo4j.ExecuteQueryWithWritersRouting())
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) error {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

// matchClause renders q as a WHERE clause over (e:Entry) with its parameters.
func matchClause(q Query) (string, map[string]any) {
	params := map[string]any{}
	var conds []string
	if q.System != "" {
		conds = append(conds, "e.system = $system")
		params["system"] = q.System
	}
	if q.Type != "" {
		conds = append(conds, "e.type = $type")
		params["type"] = q.Type
	}

	fields := make([]string, 0, len(q.Tags))
	for f := range q.Tags {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for i, f := range fields {
		key := "kv" + strconv.Itoa(i)
		conds = append(conds, fmt.Sprintf("EXISTS { MATCH (e)-[:HAS_TAG]->(t:Tag) WHERE $%s IN t.kv }", key))
		params[key] = f + "=" + q.Tags[f]
	}

	if len(conds) == 0 {
		return "", params
	}
	return "WHERE " + strings.Join(conds, " AND "), params
}

func entryProps(rec models.Record) (map[string]any, error) {
	props := map[string]any{
		"record_id":       rec.ID,
		"source_guid":     rec.SourceGUID,
		"source_type":     rec.SourceType,
		"system":          rec.Entry.System,
		"type":            rec.Entry.Type,
		"display_name":    rec.Entry.DisplayName,
		"description":     rec.Entry.Description,
		"linked_resource": rec.Entry.LinkedResource,
		"create_time":     nil,
		"update_time":     nil,
		"columns":         nil,
	}
	if rec.Entry.CreateTime != nil {
		props["create_time"] = rec.Entry.CreateTime.Unix()
	}
	if rec.Entry.UpdateTime != nil {
		props["update_time"] = rec.Entry.UpdateTime.Unix()
	}
	if len(rec.Entry.Columns) > 0 {
		columns, err := json.Marshal(rec.Entry.Columns)
		if err != nil {
			return nil, fmt.Errorf("encoding columns of %s: %w", rec.ID, err)
		}
		props["columns"] = string(columns)
	}
	return props, nil
}
