// Package templates synthesizes tag templates from source type definitions,
// merging fields inherited through super-type chains.
package templates

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/normalize"
)

// Well-known field ids written by the assembler and read by the resolver.
const (
	FieldGUID        = "guid"
	FieldInstanceURL = "instance_url"

	FieldDBName   = "db_name"
	FieldDBGUID   = "db_guid"
	FieldDBEntry  = "db_entry"
	FieldSDGUID   = "sd_guid"
	FieldSDEntry  = "sd_entry"
	FieldInputs   = "inputs_names"
	FieldOutputs  = "outputs_names"
	FieldInTables = "input_tables_names"

	FieldColumnGUID  = "column_guid"
	FieldColumnEntry = "column_entry"
)

// ColumnsAttribute is the reserved attribute listing an entity's columns.
const ColumnsAttribute = "columns"

// TypeSchema is the resolved template of one type together with a lookup
// from formatted field id to field definition. It is computed once per type
// and shared by every instance of that type.
type TypeSchema struct {
	TypeName   string
	Category   models.TypeCategory
	Def        models.TypeDef
	TemplateID string
	Template   models.Template
	fields     map[string]models.TemplateField
}

// Field returns the field definition for a raw attribute name.
func (ts *TypeSchema) Field(attrName string) (models.TemplateField, bool) {
	f, ok := ts.fields[normalize.FormatName(attrName)]
	return f, ok
}

type typeKey struct {
	category models.TypeCategory
	name     string
}

// Synthesizer resolves type schemas against one immutable type dictionary.
type Synthesizer struct {
	dict   models.TypeDictionary
	roles  models.Roles
	logger *slog.Logger
	cache  map[typeKey]*TypeSchema
}

// NewSynthesizer creates a synthesizer for one sync cycle.
func NewSynthesizer(dict models.TypeDictionary, roles models.Roles, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		dict:   dict,
		roles:  roles,
		logger: logger,
		cache:  make(map[typeKey]*TypeSchema),
	}
}

// Dictionary returns the type dictionary the synthesizer was built with.
func (s *Synthesizer) Dictionary() models.TypeDictionary { return s.dict }

// EntityType resolves the schema of an entity type.
func (s *Synthesizer) EntityType(name string) (*TypeSchema, error) {
	return s.resolve(models.CategoryEntity, name)
}

// Classification resolves the schema of a classification type.
func (s *Synthesizer) Classification(name string) (*TypeSchema, error) {
	return s.resolve(models.CategoryClassification, name)
}

// Synthesize returns one template per allowed entity type with at least one
// instance in g, one per classification type attached to those instances or
// to their columns, plus the column reference template. A classification
// missing from the dictionary gets a fallback template with string fields.
// Templates are ordered classifications first, then entity types, each
// sorted by id.
func (s *Synthesizer) Synthesize(g *models.Graph, allowed models.TypeSet) ([]models.Template, error) {
	used := make(map[string]map[string]struct{})
	addClassifications := func(e *models.Entity) {
		for _, c := range e.Classifications {
			attrs, ok := used[c.TypeName]
			if !ok {
				attrs = make(map[string]struct{})
				used[c.TypeName] = attrs
			}
			for name := range c.Attributes {
				attrs[name] = struct{}{}
			}
		}
	}

	var entityTypes []string
	for _, name := range g.TypeNames() {
		if !allowed.Allows(name) {
			continue
		}
		if _, ok := s.dict.EntityTypes[name]; !ok {
			s.logger.Warn("entity type has instances but no definition; no template", "type", name)
			continue
		}
		entityTypes = append(entityTypes, name)
		for _, e := range g.OfType(name) {
			addClassifications(e)
			if v, ok := e.Attr(ColumnsAttribute); ok {
				for _, ref := range v.Refs() {
					if column, ok := g.Get(ref.GUID); ok {
						addClassifications(column)
					}
				}
			}
		}
	}

	var classificationTemplates []models.Template
	for name, attrs := range used {
		if _, ok := s.dict.Classifications[name]; !ok {
			tpl, err := FallbackClassificationTemplate(name, attrs)
			if err != nil {
				s.logger.Warn("classification in use but not usable as a template", "classification", name, "error", err)
				continue
			}
			s.logger.Warn("classification in use but not defined; fields default to string", "classification", name)
			classificationTemplates = append(classificationTemplates, tpl)
			continue
		}
		ts, err := s.Classification(name)
		if err != nil {
			return nil, err
		}
		classificationTemplates = append(classificationTemplates, ts.Template)
	}

	entityTemplates := make([]models.Template, 0, len(entityTypes))
	for _, name := range entityTypes {
		ts, err := s.EntityType(name)
		if err != nil {
			return nil, err
		}
		entityTemplates = append(entityTemplates, ts.Template)
	}

	sortByID(classificationTemplates)
	sortByID(entityTemplates)

	out := make([]models.Template, 0, len(classificationTemplates)+len(entityTemplates)+1)
	out = append(out, classificationTemplates...)
	out = append(out, entityTemplates...)
	out = append(out, ColumnRefTemplate())
	return out, nil
}

// FallbackClassificationTemplate describes a classification type the
// dictionary does not define: its presence marker plus one string field per
// attribute name seen on its instances.
func FallbackClassificationTemplate(name string, attrNames map[string]struct{}) (models.Template, error) {
	id, err := normalize.TemplateID(name, string(models.CategoryClassification), "")
	if err != nil {
		return models.Template{}, err
	}
	tpl := models.Template{ID: id, DisplayName: name}

	names := make([]string, 0, len(attrNames))
	for attr := range attrNames {
		names = append(names, attr)
	}
	sort.Strings(names)
	for _, attr := range names {
		tpl.SetField(models.TemplateField{ID: normalize.FormatName(attr), DisplayName: attr, Kind: models.FieldString})
	}

	formatted := normalize.FormatName(name)
	tpl.SetField(models.TemplateField{ID: formatted, DisplayName: formatted, Kind: models.FieldBool})
	return tpl, nil
}

// ColumnRefTemplate describes the column back-reference tag.
func ColumnRefTemplate() models.Template {
	return models.Template{
		ID:          normalize.ColumnRefTemplateID(),
		DisplayName: "Column",
		Fields: []models.TemplateField{
			stringField(FieldColumnGUID, "column guid"),
			stringField(FieldColumnEntry, "column data catalog entry"),
		},
	}
}

func (s *Synthesizer) resolve(category models.TypeCategory, name string) (*TypeSchema, error) {
	key := typeKey{category: category, name: name}
	if ts, ok := s.cache[key]; ok {
		return ts, nil
	}

	def, ok := s.dict.Lookup(category, name)
	if !ok {
		return nil, fmt.Errorf("resolving %s %q: type not defined", category, name)
	}

	templateID, err := normalize.TemplateID(def.Name, string(category), def.Version)
	if err != nil {
		return nil, fmt.Errorf("resolving %s %q: %w", category, name, err)
	}

	formatted := normalize.FormatName(def.Name)
	tpl := models.Template{ID: templateID, DisplayName: def.Name}
	if category == models.CategoryEntity {
		tpl.DisplayName = "Type - " + def.Name
	}

	for _, ancestor := range s.lineage(category, def) {
		for _, attr := range ancestor.Attributes {
			tpl.SetField(s.fieldFor(attr))
		}
	}

	tpl.SetField(models.TemplateField{ID: formatted, DisplayName: formatted, Kind: models.FieldBool})
	if category == models.CategoryEntity {
		tpl.SetField(stringField(FieldGUID, "entity guid"))
		tpl.SetField(stringField(FieldInstanceURL, "instance url"))
		for _, f := range s.roleFields(def.Name) {
			tpl.SetField(f)
		}
	}

	ts := &TypeSchema{
		TypeName:   def.Name,
		Category:   category,
		Def:        def,
		TemplateID: templateID,
		Template:   tpl,
		fields:     make(map[string]models.TemplateField, len(tpl.Fields)),
	}
	for _, f := range tpl.Fields {
		ts.fields[f.ID] = f
	}
	s.cache[key] = ts
	return ts, nil
}

// lineage returns def's ancestors followed by def itself, parents before
// children. Each super-type list is walked in declaration order; a type
// reachable through several parents is visited once, at its first position.
func (s *Synthesizer) lineage(category models.TypeCategory, def models.TypeDef) []models.TypeDef {
	var (
		out     []models.TypeDef
		visited = map[string]bool{}
		visit   func(t models.TypeDef)
	)
	visit = func(t models.TypeDef) {
		if visited[t.Name] {
			return
		}
		visited[t.Name] = true
		for _, parentName := range t.SuperTypes {
			parent, ok := s.dict.Lookup(category, parentName)
			if !ok {
				s.logger.Debug("super type not defined; skipping its fields", "type", t.Name, "super_type", parentName)
				continue
			}
			visit(parent)
		}
		out = append(out, t)
	}
	visit(def)
	return out
}

func (s *Synthesizer) fieldFor(attr models.AttributeDef) models.TemplateField {
	f := models.TemplateField{
		ID:          normalize.FormatName(attr.Name),
		DisplayName: attr.Name,
		Kind:        models.FieldString,
	}
	if normalize.IsPrimitive(attr.TypeName) {
		f.Kind = normalize.ClassifyPrimitive(attr.TypeName)
		return f
	}
	if enum, ok := s.dict.Enums[attr.TypeName]; ok {
		f.Kind = models.FieldEnum
		f.EnumValues = append([]string(nil), enum.Values...)
	}
	return f
}

func (s *Synthesizer) roleFields(typeName string) []models.TemplateField {
	dbFields := []models.TemplateField{
		stringField(FieldDBName, "db name"),
		stringField(FieldDBGUID, "db guid"),
		stringField(FieldDBEntry, "db data catalog entry"),
	}
	switch typeName {
	case s.roles.Table:
		return append(dbFields,
			stringField(FieldSDGUID, "sd guid"),
			stringField(FieldSDEntry, "sd data catalog entry"),
		)
	case s.roles.View:
		return append(dbFields, stringField(FieldInTables, "input tables names"))
	case s.roles.Process:
		return []models.TemplateField{
			stringField(FieldInputs, "inputs names"),
			stringField(FieldOutputs, "outputs names"),
		}
	}
	return nil
}

func stringField(id, displayName string) models.TemplateField {
	return models.TemplateField{ID: id, DisplayName: displayName, Kind: models.FieldString}
}

func sortByID(templates []models.Template) {
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
}
