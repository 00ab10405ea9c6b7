// Package assemble turns enriched source entities into publish-ready records.
package assemble

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/normalize"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/templates"
)

// ErrIDCollision is returned when two different source entities map to the
// same record id.
var ErrIDCollision = errors.New("record id collision")

const (
	listSeparator  = ", "
	namesSeparator = ","
)

// Options identifies where records are published.
type Options struct {
	ProjectID    string
	LocationID   string
	EntryGroupID string
	// System is the user-specified system written on every entry.
	System string
	// InstanceURL is the source instance, the fingerprint of every record.
	InstanceURL string
}

// Assembler builds records against one cycle's type schemas.
type Assembler struct {
	opts   Options
	synth  *templates.Synthesizer
	roles  models.Roles
	logger *slog.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(opts Options, synth *templates.Synthesizer, roles models.Roles, logger *slog.Logger) *Assembler {
	return &Assembler{
		opts:   opts,
		synth:  synth,
		roles:  roles,
		logger: logger,
	}
}

// EntryLocator returns the fully qualified entry name of a record id.
func (a *Assembler) EntryLocator(recordID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/entryGroups/%s/entries/%s",
		a.opts.ProjectID, a.opts.LocationID, a.opts.EntryGroupID, recordID)
}

// AssembleAll assembles every entity in g whose type is defined and allowed.
// Entities of other types stay in g only as reference targets. Entities of
// undefined types are skipped with a warning.
func (a *Assembler) AssembleAll(g *models.Graph, allowed models.TypeSet) ([]models.Record, error) {
	owners := make(map[string]string, g.Len())
	records := make([]models.Record, 0, g.Len())

	for _, e := range g.Entities() {
		if !allowed.Allows(e.TypeName) {
			continue
		}
		if _, ok := a.synth.Dictionary().EntityTypes[e.TypeName]; !ok {
			a.logger.Warn("skipping entity of undefined type", "guid", e.GUID, "type", e.TypeName)
			continue
		}
		rec, err := a.Assemble(g, e)
		if err != nil {
			return nil, err
		}
		if owner, dup := owners[rec.ID]; dup && owner != e.GUID {
			return nil, fmt.Errorf("%w: %s used by %s and %s", ErrIDCollision, rec.ID, owner, e.GUID)
		}
		owners[rec.ID] = e.GUID
		records = append(records, rec)
	}
	return records, nil
}

// Assemble builds the record of one entity. g supplies the payload of
// referenced entities. The result depends only on e, g and the type
// dictionary, so assembling an unchanged entity twice gives equal records.
func (a *Assembler) Assemble(g *models.Graph, e *models.Entity) (models.Record, error) {
	schema, err := a.synth.EntityType(e.TypeName)
	if err != nil {
		return models.Record{}, fmt.Errorf("assembling %s: %w", e.GUID, err)
	}

	id, err := normalize.RecordID(e.TypeName, e.GUID)
	if err != nil {
		return models.Record{}, fmt.Errorf("assembling %s: %w", e.GUID, err)
	}

	rec := models.Record{
		ID:         id,
		SourceGUID: e.GUID,
		SourceType: e.TypeName,
		Entry:      a.entry(g, e, id),
	}

	rec.Tags = append(rec.Tags, a.entityTag(g, e, schema))
	for _, c := range e.Classifications {
		rec.Tags = append(rec.Tags, a.classificationTag(g, c, ""))
	}
	rec.Tags = append(rec.Tags, a.columnTags(g, e)...)

	return rec, nil
}

// --- entry ---

func (a *Assembler) entry(g *models.Graph, e *models.Entity, id string) models.Entry {
	typeName := normalize.FormatName(e.TypeName)
	entry := models.Entry{
		Locator:     a.EntryLocator(id),
		DisplayName: normalize.FormatDisplayName(id),
		Description: e.StringAttr("description"),
		System:      a.opts.System,
		Type:        typeName,
	}
	if name := e.Name(); name != "" {
		entry.DisplayName = normalize.FormatDisplayName(name)
	}

	if location := e.StringAttr("location"); location != "" {
		entry.LinkedResource = "//" + location
	} else {
		entry.LinkedResource = fmt.Sprintf("%s/%s/%s", a.opts.InstanceURL, typeName, id)
	}

	if e.CreateTime > 0 {
		created := millisToTime(e.CreateTime)
		updated := created
		if e.UpdateTime > 0 {
			updated = millisToTime(e.UpdateTime)
		}
		entry.CreateTime = &created
		entry.UpdateTime = &updated
	} else {
		a.logger.Info("entity has no create time; source timestamps omitted", "record", id)
	}

	for _, column := range a.columns(g, e) {
		entry.Columns = append(entry.Columns, models.ColumnSchema{
			Column:      normalize.FormatName(column.Name()),
			Type:        normalize.ColumnDataType(column),
			Description: column.StringAttr("comment"),
		})
	}
	return entry
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// columns returns the loaded columns of e that carry both a name and a data
// type, in declaration order. Others are skipped.
func (a *Assembler) columns(g *models.Graph, e *models.Entity) []*models.Entity {
	v, ok := e.Attr(templates.ColumnsAttribute)
	if !ok {
		return nil
	}
	var out []*models.Entity
	for _, ref := range v.Refs() {
		column, ok := g.Get(ref.GUID)
		if !ok {
			continue
		}
		if column.Name() == "" || normalize.ColumnDataType(column) == "" {
			a.logger.Debug("skipping column without name or data type", "entity", e.GUID, "column", ref.GUID)
			continue
		}
		out = append(out, column)
	}
	return out
}

// --- tags ---

func (a *Assembler) entityTag(g *models.Graph, e *models.Entity, schema *templates.TypeSchema) models.Tag {
	tag := models.NewTag(schema.TemplateID)
	a.setAttributeFields(g, &tag, e.Attributes, schema)

	tag.Fields[normalize.FormatName(e.TypeName)] = models.BoolField(true)
	tag.Fields[templates.FieldGUID] = models.StringField(e.GUID)
	tag.Fields[templates.FieldInstanceURL] = models.StringField(a.opts.InstanceURL)
	a.setRoleFields(g, &tag, e)
	return tag
}

// classificationTag builds the tag of one classification instance. A
// classification type missing from the dictionary still yields a tag, with
// every attribute typed as string.
func (a *Assembler) classificationTag(g *models.Graph, c models.Classification, column string) models.Tag {
	var schema *templates.TypeSchema
	templateID := ""
	if ts, err := a.synth.Classification(c.TypeName); err == nil {
		schema = ts
		templateID = ts.TemplateID
	} else {
		a.logger.Warn("classification type not defined; fields default to string", "classification", c.TypeName)
		templateID, _ = normalize.TemplateID(c.TypeName, string(models.CategoryClassification), "")
	}

	tag := models.NewTag(templateID)
	a.setAttributeFields(g, &tag, c.Attributes, schema)
	tag.Fields[normalize.FormatName(c.TypeName)] = models.BoolField(true)
	if column != "" {
		tag.Column = normalize.FormatName(column)
	}
	return tag
}

// columnTags returns, per valid column of e, the column's classification tags
// followed by its column reference tag.
func (a *Assembler) columnTags(g *models.Graph, e *models.Entity) []models.Tag {
	var tags []models.Tag
	for _, column := range a.columns(g, e) {
		name := column.Name()
		for _, c := range column.Classifications {
			tags = append(tags, a.classificationTag(g, c, name))
		}

		ref := models.NewTag(normalize.ColumnRefTemplateID())
		ref.Fields[templates.FieldColumnGUID] = models.StringField(column.GUID)
		ref.Column = normalize.FormatName(name)
		tags = append(tags, ref)
	}
	return tags
}

func (a *Assembler) setAttributeFields(g *models.Graph, tag *models.Tag, attrs map[string]models.Value, schema *templates.TypeSchema) {
	for name, v := range attrs {
		fieldID := normalize.FormatName(name)
		if fieldID == templates.ColumnsAttribute {
			continue
		}

		kind := models.FieldString
		var field models.TemplateField
		if schema != nil {
			if f, ok := schema.Field(name); ok {
				field = f
				kind = f.Kind
			}
		}

		value, ok := a.fieldValue(g, kind, field, v)
		if !ok {
			a.logger.Debug("attribute value does not fit its field; skipped",
				"template", tag.TemplateID, "field", fieldID, "kind", kind)
			continue
		}
		tag.Fields[fieldID] = value
	}
}

func (a *Assembler) fieldValue(g *models.Graph, kind models.FieldKind, field models.TemplateField, v models.Value) (models.FieldValue, bool) {
	switch kind {
	case models.FieldDouble:
		switch v.Kind {
		case models.KindNumber:
			return models.DoubleField(v.Num), true
		case models.KindString:
			f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
			if err != nil {
				return models.FieldValue{}, false
			}
			return models.DoubleField(f), true
		case models.KindBool:
			if v.Bool {
				return models.DoubleField(1), true
			}
			return models.DoubleField(0), true
		}
		return models.FieldValue{}, false

	case models.FieldBool:
		if v.Kind == models.KindString {
			b, err := strconv.ParseBool(v.Str)
			return models.BoolField(err == nil && b), true
		}
		return models.BoolField(!v.IsZero()), true

	case models.FieldEnum:
		if v.Kind != models.KindString || v.Str == "" {
			return models.FieldValue{}, false
		}
		for _, allowed := range field.EnumValues {
			if allowed == v.Str {
				return models.EnumField(v.Str), true
			}
		}
		return models.FieldValue{}, false
	}

	return models.StringField(normalize.TruncateUTF8(renderText(g, v), normalize.MaxStringValueBytes)), true
}

// renderText renders v for a string field. References to entities present in
// g render as the entity's name.
func renderText(g *models.Graph, v models.Value) string {
	switch v.Kind {
	case models.KindNull:
		return ""
	case models.KindRef:
		return refName(g, v.Ref)
	case models.KindList:
		parts := make([]string, 0, len(v.List))
		for _, item := range v.List {
			parts = append(parts, renderText(g, item))
		}
		return strings.Join(parts, listSeparator)
	}
	return v.Text()
}

func refName(g *models.Graph, ref *models.Ref) string {
	if ref == nil {
		return ""
	}
	if e, ok := g.Get(ref.GUID); ok {
		return e.Name()
	}
	return ref.GUID
}

// --- role fields ---

func (a *Assembler) setRoleFields(g *models.Graph, tag *models.Tag, e *models.Entity) {
	switch e.TypeName {
	case a.roles.Table:
		a.setDBFields(g, tag, e)
		if sd := firstRef(e, "sd"); sd != nil {
			tag.Fields[templates.FieldSDGUID] = models.StringField(sd.GUID)
		}
	case a.roles.View:
		a.setDBFields(g, tag, e)
		if names, ok := refNames(g, e, "inputTables"); ok {
			tag.Fields[templates.FieldInTables] = models.StringField(names)
		}
	case a.roles.Process:
		if names, ok := refNames(g, e, "inputs"); ok {
			tag.Fields[templates.FieldInputs] = models.StringField(names)
		}
		if names, ok := refNames(g, e, "outputs"); ok {
			tag.Fields[templates.FieldOutputs] = models.StringField(names)
		}
	}
}

func (a *Assembler) setDBFields(g *models.Graph, tag *models.Tag, e *models.Entity) {
	db := firstRef(e, "db")
	if db == nil {
		return
	}
	name := ""
	if dbEntity, ok := g.Get(db.GUID); ok {
		name = dbEntity.Name()
	}
	tag.Fields[templates.FieldDBName] = models.StringField(name)
	tag.Fields[templates.FieldDBGUID] = models.StringField(db.GUID)
}

func firstRef(e *models.Entity, attr string) *models.Ref {
	v, ok := e.Attr(attr)
	if !ok {
		return nil
	}
	refs := v.Refs()
	if len(refs) == 0 {
		return nil
	}
	return refs[0]
}

// refNames joins the names of the entities referenced by attr. Entities
// absent from g contribute an empty name.
func refNames(g *models.Graph, e *models.Entity, attr string) (string, bool) {
	v, ok := e.Attr(attr)
	if !ok {
		return "", false
	}
	refs := v.Refs()
	if len(refs) == 0 {
		return "", false
	}
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		name := ""
		if target, ok := g.Get(ref.GUID); ok {
			name = target.Name()
		}
		names = append(names, name)
	}
	return truncate(strings.Join(names, namesSeparator)), true
}

func truncate(s string) string {
	return normalize.TruncateUTF8(s, normalize.MaxStringValueBytes)
}
