package templates

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDictionary() models.TypeDictionary {
	return models.NewTypeDictionary(
		[]models.TypeDef{
			{Name: "Referenceable", Version: "1", Attributes: []models.AttributeDef{
				{Name: "qualifiedName", TypeName: "string"},
			}},
			{Name: "Asset", Version: "1", SuperTypes: []string{"Referenceable"}, Attributes: []models.AttributeDef{
				{Name: "name", TypeName: "string"},
				{Name: "owner", TypeName: "string"},
				{Name: "qualifiedName", TypeName: "int"},
			}},
			{Name: "DataSet", Version: "1", SuperTypes: []string{"Asset"}, Attributes: []models.AttributeDef{
				{Name: "retention", TypeName: "int"},
			}},
			{Name: "Table", Version: "1", SuperTypes: []string{"DataSet"}, Attributes: []models.AttributeDef{
				{Name: "owner", TypeName: "boolean"},
				{Name: "temporary", TypeName: "boolean"},
				{Name: "tier", TypeName: "tier_enum"},
				{Name: "db", TypeName: "DB"},
			}},
			{Name: "DB", Version: "1", SuperTypes: []string{"Asset"}},
			{Name: "View", Version: "1", SuperTypes: []string{"DataSet"}},
			{Name: "LoadProcess", Version: "1", SuperTypes: []string{"Asset"}},
			{Name: "Column", Version: "1", SuperTypes: []string{"DataSet"}, Attributes: []models.AttributeDef{
				{Name: "dataType", TypeName: "string"},
			}},
		},
		[]models.TypeDef{
			{Name: "PII", Version: "1", Attributes: []models.AttributeDef{
				{Name: "level", TypeName: "int"},
			}},
			{Name: "Fact", Version: "1", SuperTypes: []string{"PII"}, Attributes: []models.AttributeDef{
				{Name: "source system", TypeName: "string"},
			}},
		},
		[]models.EnumDef{{Name: "tier_enum", Values: []string{"gold", "silver", "bronze"}}},
	)
}

func fieldIDs(tpl models.Template) []string {
	ids := make([]string, 0, len(tpl.Fields))
	for _, f := range tpl.Fields {
		ids = append(ids, f.ID)
	}
	return ids
}

func TestEntityType_InheritsAncestorFieldsOwnWins(t *testing.T) {
	s := NewSynthesizer(testDictionary(), models.DefaultRoles(), quietLogger())
	ts, err := s.EntityType("Table")
	require.NoError(t, err)

	assert.Equal(t, "apache_atlas_entity_type_table_1", ts.TemplateID)
	assert.Equal(t, "Type - Table", ts.Template.DisplayName)
	assert.Equal(t, []string{
		"qualifiedname", "name", "owner", "retention", "temporary", "tier", "db",
		"table", "guid", "instance_url",
		"db_name", "db_guid", "db_entry", "sd_guid", "sd_entry",
	}, fieldIDs(ts.Template))

	owner, ok := ts.Field("owner")
	require.True(t, ok)
	assert.Equal(t, models.FieldBool, owner.Kind, "own declaration overrides Asset.owner")

	qn, ok := ts.Field("qualifiedName")
	require.True(t, ok)
	assert.Equal(t, models.FieldDouble, qn.Kind, "nearer ancestor overrides farther one")

	tier, ok := ts.Field("tier")
	require.True(t, ok)
	assert.Equal(t, models.FieldEnum, tier.Kind)
	assert.Equal(t, []string{"gold", "silver", "bronze"}, tier.EnumValues)

	db, ok := ts.Field("db")
	require.True(t, ok)
	assert.Equal(t, models.FieldString, db.Kind, "non-primitive non-enum types default to string")

	marker, ok := ts.Field("Table")
	require.True(t, ok)
	assert.Equal(t, models.FieldBool, marker.Kind)
}

func TestEntityType_RoleFields(t *testing.T) {
	s := NewSynthesizer(testDictionary(), models.DefaultRoles(), quietLogger())

	view, err := s.EntityType("View")
	require.NoError(t, err)
	for _, id := range []string{FieldDBName, FieldDBGUID, FieldDBEntry, FieldInTables} {
		_, ok := view.Template.Field(id)
		assert.True(t, ok, id)
	}
	_, ok := view.Template.Field(FieldSDGUID)
	assert.False(t, ok)

	process, err := s.EntityType("LoadProcess")
	require.NoError(t, err)
	_, ok = process.Template.Field(FieldInputs)
	assert.True(t, ok)
	_, ok = process.Template.Field(FieldOutputs)
	assert.True(t, ok)

	db, err := s.EntityType("DB")
	require.NoError(t, err)
	_, ok = db.Template.Field(FieldDBGUID)
	assert.False(t, ok)
}

func TestClassification_InheritsAndHasOnlyMarker(t *testing.T) {
	s := NewSynthesizer(testDictionary(), models.DefaultRoles(), quietLogger())
	ts, err := s.Classification("Fact")
	require.NoError(t, err)

	assert.Equal(t, "apache_atlas_classification_fact_1", ts.TemplateID)
	assert.Equal(t, "Fact", ts.Template.DisplayName)
	assert.Equal(t, []string{"level", "source_system", "fact"}, fieldIDs(ts.Template))
}

func TestResolve_UnknownType(t *testing.T) {
	s := NewSynthesizer(testDictionary(), models.DefaultRoles(), quietLogger())
	_, err := s.EntityType("Nope")
	assert.Error(t, err)
	_, err = s.Classification("Table")
	assert.Error(t, err)
}

func TestResolve_IsMemoized(t *testing.T) {
	s := NewSynthesizer(testDictionary(), models.DefaultRoles(), quietLogger())
	a, err := s.EntityType("Table")
	require.NoError(t, err)
	b, err := s.EntityType("Table")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestLineage_DiamondAndCycleVisitEachTypeOnce(t *testing.T) {
	dict := models.NewTypeDictionary([]models.TypeDef{
		{Name: "Base", Attributes: []models.AttributeDef{{Name: "x", TypeName: "string"}}},
		{Name: "Left", SuperTypes: []string{"Base"}, Attributes: []models.AttributeDef{{Name: "x", TypeName: "int"}}},
		{Name: "Right", SuperTypes: []string{"Base", "Loop"}},
		{Name: "Loop", SuperTypes: []string{"Right"}},
		{Name: "Leaf", SuperTypes: []string{"Left", "Right", "Missing"}},
	}, nil, nil)
	s := NewSynthesizer(dict, models.DefaultRoles(), quietLogger())

	ts, err := s.EntityType("Leaf")
	require.NoError(t, err)
	x, ok := ts.Field("x")
	require.True(t, ok)
	assert.Equal(t, models.FieldDouble, x.Kind, "Base must not be re-applied after Left")
}

func TestSynthesize_SkipsTypesWithoutInstances(t *testing.T) {
	s := NewSynthesizer(testDictionary(), models.DefaultRoles(), quietLogger())
	g := models.NewGraph()
	g.Put(&models.Entity{GUID: "t1", TypeName: "Table", Classifications: []models.Classification{{TypeName: "Fact"}}})
	g.Put(&models.Entity{GUID: "d1", TypeName: "DB"})
	g.Put(&models.Entity{GUID: "u1", TypeName: "Unknown"})

	tpls, err := s.Synthesize(g, nil)
	require.NoError(t, err)

	ids := make([]string, 0, len(tpls))
	for _, tpl := range tpls {
		ids = append(ids, tpl.ID)
	}
	assert.Equal(t, []string{
		"apache_atlas_classification_fact_1",
		"apache_atlas_entity_type_db_1",
		"apache_atlas_entity_type_table_1",
		"apache_atlas_column_ref",
	}, ids)
	assert.NotContains(t, ids, "apache_atlas_entity_type_referenceable_1")
	assert.NotContains(t, ids, "apache_atlas_classification_pii_1")
}

func templateIDs(tpls []models.Template) []string {
	ids := make([]string, 0, len(tpls))
	for _, tpl := range tpls {
		ids = append(ids, tpl.ID)
	}
	return ids
}

func TestSynthesize_OnlyAllowedTypes(t *testing.T) {
	s := NewSynthesizer(testDictionary(), models.DefaultRoles(), quietLogger())
	g := models.NewGraph()
	g.Put(&models.Entity{GUID: "t1", TypeName: "Table", Attributes: map[string]models.Value{
		"db":             models.RefTo("DB", "d1"),
		ColumnsAttribute: models.List(models.RefTo("Column", "c1")),
	}})
	g.Put(&models.Entity{GUID: "d1", TypeName: "DB", Classifications: []models.Classification{{TypeName: "Fact"}}})
	g.Put(&models.Entity{GUID: "c1", TypeName: "Column", Classifications: []models.Classification{{TypeName: "PII"}}})

	tpls, err := s.Synthesize(g, models.NewTypeSet("Table"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"apache_atlas_classification_pii_1",
		"apache_atlas_entity_type_table_1",
		"apache_atlas_column_ref",
	}, templateIDs(tpls), "column classifications count, referenced types do not")
}

func TestSynthesize_FallbackForUndefinedClassification(t *testing.T) {
	s := NewSynthesizer(testDictionary(), models.DefaultRoles(), quietLogger())
	g := models.NewGraph()
	g.Put(&models.Entity{GUID: "t1", TypeName: "Table", Classifications: []models.Classification{
		{TypeName: "Secret Stuff", Attributes: map[string]models.Value{"Owner Team": models.String("risk")}},
		{TypeName: "Secret Stuff", Attributes: map[string]models.Value{"expires": models.Number(3)}},
	}})

	tpls, err := s.Synthesize(g, nil)
	require.NoError(t, err)
	require.Equal(t, "apache_atlas_classification_secret_stuff", tpls[0].ID)
	assert.Equal(t, []string{"owner_team", "expires", "secret_stuff"}, fieldIDs(tpls[0]))
	for _, f := range tpls[0].Fields[:2] {
		assert.Equal(t, models.FieldString, f.Kind, f.ID)
	}
	assert.Equal(t, models.FieldBool, tpls[0].Fields[2].Kind)
}

func TestColumnRefTemplate(t *testing.T) {
	tpl := ColumnRefTemplate()
	assert.Equal(t, "apache_atlas_column_ref", tpl.ID)
	assert.Equal(t, "Column", tpl.DisplayName)
	assert.Equal(t, []string{FieldColumnGUID, FieldColumnEntry}, fieldIDs(tpl))
}
