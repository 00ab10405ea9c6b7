package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

func TestFormatName(t *testing.T) {
	assert.Equal(t, "my_template_name___test", FormatName("My Template Name - Test"))
	assert.Equal(t, "storagedesc", FormatName("StorageDesc"))
	assert.Equal(t, "", FormatName(""))
}

func TestFormatIdentifier(t *testing.T) {
	got, err := FormatIdentifier("hive-table")
	require.NoError(t, err)
	assert.Equal(t, "hive_table", got)

	for _, name := range []string{"", "   "} {
		_, err := FormatIdentifier(name)
		assert.ErrorIs(t, err, ErrEmptyName, "name %q", name)
	}
}

func TestClassifyPrimitive(t *testing.T) {
	cases := map[string]models.FieldKind{
		"short":           models.FieldDouble,
		"int":             models.FieldDouble,
		"float":           models.FieldDouble,
		"double":          models.FieldDouble,
		"boolean":         models.FieldBool,
		"string":          models.FieldString,
		"date":            models.FieldString,
		"array<Column>":   models.FieldString,
		"totally-made-up": models.FieldString,
	}
	for typeName, want := range cases {
		assert.Equal(t, want, ClassifyPrimitive(typeName), typeName)
	}
	assert.True(t, IsPrimitive("boolean"))
	assert.False(t, IsPrimitive("date"))
}

func TestTemplateID(t *testing.T) {
	id, err := TemplateID("Fact", string(models.CategoryClassification), "1")
	require.NoError(t, err)
	assert.Equal(t, "apache_atlas_classification_fact_1", id)

	id, err = TemplateID("load_process", string(models.CategoryEntity), "")
	require.NoError(t, err)
	assert.Equal(t, "apache_atlas_entity_type_load_process", id)

	_, err = TemplateID("  ", string(models.CategoryEntity), "1")
	assert.ErrorIs(t, err, ErrEmptyName)

	assert.Equal(t, "apache_atlas_column_ref", ColumnRefTemplateID())
}

func TestFormatID(t *testing.T) {
	assert.Equal(t, "id_3fa8_5717", FormatID("3fa8-5717"))
	assert.Equal(t, "sales_db_orders", FormatID("sales.db@orders"))
}

func TestRecordID(t *testing.T) {
	id, err := RecordID("Table", "3FA85F64-5717-4562-B3FC-2C963F66AFA6")
	require.NoError(t, err)
	assert.Equal(t, "table_3fa85f64_5717_4562_b3fc_2c963f66afa6", id)

	again, err := RecordID("Table", "3FA85F64-5717-4562-B3FC-2C963F66AFA6")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other, err := RecordID("DB", "3FA85F64-5717-4562-B3FC-2C963F66AFA6")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	_, err = RecordID("", "x")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestRecordID_LongIDsStayUniqueWithinLimit(t *testing.T) {
	a, err := RecordID("hive_storagedesc_extended", strings.Repeat("a", 60)+"1")
	require.NoError(t, err)
	b, err := RecordID("hive_storagedesc_extended", strings.Repeat("a", 60)+"2")
	require.NoError(t, err)

	assert.Len(t, a, MaxIDLength)
	assert.Len(t, b, MaxIDLength)
	assert.NotEqual(t, a, b)
}

func TestFormatDisplayName(t *testing.T) {
	assert.Equal(t, "Cafe sales_2020", FormatDisplayName("Café sales/2020"))
	assert.Len(t, FormatDisplayName(strings.Repeat("x", 300)), MaxDisplayNameLength)
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", TruncateUTF8("abc", 10))
	assert.Equal(t, "a", TruncateUTF8("aé", 2))
	assert.Equal(t, "aé", TruncateUTF8("aé", 3))
}

func TestColumnDataType(t *testing.T) {
	col := &models.Entity{Attributes: map[string]models.Value{"type": models.String("int")}}
	assert.Equal(t, "int", ColumnDataType(col))

	col.Attributes["data_type"] = models.String("varchar")
	assert.Equal(t, "varchar", ColumnDataType(col))

	col.Attributes["dataType"] = models.String("string")
	assert.Equal(t, "string", ColumnDataType(col))

	assert.Equal(t, "", ColumnDataType(&models.Entity{}))
}
