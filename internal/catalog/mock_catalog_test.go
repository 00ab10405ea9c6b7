package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

func mockRecord(id, guid, typ string, columnGUIDs ...string) models.Record {
	base := models.NewTag("apache_atlas_entity_type_" + typ)
	base.Fields["guid"] = models.StringField(guid)
	base.Fields["instance_url"] = models.StringField("http://atlas:21000")
	tags := []models.Tag{base}
	for _, c := range columnGUIDs {
		ref := models.NewTag("apache_atlas_column_ref")
		ref.Fields["column_guid"] = models.StringField(c)
		tags = append(tags, ref)
	}
	return models.Record{
		ID:         id,
		SourceGUID: guid,
		SourceType: typ,
		Entry: models.Entry{
			Locator: "projects/p/locations/l/entryGroups/g/entries/" + id,
			System:  "apache_atlas",
			Type:    typ,
		},
		Tags: tags,
	}
}

func TestMockCatalog_EntryLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMockCatalog()

	rec := mockRecord("table_t1", "t1", "table", "c1")
	require.NoError(t, m.CreateOrUpdateEntry(ctx, rec))

	// Mutating the caller's record must not reach the stored copy.
	rec.Tags[0].Fields["guid"] = models.StringField("changed")
	stored, ok := m.Entry(rec.Entry.Locator)
	require.True(t, ok)
	v, _ := stored.Tags[0].StringValue("guid")
	assert.Equal(t, "t1", v)

	locators, err := m.SearchByQuery(ctx, Query{System: "apache_atlas"}.WithTag("guid", "t1"))
	require.NoError(t, err)
	assert.Equal(t, []string{rec.Entry.Locator}, locators)

	require.NoError(t, m.DeleteEntry(ctx, rec.Entry.Locator))
	assert.Equal(t, 0, m.EntryCount())
	assert.Equal(t, []string{rec.Entry.Locator}, m.Deleted())

	err = m.DeleteEntry(ctx, rec.Entry.Locator)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMockCatalog_ReplacesTags(t *testing.T) {
	ctx := context.Background()
	m := NewMockCatalog()
	require.NoError(t, m.CreateOrUpdateEntry(ctx, mockRecord("table_t1", "t1", "table", "c1", "c2")))
	require.NoError(t, m.CreateOrUpdateEntry(ctx, mockRecord("table_t1", "t1", "table", "c1")))

	stored, _ := m.Entry("projects/p/locations/l/entryGroups/g/entries/table_t1")
	assert.Len(t, stored.Tags, 2)
	assert.Equal(t, 2, m.EntryWrites())
}

func TestMockCatalog_SearchTagValues(t *testing.T) {
	ctx := context.Background()
	m := NewMockCatalog()
	require.NoError(t, m.CreateOrUpdateEntry(ctx, mockRecord("table_t1", "t1", "table", "c1", "c2")))
	require.NoError(t, m.CreateOrUpdateEntry(ctx, mockRecord("table_t2", "t2", "table", "c2")))
	require.NoError(t, m.CreateOrUpdateEntry(ctx, mockRecord("table_t3", "t3", "table", "c3")))

	owners, err := m.SearchTagValues(ctx,
		Query{System: "apache_atlas", Type: "table"}.WithTag("column_guid", "c2"),
		"apache_atlas_entity_type_table", "guid")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, owners)
}

func TestMockCatalog_Templates(t *testing.T) {
	ctx := context.Background()
	m := NewMockCatalog()
	require.NoError(t, m.CreateOrUpdateTemplate(ctx, models.Template{ID: "apache_atlas_entity_type_table"}))
	require.NoError(t, m.CreateOrUpdateTemplate(ctx, models.Template{ID: "apache_atlas_column_ref"}))
	require.NoError(t, m.CreateOrUpdateTemplate(ctx, models.Template{ID: "other_template"}))

	ids, err := m.ListTemplates(ctx, "apache_atlas")
	require.NoError(t, err)
	assert.Equal(t, []string{"apache_atlas_column_ref", "apache_atlas_entity_type_table"}, ids)

	require.NoError(t, m.DeleteTemplate(ctx, "other_template"))
	assert.ErrorIs(t, m.DeleteTemplate(ctx, "other_template"), ErrNotFound)
}

func TestMockCatalog_EntryErr(t *testing.T) {
	m := NewMockCatalog()
	m.EntryErr = errors.New("quota exceeded")
	err := m.CreateOrUpdateEntry(context.Background(), mockRecord("table_t1", "t1", "table"))
	require.Error(t, err)
	assert.Equal(t, 0, m.EntryCount())
}
