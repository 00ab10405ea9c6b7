package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/events"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/source"
)

func updateEvent(guid, typeName string) models.SyncEvent {
	return models.SyncEvent{ID: "ev-" + guid, Operation: models.OpUpdate, Scope: models.ScopeEntity, GUID: guid, TypeName: typeName}
}

func deleteEvent(guid, typeName string) models.SyncEvent {
	return models.SyncEvent{ID: "del-" + guid, Operation: models.OpDelete, Scope: models.ScopeEntity, GUID: guid, TypeName: typeName}
}

func TestPartitionEvents(t *testing.T) {
	upserts, deletes := partitionEvents([]models.SyncEvent{
		updateEvent("a", "Table"),
		updateEvent("b", "Table"),
		deleteEvent("a", "Table"),
		{Operation: models.OpCreate},
		deleteEvent("c", "View"),
		updateEvent("c", "View"),
	})

	require.Len(t, upserts, 2)
	assert.Equal(t, "b", upserts[0].GUID)
	assert.Equal(t, "c", upserts[1].GUID)
	assert.Equal(t, []string{"a"}, deletes)
}

func TestIterate_AcksOnlyAfterPublish(t *testing.T) {
	s, cat := newTestSync(t, seededSource(), testOptions())
	feed := events.NewMemoryFeed(10)
	feed.Push(updateEvent("v1", "View"))

	cat.EntryErr = errors.New("unavailable")
	require.NoError(t, s.iterate(context.Background(), feed))
	assert.Zero(t, feed.Acks())
	assert.Equal(t, 1, feed.Len(), "failed batch stays queued")

	cat.EntryErr = nil
	require.NoError(t, s.iterate(context.Background(), feed))
	assert.Equal(t, 1, feed.Acks())
	assert.Zero(t, feed.Len())

	_, ok := recordOf(t, cat, "v1")
	assert.True(t, ok)
}

func TestIterate_EmptyPollDoesNotAck(t *testing.T) {
	s, cat := newTestSync(t, seededSource(), testOptions())
	feed := events.NewMemoryFeed(10)

	require.NoError(t, s.iterate(context.Background(), feed))
	assert.Zero(t, feed.Acks())
	assert.Equal(t, 1, feed.Polls())
	assert.Zero(t, cat.EntryWrites())
}

func TestIterate_InvariantViolationIsFatal(t *testing.T) {
	dict := models.NewTypeDictionary([]models.TypeDef{{Name: "hive table"}, {Name: "hive-table"}}, nil, nil)
	src := source.NewMockClient(dict)
	src.AddEntity(&models.Entity{GUID: "a-1", TypeName: "hive table"})
	src.AddEntity(&models.Entity{GUID: "a_1", TypeName: "hive-table"})
	s, _ := newTestSync(t, src, testOptions())

	feed := events.NewMemoryFeed(10)
	feed.Push(updateEvent("a-1", "hive table"), updateEvent("a_1", "hive-table"))

	err := s.iterate(context.Background(), feed)
	require.ErrorIs(t, err, ErrInvariant)
	assert.Zero(t, feed.Acks())
}

func TestIterate_ClosedFeedStopsLoop(t *testing.T) {
	s, _ := newTestSync(t, seededSource(), testOptions())
	feed := events.NewMemoryFeed(10)
	require.NoError(t, feed.Close())

	assert.ErrorIs(t, s.iterate(context.Background(), feed), events.ErrFeedClosed)
}

func TestProcessEvents_DeleteRemovesPublishedEntry(t *testing.T) {
	src := seededSource()
	s, cat := newTestSync(t, src, testOptions())
	_, err := s.FullSync(context.Background())
	require.NoError(t, err)
	view, ok := recordOf(t, cat, "v1")
	require.True(t, ok)

	src.RemoveEntity("v1")
	report, err := s.ProcessEvents(context.Background(), []models.SyncEvent{deleteEvent("v1", "View")})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, []string{view.Entry.Locator}, cat.Deleted())
	_, ok = recordOf(t, cat, "v1")
	assert.False(t, ok)
}

func TestProcessEvents_DeleteOfUnpublishedEntityIsQuiet(t *testing.T) {
	s, cat := newTestSync(t, seededSource(), testOptions())

	report, err := s.ProcessEvents(context.Background(), []models.SyncEvent{deleteEvent("ghost", "View")})
	require.NoError(t, err)
	assert.Zero(t, report.Deleted)
	assert.Empty(t, cat.Deleted())
}

func TestProcessEvents_ColumnEventRepublishesOwningTable(t *testing.T) {
	src := seededSource()
	s, cat := newTestSync(t, src, testOptions())
	_, err := s.FullSync(context.Background())
	require.NoError(t, err)

	table, _ := recordOf(t, cat, "t1")
	require.Len(t, columnTags(table, "amount"), 1)

	src.AddEntity(column("c2", "amount", "PII"))
	_, err = s.ProcessEvents(context.Background(), []models.SyncEvent{updateEvent("c2", "Column")})
	require.NoError(t, err)

	table, _ = recordOf(t, cat, "t1")
	assert.Len(t, columnTags(table, "amount"), 2, "new column classification shows on the table")
}

func TestProcessEvents_ColumnOfUnpublishedTableFollowsTableRef(t *testing.T) {
	s, cat := newTestSync(t, seededSource(), testOptions())

	_, err := s.ProcessEvents(context.Background(), []models.SyncEvent{updateEvent("c1", "Column")})
	require.NoError(t, err)

	table, ok := recordOf(t, cat, "t1")
	require.True(t, ok)
	assert.Len(t, columnTags(table, "id"), 2)
}

func TestProcessEvents_TrustsInlinePayload(t *testing.T) {
	src := seededSource()
	opts := testOptions()
	opts.TrustInlinePayload = true
	s, cat := newTestSync(t, src, opts)

	inline := updateEvent("v2", "View")
	inline.Entity = &models.Entity{GUID: "v2", TypeName: "View", Attributes: map[string]models.Value{"name": models.String("weekly")}}

	_, err := s.ProcessEvents(context.Background(), []models.SyncEvent{inline})
	require.NoError(t, err)
	assert.Zero(t, src.FetchCalls())

	rec, ok := recordOf(t, cat, "v2")
	require.True(t, ok)
	assert.Equal(t, "weekly", rec.Entry.DisplayName)
}

func TestRun_StopsAtSleepOnCancel(t *testing.T) {
	s, cat := newTestSync(t, seededSource(), testOptions())
	feed := events.NewMemoryFeed(10)
	feed.Push(updateEvent("v1", "View"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, feed) }()

	require.Eventually(t, func() bool { return feed.Acks() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, 1, cat.EntryCount())
}
