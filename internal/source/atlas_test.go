package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *AtlasClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAtlasClient(AtlasConfig{
		BaseURL:  srv.URL,
		Username: "admin",
		Password: "secret",
		PageSize: 2,
	}, slog.Default())
}

func TestListTypeDefs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/api/atlas/v2/types/typedefs", r.URL.Path)
		_, _ = fmt.Fprint(w, `{
			"enumDefs": [{"name": "tier", "elementDefs": [{"value": "GOLD", "ordinal": 1}, {"value": "SILVER", "ordinal": 2}]}],
			"classificationDefs": [{"name": "PII", "version": 1, "attributeDefs": [{"name": "level", "typeName": "int"}]}],
			"entityDefs": [{"name": "Table", "superTypes": ["DataSet"], "attributeDefs": [{"name": "owner", "typeName": "string"}]}]
		}`)
	})

	dict, err := c.ListTypeDefs(context.Background())
	require.NoError(t, err)

	table, ok := dict.EntityTypes["Table"]
	require.True(t, ok)
	assert.Equal(t, models.CategoryEntity, table.Category)
	assert.Equal(t, []string{"DataSet"}, table.SuperTypes)
	assert.Equal(t, "owner", table.Attributes[0].Name)

	pii, ok := dict.Classifications["PII"]
	require.True(t, ok)
	assert.Equal(t, "1", pii.Version)

	assert.Equal(t, []string{"GOLD", "SILVER"}, dict.Enums["tier"].Values)
}

func TestSearchEntitiesByType_PaginatesAndFilters(t *testing.T) {
	pages := map[string]string{
		"0": `{"entities": [
			{"guid": "t1", "typeName": "Table", "status": "ACTIVE", "classificationNames": ["PII"]},
			{"guid": "t2", "typeName": "Table", "status": "DELETED"}
		]}`,
		"2": `{"entities": [
			{"guid": "t3", "typeName": "HiveTable", "status": "ACTIVE"},
			{"guid": "t4", "typeName": "Table", "status": "ACTIVE"}
		]}`,
		"4": `{"entities": []}`,
	}
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "Table", r.URL.Query().Get("typeName"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_, _ = fmt.Fprint(w, pages[r.URL.Query().Get("offset")])
	})

	headers, err := c.SearchEntitiesByType(context.Background(), "Table")
	require.NoError(t, err)
	require.Len(t, headers, 2)
	assert.Equal(t, "t1", headers[0].GUID)
	assert.Equal(t, []string{"PII"}, headers[0].ClassificationNames)
	assert.Equal(t, "t4", headers[1].GUID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchEntities_ChunksAndDecodes(t *testing.T) {
	var (
		mu       sync.Mutex
		requests [][]string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		guids := r.URL.Query()["guid"]
		mu.Lock()
		requests = append(requests, guids)
		mu.Unlock()
		var parts []string
		for _, g := range guids {
			parts = append(parts, `{
				"guid": "`+g+`", "typeName": "Table", "createTime": 1000, "updateTime": 2000,
				"attributes": {"name": "n-`+g+`", "db": null, "rows": 12},
				"relationshipAttributes": {"db": {"guid": "d1", "typeName": "DB"}, "name": "ignored"},
				"classifications": [{"typeName": "PII", "entityGuid": "`+g+`", "attributes": {"level": 3}}]
			}`)
		}
		_, _ = fmt.Fprint(w, `{"entities": [`+strings.Join(parts, ",")+`]}`)
	})
	c.cfg.FetchChunkSize = 2

	out, err := c.FetchEntities(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	mu.Lock()
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, requests)
	mu.Unlock()

	a := out["a"]
	assert.Equal(t, "n-a", a.Name())
	assert.Equal(t, int64(1000), a.CreateTime)
	db, ok := a.Attr("db")
	require.True(t, ok)
	require.Equal(t, models.KindRef, db.Kind)
	assert.Equal(t, "d1", db.Ref.GUID)
	assert.True(t, db.Ref.IsStub())
	rows, _ := a.Attr("rows")
	assert.Equal(t, float64(12), rows.Num)
	require.Len(t, a.Classifications, 1)
	assert.Equal(t, "3", a.Classifications[0].Attributes["level"].Text())
}

func TestFetchClassifications_DedupPrefersOwnInstance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/atlas/v2/entity/guid/col-1/classifications", r.URL.Path)
		_, _ = fmt.Fprint(w, `{"list": [
			{"typeName": "PII", "entityGuid": "table-1", "attributes": {"source": "inherited"}},
			{"typeName": "PII", "entityGuid": "col-1", "attributes": {"source": "own"}},
			{"typeName": "Fact", "entityGuid": "table-1"}
		]}`)
	})

	list, err := c.FetchClassifications(context.Background(), "col-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "PII", list[0].TypeName)
	assert.Equal(t, "own", list[0].Attributes["source"].Str)
	assert.Equal(t, "Fact", list[1].TypeName)
}

func TestFetchClassifications_NotFoundIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such entity", http.StatusNotFound)
	})

	list, err := c.FetchClassifications(context.Background(), "gone")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAtlasClient_ErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.AdminMetrics(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	assert.Contains(t, err.Error(), strconv.Itoa(http.StatusInternalServerError))
}

func TestAtlasClient_RateLimitHonorsContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.AdminMetrics(ctx)
	require.Error(t, err)
}
