package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/errs"
	"github.com/koustreak/datastore/internal/schema"
)

type widget struct {
	Id    int `db:",pk,identity"`
	Label string
	Price float64 `db:"UnitPrice"`
}

func (widget) TableName() string { return "Widget" }

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var healthy = pingFunc(func(context.Context) error { return nil })

type fakeIntrospector struct {
	tables map[string]*database.TableInfo
}

func (f fakeIntrospector) ListTables(context.Context, string) ([]string, error) {
	var names []string
	for name := range f.tables {
		names = append(names, name)
	}
	return names, nil
}

func (f fakeIntrospector) TableExists(_ context.Context, _, table string) (bool, error) {
	_, ok := f.tables[table]
	return ok, nil
}

func (f fakeIntrospector) InspectTable(_ context.Context, _, table string) (*database.TableInfo, error) {
	t, ok := f.tables[table]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %q not found", table)
	}
	return t, nil
}

func (f fakeIntrospector) ListForeignKeys(context.Context, string) ([]database.ForeignKey, error) {
	return nil, nil
}

func newCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	c := schema.NewCatalog()
	_, err := c.Get(reflect.TypeFor[widget]())
	require.NoError(t, err)
	return c
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestHealthz(t *testing.T) {
	rec, body := get(t, New(healthy, newCatalog(t)).Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	down := pingFunc(func(context.Context) error {
		return errs.Wrap(errs.ErrKindConnectionFailed, "ping failed", errors.New("refused"))
	})
	rec, body = get(t, New(down, newCatalog(t)).Handler(), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, body["error"], "ping failed")
}

func TestSchemas(t *testing.T) {
	h := New(healthy, newCatalog(t)).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schemas", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Widget", list[0]["table"])

	rec, body := get(t, h, "/schemas/Widget")
	require.Equal(t, http.StatusOK, rec.Code)
	cols := body["columns"].([]any)
	require.Len(t, cols, 3)
	assert.Equal(t, "UnitPrice", cols[2].(map[string]any)["column"])
	assert.Equal(t, true, cols[0].(map[string]any)["identity"])

	rec, _ = get(t, h, "/schemas/Gadget")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDrift(t *testing.T) {
	live := fakeIntrospector{tables: map[string]*database.TableInfo{
		"Widget": {Name: "Widget", Columns: []database.ColumnInfo{{Name: "id"}, {Name: "label"}, {Name: "stock"}}},
	}}

	rec, _ := get(t, New(healthy, newCatalog(t)).Handler(), "/schemas/Widget/drift")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	h := New(healthy, newCatalog(t), WithIntrospector(live, "")).Handler()
	rec, body := get(t, h, "/schemas/Widget/drift")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"UnitPrice"}, body["missing"])
	assert.Equal(t, []any{"stock"}, body["extra"])

	rec, body = get(t, h, "/database")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["tables"], 1)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.New(errs.ErrKindNotFound, "x"), http.StatusNotFound},
		{errs.New(errs.ErrKindInvalidInput, "x"), http.StatusBadRequest},
		{errs.New(errs.ErrKindTranslation, "x"), http.StatusBadRequest},
		{errs.New(errs.ErrKindPermissionDenied, "x"), http.StatusForbidden},
		{errs.New(errs.ErrKindTimeout, "x"), http.StatusGatewayTimeout},
		{errs.New(errs.ErrKindQueryFailed, "x"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}
