package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/arkdb/pkg/arkdb"
	"github.com/arkilian/arkdb/pkg/hostdb/memdb"
	"github.com/arkilian/arkdb/pkg/schema"
)

func newTestServer(t *testing.T) (*httptest.Server, *arkdb.DB) {
	t.Helper()
	s := schema.MustNew(schema.NewTable("users",
		schema.Col("id", schema.Integer().PrimaryKey().AutoIncrement()),
		schema.Col("email", schema.Email().Unique()),
		schema.Col("age", schema.Integer().Index().Optional()),
	))
	db, err := arkdb.Open(context.Background(), memdb.New(), s, arkdb.Options{Name: "api"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := httptest.NewServer(DefaultMiddleware()(NewHandler(db)))
	t.Cleanup(srv.Close)
	return srv, db
}

func post(t *testing.T, srv *httptest.Server, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func seedUsers(t *testing.T, srv *httptest.Server) {
	t.Helper()
	resp, out := post(t, srv, "/v1/tables/users/insert", map[string]interface{}{
		"records": []map[string]interface{}{
			{"email": "a@x.io", "age": 10},
			{"email": "b@x.io", "age": 40},
			{"email": "c@x.io", "age": 25},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, out)
	require.Len(t, out["items"], 3)
}

func TestFindWithIndexSortAndLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	seedUsers(t, srv)

	resp, out := post(t, srv, "/v1/tables/users/find", map[string]interface{}{
		"sort_by_index": map[string]string{"key": "age", "direction": "desc"},
		"fields":        map[string]bool{"email": true},
		"limit":         2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	items := out["items"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, map[string]interface{}{"email": "b@x.io"}, items[0])
	assert.Equal(t, map[string]interface{}{"email": "c@x.io"}, items[1])
}

func TestWhereCountUpdateDelete(t *testing.T) {
	srv, _ := newTestServer(t)
	seedUsers(t, srv)

	_, out := post(t, srv, "/v1/tables/users/count", map[string]interface{}{
		"index": map[string]interface{}{"name": "age", "range": map[string]interface{}{"lower": 20}},
	})
	assert.Equal(t, 2.0, out["count"])

	_, out = post(t, srv, "/v1/tables/users/update", map[string]interface{}{
		"set":   map[string]interface{}{"age": 11},
		"where": map[string]interface{}{"email": "a@x.io"},
	})
	assert.Equal(t, 1.0, out["updated"])

	_, out = post(t, srv, "/v1/tables/users/find", map[string]interface{}{"where": map[string]interface{}{"age": 11}})
	assert.Equal(t, 1.0, out["count"])

	_, out = post(t, srv, "/v1/tables/users/delete", map[string]interface{}{"where": map[string]interface{}{"age": 99}})
	assert.Equal(t, 0.0, out["deleted"])
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)
	seedUsers(t, srv)

	resp, out := post(t, srv, "/v1/tables/users/insert", map[string]interface{}{
		"records": []map[string]interface{}{{"email": "a@x.io"}},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "TRANSACTION", out["category"])

	resp, out = post(t, srv, "/v1/tables/ghosts/find", map[string]interface{}{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, out["request_id"])

	resp, _ = post(t, srv, "/v1/tables/users/insert", map[string]interface{}{
		"records": []map[string]interface{}{{"email": "z@x.io", "nickname": "z"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = post(t, srv, "/v1/tables/users/find", map[string]interface{}{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = post(t, srv, "/v1/tables/users/find", map[string]interface{}{"index": map[string]interface{}{"name": "email2", "value": 1}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = post(t, srv, "/v1/tables/users/find", map[string]interface{}{"index": map[string]interface{}{"name": "email"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = post(t, srv, "/v1/tables/users/count", map[string]interface{}{"index": map[string]interface{}{"name": "email"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPageThroughAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	seedUsers(t, srv)

	var emails []interface{}
	var cursor interface{}
	for i := 0; i < 5; i++ {
		body := map[string]interface{}{"limit": 2, "sort_by_index": map[string]string{"key": "age"}}
		if cursor != nil {
			body["cursor"] = cursor
		}
		resp, out := post(t, srv, "/v1/tables/users/page", body)
		require.Equal(t, http.StatusOK, resp.StatusCode, out)
		for _, it := range out["items"].([]interface{}) {
			emails = append(emails, it.(map[string]interface{})["email"])
		}
		cursor = out["next_cursor"]
		if cursor == nil {
			break
		}
	}
	assert.Equal(t, []interface{}{"a@x.io", "c@x.io", "b@x.io"}, emails)
}

func TestExportImportRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	seedUsers(t, srv)

	for _, format := range []string{"json", "snappy"} {
		resp, err := http.Get(srv.URL + "/v1/export?format=" + format)
		require.NoError(t, err)
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		dst, _ := newTestServer(t)
		imp, err := http.Post(dst.URL+"/v1/import?mode=replace&format="+format, "application/octet-stream", &buf)
		require.NoError(t, err)
		var out map[string]interface{}
		json.NewDecoder(imp.Body).Decode(&out)
		imp.Body.Close()
		require.Equal(t, http.StatusOK, imp.StatusCode, out)
		assert.Equal(t, 3.0, out["rows"])
	}
}

func TestTopologyStatsHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	seedUsers(t, srv)
	post(t, srv, "/v1/tables/users/find", map[string]interface{}{})

	for _, path := range []string{"/v1/topology", "/v1/stats", "/health"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		var out map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		switch path {
		case "/v1/topology":
			assert.Equal(t, "api", out["name"])
			assert.Len(t, out["topology"], 1)
		case "/v1/stats":
			assert.Len(t, out["tables"], 1)
		case "/health":
			assert.Equal(t, "ok", out["status"])
		}
	}
}
