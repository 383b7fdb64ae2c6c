package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// recorded is a request seen by the stub engine
type recorded struct {
	method string
	path   string
	body   string
}

func stubEngine(t *testing.T, status int, response string) (*Client, *[]recorded) {
	t.Helper()
	var seen []recorded
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = append(seen, recorded{method: r.Method, path: r.URL.Path, body: string(body)})
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(ts.Close)

	c, err := NewClient(Config{URL: ts.URL + "/", Index: "test"})
	require.NoError(t, err)
	return c, &seen
}

func TestNewClient_Defaults(t *testing.T) {
	// no request is made while the client is built
	c, err := NewClient(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultIndex, c.index)
	assert.Equal(t, DefaultURL+"/"+DefaultIndex, c.IndexURL())
	assert.Equal(t, DefaultMappingRoute, c.mappingRoute)
	assert.Equal(t, DefaultTranslateRoute, c.translateRoute)
}

func TestClient_Requests(t *testing.T) {
	ctx := context.Background()

	t.Run("create index", func(t *testing.T) {
		c, seen := stubEngine(t, http.StatusOK, `{"acknowledged":true}`)
		require.NoError(t, c.CreateIndex(ctx))
		assert.Equal(t, recorded{method: "PUT", path: "/test"}, (*seen)[0])
	})

	t.Run("put mapping", func(t *testing.T) {
		c, seen := stubEngine(t, http.StatusOK, `{"acknowledged":true}`)
		require.NoError(t, c.PutMapping(ctx, Schema{"colD": "long"}))
		assert.Equal(t, "/test/_mapping/_doc", (*seen)[0].path)
		assert.Equal(t, "long", gjson.Get((*seen)[0].body, "properties.colD.type").String())
	})

	t.Run("insert", func(t *testing.T) {
		c, seen := stubEngine(t, http.StatusCreated, `{"_id":"doc-1","result":"created"}`)
		id, err := c.IndexDocument(ctx, map[string]interface{}{"colA": "abc"})
		require.NoError(t, err)
		assert.Equal(t, "doc-1", id)
		assert.Equal(t, "POST", (*seen)[0].method)
		assert.Equal(t, "/test/_doc", (*seen)[0].path)
		assert.JSONEq(t, `{"colA":"abc"}`, (*seen)[0].body)
	})

	t.Run("translate", func(t *testing.T) {
		c, seen := stubEngine(t, http.StatusOK, `{"size":1000,"query":{"match_all":{}}}`)
		dsl, err := c.Translate(ctx, "SELECT * FROM test")
		require.NoError(t, err)
		assert.JSONEq(t, `{"size":1000,"query":{"match_all":{}}}`, dsl)
		assert.Equal(t, "/_xpack/sql/translate", (*seen)[0].path)
		assert.JSONEq(t, `{"query":"SELECT * FROM test"}`, (*seen)[0].body)
	})

	t.Run("count", func(t *testing.T) {
		c, seen := stubEngine(t, http.StatusOK, `{"count":42}`)
		n, err := c.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(42), n)
		assert.Equal(t, "/test/_count", (*seen)[0].path)
	})

	t.Run("count missing index", func(t *testing.T) {
		c, _ := stubEngine(t, http.StatusNotFound, `{"error":{"type":"index_not_found_exception","reason":"no such index [test]"},"status":404}`)
		_, err := c.Count(ctx)
		require.Error(t, err)

		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusNotFound, se.Code)
		assert.Equal(t, "cannot count: 404: Not Found: no such index [test] [type=index_not_found_exception]", se.Error())
	})

	t.Run("search", func(t *testing.T) {
		c, seen := stubEngine(t, http.StatusOK, `{"hits":{"total":1,"hits":[{"_id":"x"}]}}`)
		res, err := c.Search(ctx, `{"query":{"match_all":{}}}`)
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.TotalHits())
		assert.Equal(t, []string{"x"}, res.IDs())
		assert.Equal(t, "/test/_search", (*seen)[0].path)
	})
}

func TestClient_StatusChecks(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		status  int
		call    func(c *Client) error
		wantErr bool
	}{
		{"create 200", 200, func(c *Client) error { return c.CreateIndex(ctx) }, false},
		{"create 400", 400, func(c *Client) error { return c.CreateIndex(ctx) }, true},
		{"delete 200", 200, func(c *Client) error { return c.DeleteIndex(ctx) }, false},
		{"delete 202", 202, func(c *Client) error { return c.DeleteIndex(ctx) }, false},
		{"delete 204", 204, func(c *Client) error { return c.DeleteIndex(ctx) }, false},
		{"delete 404", 404, func(c *Client) error { return c.DeleteIndex(ctx) }, true},
		{"mapping 201", 201, func(c *Client) error { return c.PutMapping(ctx, Schema{"a": "text"}) }, true},
		{"insert 200", 200, func(c *Client) error { _, err := c.IndexDocument(ctx, map[string]int{}); return err }, true},
		{"insert 201", 201, func(c *Client) error { _, err := c.IndexDocument(ctx, map[string]int{}); return err }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{}`
			if tt.status == http.StatusNoContent {
				body = ``
			}
			c, _ := stubEngine(t, tt.status, body)
			err := tt.call(c)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnexpectedStatus))

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.Code)
		})
	}
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{Op: "insert data", Code: 400, Body: `{"error":"bad"}`}
	assert.Equal(t, `cannot insert data: 400: Bad Request: {"error":"bad"}`, err.Error())

	err = &StatusError{Op: "delete index", Code: 404}
	assert.Equal(t, "cannot delete index: 404: Not Found", err.Error())
}

func TestClient_Unreachable(t *testing.T) {
	c, err := NewClient(Config{URL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	err = c.CreateIndex(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnexpectedStatus))
}

func TestSearch_InvalidJSON(t *testing.T) {
	c, _ := stubEngine(t, http.StatusOK, `not json`)
	_, err := c.Search(context.Background(), `{}`)
	assert.Error(t, err)
}
