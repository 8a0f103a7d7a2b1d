package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FetchDecodesPage(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"meta":{"count":3,"next_cursor":"abc"},"results":[{"id":"W1","cited_by_count":12}]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{APIKey: "k", Mailto: "ops@example.org"})
	resp, err := c.Fetch(context.Background(), srv.URL+"/works?filter=type:article", PageParams(FirstCursor, 200))
	require.NoError(t, err)

	assert.Equal(t, int64(3), resp.Meta.Count)
	assert.Equal(t, "abc", resp.Cursor())
	require.Len(t, resp.Results, 1)
	assert.Equal(t, json.Number("12"), resp.Results[0]["cited_by_count"])

	assert.Equal(t, []string{"type:article"}, gotQuery["filter"])
	assert.Equal(t, []string{"*"}, gotQuery["cursor"])
	assert.Equal(t, []string{"200"}, gotQuery["per_page"])
	assert.Equal(t, []string{"k"}, gotQuery["api_key"])
	assert.Equal(t, []string{"ops@example.org"}, gotQuery["mailto"])
}

func TestClient_FetchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "non 2xx",
			status: http.StatusServiceUnavailable,
			body:   "busy",
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
				assert.Equal(t, "busy", string(se.Body))
				assert.Equal(t, "upstream_5xx", se.ErrorClass())
			},
		},
		{
			name:   "html body",
			status: http.StatusOK,
			body:   "<html>oops</html>",
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrDecode))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(ClientOptions{}).Fetch(context.Background(), srv.URL, nil)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_Probe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("filter") {
		case "bad":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"Invalid query parameters error."}`))
			return
		case "nometa":
			_, _ = w.Write([]byte(`{"results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"meta":{"count":10,"page":1},"results":[]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{})
	require.NoError(t, c.Probe(context.Background(), srv.URL+"/works?filter=good"))

	err := c.Probe(context.Background(), srv.URL+"/works?filter=bad")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)

	err = c.Probe(context.Background(), srv.URL+"/works?filter=nometa")
	require.ErrorIs(t, err, ErrDecode)
}

func TestClient_FetchDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ops@example.org", r.URL.Query().Get("mailto"))
		if r.URL.Path == "/works/W404" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"https://openalex.org/W1"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{Mailto: "ops@example.org"})
	body, err := c.FetchDocument(context.Background(), srv.URL+"/works/W1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"https://openalex.org/W1"}`, string(body))

	_, err = c.FetchDocument(context.Background(), srv.URL+"/works/W404")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, `{"error":"not found"}`, string(se.Body))
}

func TestWithParams_ReplacesExisting(t *testing.T) {
	got, err := WithParams("https://api.example.org/works?per_page=5&filter=x", PageParams("c1", 50))
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.org/works?cursor=c1&filter=x&per_page=50", got)
}
