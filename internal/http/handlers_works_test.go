package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ourresearch/openalex-formatter/internal/service"
	"github.com/ourresearch/openalex-formatter/internal/upstream"
)

func newWorksRouter(t *testing.T) http.Handler {
	t.Helper()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/works/W42" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Not Found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"https://openalex.org/W42","display_name":"Answers","type":"book","publication_year":1979}`))
	}))
	t.Cleanup(api.Close)

	works, err := service.NewWorkService(service.WorkServiceOptions{
		Fetcher: upstream.NewClient(upstream.ClientOptions{}),
		BaseURL: api.URL,
	})
	require.NoError(t, err)
	return NewRouter(RouterServices{Exports: &fakeExportService{}, Works: works})
}

func TestWorkFormat_BibTeX(t *testing.T) {
	router := newWorksRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/works/W42.bib", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-bibtex; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "@book{W42,\n  title = {Answers},\n  year = {1979},\n  url = {https://openalex.org/W42},\n}\n", rec.Body.String())
}

func TestWorkFormat_Errors(t *testing.T) {
	router := newWorksRouter(t)

	tests := []struct {
		name   string
		path   string
		status int
		body   string
	}{
		{name: "unsupported format", path: "/works/W42.ris", status: http.StatusUnprocessableEntity},
		{name: "missing format", path: "/works/W42", status: http.StatusBadRequest},
		{name: "upstream 404 is relayed", path: "/works/W1.bib", status: http.StatusNotFound, body: `{"error":"Not Found"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestWorkFormat_NotMountedWithoutService(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeExportService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/works/W42.bib", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSplitWorkFile(t *testing.T) {
	id, format := splitWorkFile("W42.bib")
	assert.Equal(t, "W42", id)
	assert.Equal(t, "bib", format)

	id, format = splitWorkFile("W42")
	assert.Equal(t, "W42", id)
	assert.Empty(t, format)
}
