package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ourresearch/openalex-formatter/internal/errors"
	"github.com/ourresearch/openalex-formatter/internal/export/encode"
	"github.com/ourresearch/openalex-formatter/internal/upstream"
)

func newWorksUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/works/W1":
			_, _ = w.Write([]byte(`{
				"id": "https://openalex.org/W1",
				"title": "On foxes",
				"type": "article",
				"publication_year": 2020,
				"authorships": [{"author": {"display_name": "Ann Lee"}}]
			}`))
		case "/works/W-empty":
			_, _ = w.Write([]byte(`{}`))
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Not Found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestWorkService(t *testing.T, baseURL string) *WorkService {
	t.Helper()
	svc, err := NewWorkService(WorkServiceOptions{
		Fetcher: upstream.NewClient(upstream.ClientOptions{}),
		BaseURL: baseURL + "/",
	})
	require.NoError(t, err)
	return svc
}

func TestNewWorkService_RequiresFetcher(t *testing.T) {
	_, err := NewWorkService(WorkServiceOptions{})
	require.Error(t, err)
}

func TestWorkService_FormatBibTeX(t *testing.T) {
	srv := newWorksUpstream(t)
	svc := newTestWorkService(t, srv.URL)

	got, err := svc.Format(context.Background(), "W1", " BIB ")
	require.NoError(t, err)
	assert.Equal(t, encode.ContentTypeBibTeX, got.ContentType)
	assert.Equal(t, "@article{W1,\n"+
		"  title = {On foxes},\n"+
		"  author = {Ann Lee},\n"+
		"  year = {2020},\n"+
		"  url = {https://openalex.org/W1},\n"+
		"}\n", string(got.Body))
}

func TestWorkService_FormatErrors(t *testing.T) {
	srv := newWorksUpstream(t)
	svc := newTestWorkService(t, srv.URL)

	tests := []struct {
		name    string
		id      string
		format  string
		status  int
		message string
	}{
		{name: "missing format", id: "W1", format: "", status: http.StatusBadRequest, message: `"format" argument is required`},
		{name: "unsupported format", id: "W1", format: "ris", status: http.StatusUnprocessableEntity, message: `supported formats are: "bib"`},
		{name: "upstream status is relayed", id: "W404", format: "bib", status: http.StatusNotFound},
		{
			name:    "empty document is a 500",
			id:      "W-empty",
			format:  "bib",
			status:  http.StatusInternalServerError,
			message: "There was an error submitting your request to " + srv.URL + "/works/W-empty.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Format(context.Background(), tt.id, tt.format)
			appErr, ok := apperrors.As(err)
			require.True(t, ok, "expected *AppError, got %T: %v", err, err)
			assert.Equal(t, tt.status, appErr.HTTPStatus())
			if tt.message != "" {
				assert.Equal(t, tt.message, appErr.Message)
			}
		})
	}
}
