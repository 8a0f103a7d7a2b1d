package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ourresearch/openalex-formatter/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{RoutingKey: "  "})
	require.Error(t, err)
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	require.NoError(t, err)

	ev := client.buildEvent(notify.ExportFailurePayload{
		ExportID:   "works-csv-abc",
		Format:     "csv",
		QueryURL:   "https://api.openalex.org/works?filter=publication_year:2020",
		IsAsync:    true,
		Error:      "upload works-csv-abc.csv: timeout",
		ErrorClass: "timeout",
		OccurredAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, "trigger", ev.EventAction)
	assert.Equal(t, "export:works-csv-abc", ev.DedupKey)
	assert.Equal(t, notify.SeverityCritical, ev.Payload.Severity)
	assert.Equal(t, "formatter", ev.Payload.Source)
	assert.Equal(t, "export-worker", ev.Payload.Component)
	assert.Equal(t, "Export works-csv-abc (csv) failed", ev.Payload.Summary)
	assert.Equal(t, "2024-03-01T12:00:00Z", ev.Payload.Timestamp)
	for _, key := range []string{"export_id", "format", "query_url", "is_async", "error", "error_class"} {
		assert.Contains(t, ev.Payload.CustomDetails, key)
	}
}

func TestBuildEventMetadataDoesNotOverrideCoreFields(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	require.NoError(t, err)

	ev := client.buildEvent(notify.ExportFailurePayload{
		ExportID: "works-ris-1",
		Metadata: map[string]string{"export_id": "spoofed", "worker": "w-2"},
	})

	assert.Equal(t, "works-ris-1", ev.Payload.CustomDetails["export_id"])
	assert.Equal(t, "w-2", ev.Payload.CustomDetails["worker"])
	assert.Equal(t, "Export works-ris-1 (unknown) failed", ev.Payload.Summary)
}

func TestSendExportFailurePostsEvent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "routing", Endpoint: srv.URL, Client: srv.Client()})
	require.NoError(t, err)

	require.NoError(t, client.SendExportFailure(context.Background(), notify.ExportFailurePayload{
		ExportID: "works-wos-plaintext-9",
		Format:   "wos-plaintext",
		Severity: "ERROR",
	}))

	assert.Equal(t, "routing", got["routing_key"])
	payload, ok := got["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "error", payload["severity"])
}
