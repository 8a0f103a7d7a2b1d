// Package pagerduty raises export failure incidents through the Events API v2.
package pagerduty

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/ourresearch/openalex-formatter/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint, for tests.
	Endpoint string
}

// Client publishes trigger events for failed exports.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	poster     *notify.Poster
}

var _ notify.Sink = (*Client)(nil)

// NewClient requires a routing key; everything else has defaults.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	return &Client{
		routingKey: key,
		source:     notify.Fallback(strings.TrimSpace(cfg.Source), "formatter"),
		component:  notify.Fallback(strings.TrimSpace(cfg.Component), "export-worker"),
		endpoint:   notify.Fallback(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		poster:     notify.NewPoster("pagerduty", cfg.Client, cfg.Timeout, cfg.RetryLimit),
	}, nil
}

type event struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary       string         `json:"summary"`
	Severity      string         `json:"severity"`
	Source        string         `json:"source"`
	Component     string         `json:"component"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details"`
}

// SendExportFailure triggers (or re-triggers) the incident for the export.
func (c *Client) SendExportFailure(ctx context.Context, payload notify.ExportFailurePayload) error {
	return c.poster.PostJSON(ctx, c.endpoint, c.buildEvent(payload))
}

func (c *Client) buildEvent(p notify.ExportFailurePayload) event {
	occurred := p.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	id := notify.Fallback(p.ExportID, "unknown")

	// Metadata never shadows the export's own fields.
	details := make(map[string]any, len(p.Metadata)+6)
	for k, v := range p.Metadata {
		details[k] = v
	}
	maps.Copy(details, map[string]any{
		"export_id":   p.ExportID,
		"format":      p.Format,
		"query_url":   p.QueryURL,
		"is_async":    p.IsAsync,
		"error":       p.Error,
		"error_class": p.ErrorClass,
	})

	return event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		// One incident per export.
		DedupKey: "export:" + id,
		Payload: eventPayload{
			Summary:       fmt.Sprintf("Export %s (%s) failed", id, notify.Fallback(p.Format, "unknown")),
			Severity:      notify.Fallback(strings.ToLower(p.Severity), notify.SeverityCritical),
			Source:        c.source,
			Component:     c.component,
			Timestamp:     occurred.UTC().Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}
