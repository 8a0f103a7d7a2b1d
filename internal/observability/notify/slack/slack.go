// Package slack posts export failure alerts to an incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/ourresearch/openalex-formatter/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// ExportURLPrefix turns export ids into links when set.
	ExportURLPrefix string
}

// Client delivers export failure notifications to a Slack webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	exportLink *url.URL
	poster     *notify.Poster
}

var _ notify.Sink = (*Client)(nil)

// NewClient requires a webhook URL. An unusable ExportURLPrefix is ignored.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	c := &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   notify.Fallback(strings.TrimSpace(cfg.Username), "formatter"),
		poster:     notify.NewPoster("slack webhook", cfg.Client, cfg.Timeout, cfg.RetryLimit),
	}
	if u, err := url.Parse(strings.TrimSpace(cfg.ExportURLPrefix)); err == nil && u.Scheme != "" && u.Host != "" {
		c.exportLink = u
	}
	return c, nil
}

type message struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	Channel  string `json:"channel,omitempty"`
}

// SendExportFailure posts a formatted message to Slack.
func (c *Client) SendExportFailure(ctx context.Context, payload notify.ExportFailurePayload) error {
	return c.poster.PostJSON(ctx, c.webhookURL, c.formatMessage(payload))
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func (c *Client) formatMessage(p notify.ExportFailurePayload) message {
	var b strings.Builder

	b.WriteString("*Export failure alert*")
	if id := c.formatExportValue(p.ExportID); id != "" {
		b.WriteString(" " + id)
	}
	if p.Format != "" {
		b.WriteString(" (" + p.Format + ")")
	}
	b.WriteByte('\n')

	mode := "sync"
	if p.IsAsync {
		mode = "async"
	}
	bullet(&b, "", "Severity", notify.Fallback(p.Severity, notify.SeverityCritical))
	bullet(&b, "", "Mode", mode)
	bullet(&b, "", "Query", escaper.Replace(p.QueryURL))
	bullet(&b, "", "Error class", p.ErrorClass)
	bullet(&b, "", "Error", escaper.Replace(p.Error))

	if len(p.Metadata) > 0 {
		b.WriteString("• Metadata:\n")
		for _, k := range slices.Sorted(maps.Keys(p.Metadata)) {
			bullet(&b, "    ", k, p.Metadata[k])
		}
	}

	occurred := p.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	b.WriteString("• Timestamp: " + occurred.UTC().Format(time.RFC3339))

	return message{Text: b.String(), Username: c.username, Channel: c.channel}
}

func bullet(b *strings.Builder, indent, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "%s• %s: %s\n", indent, label, value)
}

// formatExportValue renders the export id, linked when a prefix is configured.
func (c *Client) formatExportValue(exportID string) string {
	raw := strings.TrimSpace(exportID)
	if raw == "" {
		return ""
	}
	id := escaper.Replace(raw)
	if c.exportLink != nil {
		return "<" + c.exportLink.JoinPath(raw).String() + "|" + id + ">"
	}
	return "`" + id + "`"
}
