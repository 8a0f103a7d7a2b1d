// Package upstream talks to the works search API: plain requests, cursor
// pagination with adaptive page size, and grouped counts.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// FirstCursor is the sentinel cursor requesting the first page.
const FirstCursor = "*"

const (
	maxErrorBodyBytes    = 4 * 1024
	maxDocumentBodyBytes = 8 << 20
)

// ErrDecode marks a response body that was not the expected JSON document.
var ErrDecode = errors.New("decode upstream response")

// StatusError is returned for non-2xx responses. Body is truncated.
type StatusError struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// ErrorClass buckets the status for metric tags.
func (e *StatusError) ErrorClass() string {
	return fmt.Sprintf("upstream_%dxx", e.StatusCode/100)
}

// Meta is the paging block of a response.
type Meta struct {
	Count      int64   `json:"count"`
	NextCursor *string `json:"next_cursor"`
	Page       *int    `json:"page"`
	PerPage    int     `json:"per_page"`
}

// Group is one bucket of a grouped count response.
type Group struct {
	Key            string `json:"key"`
	KeyDisplayName string `json:"key_display_name"`
	Count          int64  `json:"count"`
}

// Response is one decoded page.
type Response struct {
	Meta    Meta             `json:"meta"`
	Results []map[string]any `json:"results"`
	GroupBy []Group          `json:"group_by"`
}

// Cursor returns the next cursor, or "" when there is none.
func (r *Response) Cursor() string {
	if r == nil || r.Meta.NextCursor == nil {
		return ""
	}
	return *r.Meta.NextCursor
}

// Fetcher issues one upstream request.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, params url.Values) (*Response, error)
}

// ClientOptions configures Client.
type ClientOptions struct {
	HTTPClient *http.Client
	APIKey     string
	Mailto     string
	UserAgent  string
	Logger     *slog.Logger
}

// Client is the HTTP implementation of Fetcher.
type Client struct {
	http      *http.Client
	apiKey    string
	mailto    string
	userAgent string
	logger    *slog.Logger
}

// NewClient constructs a Client.
func NewClient(opts ClientOptions) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "openalex-formatter"
	}
	return &Client{
		http:      hc,
		apiKey:    opts.APIKey,
		mailto:    opts.Mailto,
		userAgent: ua,
		logger:    logger.With("component", "upstream_client"),
	}
}

// WithParams merges params into rawURL's query, replacing existing keys.
func WithParams(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse query url: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PageParams builds cursor pagination parameters.
func PageParams(cursor string, perPage int) url.Values {
	return url.Values{
		"cursor":   []string{cursor},
		"per_page": []string{strconv.Itoa(perPage)},
	}
}

// Fetch requests rawURL with params and decodes the JSON response. Non-2xx
// responses return *StatusError and undecodable bodies wrap ErrDecode.
func (c *Client) Fetch(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	resp, err := c.do(ctx, rawURL, params)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readStatusError(resp)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var out Response
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return &out, nil
}

// FetchDocument requests a single entity such as /works/<id> and returns the
// raw JSON body. Non-2xx responses return *StatusError.
func (c *Client) FetchDocument(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.do(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readStatusError(resp)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read upstream document: %w", err)
	}
	return body, nil
}

// Probe checks that rawURL answers 200 with a paged JSON body. It is used at
// submission time so bad queries fail before a job exists.
func (c *Client) Probe(ctx context.Context, rawURL string) error {
	out, err := c.Fetch(ctx, rawURL, nil)
	if err != nil {
		return err
	}
	if out.Meta.Page == nil || *out.Meta.Page == 0 {
		return fmt.Errorf("%w: response has no paging metadata", ErrDecode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, rawURL string, params url.Values) (*http.Response, error) {
	extra := url.Values{}
	for k, vs := range params {
		extra[k] = vs
	}
	if c.apiKey != "" {
		extra.Set("api_key", c.apiKey)
	}
	if c.mailto != "" {
		extra.Set("mailto", c.mailto)
	}

	target := rawURL
	if len(extra) > 0 {
		var err error
		if target, err = WithParams(rawURL, extra); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	c.logger.DebugContext(ctx, "upstream request",
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"per_page", params.Get("per_page"),
	)
	return resp, nil
}

func readStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &StatusError{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
}
