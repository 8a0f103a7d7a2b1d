package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	retryInitial          = 200 * time.Millisecond
	retryMax              = 2 * time.Second
	maxErrorBody          = 4 << 10
)

// Poster delivers JSON bodies to an HTTP endpoint with exponential-backoff retries.
// Sinks share it so transport behaviour stays uniform across providers.
type Poster struct {
	Name       string
	Client     *http.Client
	RetryLimit int
}

// NewPoster returns a Poster for the named provider. A nil client gets one
// bounded by timeout.
func NewPoster(name string, client *http.Client, timeout time.Duration, retryLimit int) *Poster {
	if client == nil {
		if timeout <= 0 {
			timeout = defaultWebhookTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Poster{Name: name, Client: client, RetryLimit: max(retryLimit, 0)}
}

// PostJSON encodes v once and posts it to url until a 2xx arrives, retries
// are exhausted, or ctx ends.
func (p *Poster) PostJSON(ctx context.Context, url string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", p.Name, err)
	}

	return backoff.Retry(func() error {
		return p.post(ctx, url, body)
	}, p.backOff(ctx))
}

// backOff allows RetryLimit retries after the first attempt.
func (p *Poster) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitial
	b.MaxInterval = retryMax
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(p.RetryLimit, 0))), ctx)
}

func (p *Poster) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", p.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.Name, err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully consumed below

	snippet, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", p.Name, resp.Status, strings.TrimSpace(string(snippet)))
	}
	if readErr != nil {
		return fmt.Errorf("read %s response: %w", p.Name, readErr)
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Fallback returns value, or fallback when value is blank.
func Fallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
