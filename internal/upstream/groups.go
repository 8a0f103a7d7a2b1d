package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Grouped traversal defaults.
const (
	DefaultGroupPerPage  = 50
	DefaultGroupLimit    = 15000
	DefaultGroupAttempts = 3
	DefaultGroupMinDelay = time.Second
	DefaultGroupMaxDelay = 5 * time.Second
)

// RetryPolicy is a bounded exponential backoff.
type RetryPolicy struct {
	Attempts int
	MinDelay time.Duration
	MaxDelay time.Duration
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.Attempts <= 0 {
		r.Attempts = DefaultGroupAttempts
	}
	if r.MinDelay < 0 {
		r.MinDelay = 0
	}
	if r.MaxDelay < r.MinDelay {
		r.MaxDelay = r.MinDelay
	}
	return r
}

// backOff doubles from MinDelay up to MaxDelay and stops after Attempts
// tries or when ctx ends. A zero MinDelay retries immediately.
func (r RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if r.MinDelay > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = r.MinDelay
		exp.MaxInterval = r.MaxDelay
		exp.Multiplier = 2
		exp.RandomizationFactor = 0
		exp.MaxElapsedTime = 0
		exp.Reset()
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.Attempts-1)), ctx)
}

// GroupResult is the complete grouping of one dimension.
type GroupResult struct {
	Dimension string
	Groups    []Group
	Truncated bool
}

// GroupFetcherOptions configures GroupFetcher.
type GroupFetcherOptions struct {
	Fetcher Fetcher
	PerPage int
	Limit   int
	Retry   RetryPolicy
	Logger  *slog.Logger
}

// GroupFetcher traverses grouped counts with cursor pagination.
type GroupFetcher struct {
	fetcher Fetcher
	perPage int
	limit   int
	retry   RetryPolicy
	logger  *slog.Logger
}

// NewGroupFetcher constructs a GroupFetcher. A zero Retry uses the default
// policy of three attempts backing off from one to five seconds.
func NewGroupFetcher(opts GroupFetcherOptions) *GroupFetcher {
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = DefaultGroupPerPage
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultGroupLimit
	}
	retry := opts.Retry
	if retry == (RetryPolicy{}) {
		retry = RetryPolicy{MinDelay: DefaultGroupMinDelay, MaxDelay: DefaultGroupMaxDelay}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupFetcher{
		fetcher: opts.Fetcher,
		perPage: perPage,
		limit:   limit,
		retry:   retry.withDefaults(),
		logger:  logger.With("component", "group_fetcher"),
	}
}

// Limit is the per-dimension group cap.
func (g *GroupFetcher) Limit() int { return g.limit }

// Count returns the total match count of queryURL.
func (g *GroupFetcher) Count(ctx context.Context, queryURL string) (int64, error) {
	resp, err := g.fetchWithRetry(ctx, queryURL, url.Values{"per_page": []string{"1"}})
	if err != nil {
		return 0, err
	}
	return resp.Meta.Count, nil
}

// Groups fetches every group of dimension up to the limit and sorts them by
// count, highest first. Ties keep upstream order.
func (g *GroupFetcher) Groups(ctx context.Context, queryURL, dimension string) (GroupResult, error) {
	out := GroupResult{Dimension: dimension}
	cursor := FirstCursor

	for cursor != "" {
		params := url.Values{
			"group_by": []string{dimension},
			"per_page": []string{strconv.Itoa(g.perPage)},
			"cursor":   []string{cursor},
		}
		resp, err := g.fetchWithRetry(ctx, queryURL, params)
		if err != nil {
			return GroupResult{}, fmt.Errorf("group by %s: %w", dimension, err)
		}
		if len(resp.GroupBy) == 0 {
			break
		}
		out.Groups = append(out.Groups, resp.GroupBy...)
		if len(out.Groups) >= g.limit {
			out.Truncated = true
			out.Groups = out.Groups[:g.limit]
			break
		}
		cursor = resp.Cursor()
	}

	sort.SliceStable(out.Groups, func(i, j int) bool {
		return out.Groups[i].Count > out.Groups[j].Count
	})
	return out, nil
}

func (g *GroupFetcher) fetchWithRetry(ctx context.Context, queryURL string, params url.Values) (*Response, error) {
	attempt := 0
	fetch := func() (*Response, error) {
		attempt++
		resp, err := g.fetcher.Fetch(ctx, queryURL, params)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return resp, err
	}
	return backoff.RetryNotifyWithData(fetch, g.retry.backOff(ctx), func(err error, d time.Duration) {
		g.logger.WarnContext(ctx, "group fetch failed, retrying",
			"error", err,
			"attempt", attempt,
			"delay", d,
		)
	})
}
