package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Paginator defaults.
const (
	DefaultPerPage                = 200
	DefaultMinPerPage             = 25
	DefaultMaxRecords             = 50000
	DefaultMaxConsecutiveFailures = 10
	DefaultRetryDelay             = time.Second
)

// ErrNoMorePages is returned by Next once every page has been delivered.
var ErrNoMorePages = errors.New("no more pages")

// ErrTooManyFailures is returned after the consecutive failure limit.
var ErrTooManyFailures = errors.New("too many consecutive upstream failures")

// ProgressFunc receives monotonically non-decreasing progress in [0, 1].
type ProgressFunc func(ctx context.Context, progress float64) error

// Metrics observes paginator behaviour. A nil Metrics is allowed.
type Metrics interface {
	PageFetched(perPage, records int, elapsed time.Duration)
	PageFailed(newPerPage int)
}

// PaginatorConfig tunes page sizing and limits.
type PaginatorConfig struct {
	PerPage                int
	MinPerPage             int
	MaxRecords             int
	MaxConsecutiveFailures int
	RetryDelay             time.Duration
}

func (c PaginatorConfig) withDefaults() PaginatorConfig {
	if c.PerPage <= 0 {
		c.PerPage = DefaultPerPage
	}
	if c.MinPerPage <= 0 {
		c.MinPerPage = DefaultMinPerPage
	}
	if c.MinPerPage > c.PerPage {
		c.MinPerPage = c.PerPage
	}
	if c.MaxRecords <= 0 {
		c.MaxRecords = DefaultMaxRecords
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return c
}

// PaginatorOptions configures a Paginator for one query.
type PaginatorOptions struct {
	Fetcher  Fetcher
	QueryURL string
	Config   PaginatorConfig
	// Sync fetches only the first page and reports completion after it.
	Sync       bool
	OnProgress ProgressFunc
	Metrics    Metrics
	Logger     *slog.Logger
}

// Paginator walks a cursor-paginated query one page at a time. The page size
// starts at the configured maximum, halves after a failed fetch (never below
// the floor) and doubles after each successful one (never above the maximum).
// It is not safe for concurrent use.
type Paginator struct {
	fetcher    Fetcher
	queryURL   string
	cfg        PaginatorConfig
	sync       bool
	onProgress ProgressFunc
	metrics    Metrics
	logger     *slog.Logger

	cursor    string
	perPage   int
	failures  int
	pages     int
	processed int
	total     int
	progress  float64
	pending   bool
	done      bool
}

// NewPaginator constructs a Paginator positioned before the first page.
func NewPaginator(opts PaginatorOptions) *Paginator {
	cfg := opts.Config.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Paginator{
		fetcher:    opts.Fetcher,
		queryURL:   opts.QueryURL,
		cfg:        cfg,
		sync:       opts.Sync,
		onProgress: opts.OnProgress,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "paginator"),
		cursor:     FirstCursor,
		perPage:    cfg.PerPage,
	}
}

// PerPage is the page size the next request will use.
func (p *Paginator) PerPage() int { return p.perPage }

// Processed is the number of records delivered so far.
func (p *Paginator) Processed() int { return p.processed }

// Total is the upstream match count reported by the first page.
func (p *Paginator) Total() int { return p.total }

// Progress is the last reported progress.
func (p *Paginator) Progress() float64 { return p.progress }

// Next returns the next page of records. Progress for a delivered page is
// reported when the caller asks for the following one, so a persisted value
// always reflects records the caller has already consumed. After the last
// page Next reports final progress and returns ErrNoMorePages.
func (p *Paginator) Next(ctx context.Context) ([]map[string]any, error) {
	if err := p.flushProgress(ctx); err != nil {
		return nil, err
	}
	if p.done {
		return nil, ErrNoMorePages
	}

	for {
		start := time.Now()
		resp, err := p.fetcher.Fetch(ctx, p.queryURL, PageParams(p.cursor, p.perPage))
		if err == nil {
			p.grow()
			p.failures = 0
			if p.metrics != nil {
				p.metrics.PageFetched(p.perPage, len(resp.Results), time.Since(start))
			}
			return p.accept(ctx, resp)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		p.failures++
		p.shrink()
		if p.metrics != nil {
			p.metrics.PageFailed(p.perPage)
		}
		p.logger.WarnContext(ctx, "upstream page fetch failed",
			"error", err,
			"consecutive_failures", p.failures,
			"next_per_page", p.perPage,
		)
		if p.failures >= p.cfg.MaxConsecutiveFailures {
			return nil, fmt.Errorf("%w: %w", ErrTooManyFailures, err)
		}
		if err := sleep(ctx, p.cfg.RetryDelay); err != nil {
			return nil, err
		}
	}
}

func (p *Paginator) accept(ctx context.Context, resp *Response) ([]map[string]any, error) {
	if p.pages == 0 {
		p.total = int(resp.Meta.Count)
	}
	p.pages++
	p.processed += len(resp.Results)
	p.cursor = resp.Cursor()

	switch {
	case p.sync:
		p.done = true
	case p.cursor == "" || len(resp.Results) == 0:
		p.done = true
	case p.processed >= p.budget():
		p.done = true
	}
	p.pending = true

	if len(resp.Results) == 0 {
		// Nothing for the caller to consume; report now and stop.
		if err := p.flushProgress(ctx); err != nil {
			return nil, err
		}
		return nil, ErrNoMorePages
	}
	return resp.Results, nil
}

func (p *Paginator) flushProgress(ctx context.Context) error {
	if !p.pending {
		return nil
	}
	p.pending = false

	next := p.estimate()
	if next < p.progress {
		next = p.progress
	}
	p.progress = next
	if p.onProgress == nil {
		return nil
	}
	if err := p.onProgress(ctx, next); err != nil {
		return fmt.Errorf("report progress: %w", err)
	}
	return nil
}

// estimate is pages done over pages done plus the pages still needed at the
// current page size.
func (p *Paginator) estimate() float64 {
	if p.done {
		return 1
	}
	remaining := p.budget() - p.processed
	if remaining < 0 {
		remaining = 0
	}
	pagesLeft := (remaining + p.perPage - 1) / p.perPage
	expected := p.pages + pagesLeft
	if expected <= 0 {
		return 1
	}
	v := float64(p.pages) / float64(expected)
	if v > 1 {
		return 1
	}
	return v
}

func (p *Paginator) budget() int {
	if p.total > 0 && p.total < p.cfg.MaxRecords {
		return p.total
	}
	return p.cfg.MaxRecords
}

func (p *Paginator) shrink() {
	p.perPage = max(p.perPage/2, p.cfg.MinPerPage)
}

func (p *Paginator) grow() {
	p.perPage = min(p.perPage*2, p.cfg.PerPage)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
