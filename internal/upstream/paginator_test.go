package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves a fixed record set by cursor offset and fails the
// requests whose sequence number is listed in failOn.
type fakeFetcher struct {
	records []map[string]any
	failOn  map[int]bool
	calls   int
	sizes   []int
}

func newFakeFetcher(n int) *fakeFetcher {
	recs := make([]map[string]any, n)
	for i := range recs {
		recs[i] = map[string]any{"id": fmt.Sprintf("W%d", i+1)}
	}
	return &fakeFetcher{records: recs, failOn: map[int]bool{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, params url.Values) (*Response, error) {
	f.calls++
	perPage, _ := strconv.Atoi(params.Get("per_page"))
	f.sizes = append(f.sizes, perPage)
	if f.failOn[f.calls] {
		return nil, fmt.Errorf("%w: truncated body", ErrDecode)
	}

	offset := 0
	if c := params.Get("cursor"); c != FirstCursor {
		offset, _ = strconv.Atoi(c)
	}
	end := min(offset+perPage, len(f.records))
	resp := &Response{Meta: Meta{Count: int64(len(f.records))}, Results: f.records[offset:end]}
	if end < len(f.records) {
		next := strconv.Itoa(end)
		resp.Meta.NextCursor = &next
	}
	return resp, nil
}

type progressLog []float64

func (p *progressLog) record(_ context.Context, v float64) error {
	*p = append(*p, v)
	return nil
}

func drain(t *testing.T, p *Paginator) [][]map[string]any {
	t.Helper()
	var pages [][]map[string]any
	for {
		page, err := p.Next(context.Background())
		if errors.Is(err, ErrNoMorePages) {
			return pages
		}
		require.NoError(t, err)
		pages = append(pages, page)
	}
}

func TestPaginator_ProgressPerPage(t *testing.T) {
	f := newFakeFetcher(3)
	var progress progressLog
	p := NewPaginator(PaginatorOptions{
		Fetcher:    f,
		QueryURL:   "https://api.example.org/works",
		Config:     PaginatorConfig{PerPage: 2},
		OnProgress: progress.record,
	})

	pages := drain(t, p)
	require.Len(t, pages, 2)
	assert.Len(t, pages[0], 2)
	assert.Len(t, pages[1], 1)
	assert.Equal(t, []float64{0.5, 1.0}, []float64(progress))
	assert.Equal(t, 3, p.Processed())
	assert.Equal(t, 3, p.Total())
}

func TestPaginator_AdaptivePageSize(t *testing.T) {
	f := newFakeFetcher(1000)
	f.failOn = map[int]bool{1: true, 2: true, 3: true}
	p := NewPaginator(PaginatorOptions{Fetcher: f, QueryURL: "u"})

	_, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{200, 100, 50, 25}, f.sizes)
	assert.Equal(t, 50, p.PerPage())

	_, err = p.Next(context.Background())
	require.NoError(t, err)
	_, err = p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, p.PerPage())
}

func TestPaginator_PageSizeFloor(t *testing.T) {
	f := newFakeFetcher(10)
	f.failOn = map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true}
	p := NewPaginator(PaginatorOptions{Fetcher: f, QueryURL: "u", Config: PaginatorConfig{MaxConsecutiveFailures: 6}})

	_, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{200, 100, 50, 25, 25, 25}, f.sizes)
}

func TestPaginator_GivesUpAfterConsecutiveFailures(t *testing.T) {
	f := newFakeFetcher(10)
	f.failOn = map[int]bool{1: true, 2: true, 3: true}
	p := NewPaginator(PaginatorOptions{Fetcher: f, QueryURL: "u", Config: PaginatorConfig{MaxConsecutiveFailures: 3}})

	_, err := p.Next(context.Background())
	require.ErrorIs(t, err, ErrTooManyFailures)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, 3, f.calls)
}

func TestPaginator_RecordBudget(t *testing.T) {
	f := newFakeFetcher(100)
	var progress progressLog
	p := NewPaginator(PaginatorOptions{
		Fetcher:    f,
		QueryURL:   "u",
		Config:     PaginatorConfig{PerPage: 30, MaxRecords: 50},
		OnProgress: progress.record,
	})

	pages := drain(t, p)
	require.Len(t, pages, 2)
	// The last page is delivered whole even though it crosses the budget.
	assert.Equal(t, 60, p.Processed())
	assert.Equal(t, 1.0, progress[len(progress)-1])
}

func TestPaginator_SyncFetchesFirstPageOnly(t *testing.T) {
	f := newFakeFetcher(500)
	var progress progressLog
	p := NewPaginator(PaginatorOptions{Fetcher: f, QueryURL: "u", Sync: true, OnProgress: progress.record})

	pages := drain(t, p)
	require.Len(t, pages, 1)
	assert.Len(t, pages[0], 200)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, []float64{1.0}, []float64(progress))
}

func TestPaginator_EmptyResult(t *testing.T) {
	f := newFakeFetcher(0)
	var progress progressLog
	p := NewPaginator(PaginatorOptions{Fetcher: f, QueryURL: "u", OnProgress: progress.record})

	pages := drain(t, p)
	assert.Empty(t, pages)
	assert.Equal(t, []float64{1.0}, []float64(progress))
}

func TestPaginator_ProgressIsMonotonic(t *testing.T) {
	f := newFakeFetcher(1000)
	// Failures between pages shrink the page size, which would otherwise make
	// the estimated page count jump upward.
	f.failOn = map[int]bool{2: true, 3: true, 4: true}
	var progress progressLog
	p := NewPaginator(PaginatorOptions{Fetcher: f, QueryURL: "u", OnProgress: progress.record})

	drain(t, p)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	assert.Equal(t, 1.0, progress[len(progress)-1])
}

func TestPaginator_ContextCancelledDuringRetry(t *testing.T) {
	f := newFakeFetcher(10)
	f.failOn = map[int]bool{1: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPaginator(PaginatorOptions{Fetcher: f, QueryURL: "u", Config: PaginatorConfig{RetryDelay: time.Minute}})
	_, err := p.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPaginator_ProgressErrorStops(t *testing.T) {
	f := newFakeFetcher(5)
	boom := errors.New("db down")
	p := NewPaginator(PaginatorOptions{
		Fetcher:    f,
		QueryURL:   "u",
		Config:     PaginatorConfig{PerPage: 2},
		OnProgress: func(context.Context, float64) error { return boom },
	})

	_, err := p.Next(context.Background())
	require.NoError(t, err)
	_, err = p.Next(context.Background())
	require.ErrorIs(t, err, boom)
}
