package encode

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/ourresearch/openalex-formatter/internal/upstream"
)

// GroupSource fetches total counts and complete groupings.
type GroupSource interface {
	Count(ctx context.Context, queryURL string) (int64, error)
	Groups(ctx context.Context, queryURL, dimension string) (upstream.GroupResult, error)
	Limit() int
}

// GroupBysEncoder writes a side-by-side grouped count report, one three
// column block per dimension.
type GroupBysEncoder struct {
	groups GroupSource
}

// NewGroupBysEncoder returns a GroupBysEncoder.
func NewGroupBysEncoder(groups GroupSource) *GroupBysEncoder {
	return &GroupBysEncoder{groups: groups}
}

// ContentType implements Encoder.
func (e *GroupBysEncoder) ContentType() string { return ContentTypeCSV }

// SplitGroupBys removes the group_bys parameter from queryURL and returns the
// remaining query and the listed dimensions.
func SplitGroupBys(queryURL string) (string, []string, error) {
	u, err := url.Parse(queryURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse query url: %w", err)
	}
	q := u.Query()
	raw := q.Get("group_bys")
	q.Del("group_bys")
	u.RawQuery = q.Encode()

	var dims []string
	for _, d := range strings.Split(raw, ",") {
		if d = strings.TrimSpace(d); d != "" {
			dims = append(dims, d)
		}
	}
	return u.String(), dims, nil
}

// Encode implements Encoder.
func (e *GroupBysEncoder) Encode(ctx context.Context, job Job, w io.Writer) error {
	if e.groups == nil {
		return errors.New("group-bys encoder has no group source")
	}
	query, dims, err := SplitGroupBys(job.QueryURL)
	if err != nil {
		return err
	}

	count, err := e.groups.Count(ctx, query)
	if err != nil {
		return fmt.Errorf("count results: %w", err)
	}

	results := make([]upstream.GroupResult, 0, len(dims))
	for i, dim := range dims {
		res, err := e.groups.Groups(ctx, query, dim)
		if err != nil {
			return err
		}
		results = append(results, res)
		if err := report(ctx, job.Progress, float64(i+1)/float64(len(dims))); err != nil {
			return err
		}
	}
	if len(dims) == 0 {
		if err := report(ctx, job.Progress, 1); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)
	for _, rec := range groupGrid(job.QueryURL, count, results, e.groups.Limit()) {
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// groupGrid lays out the report: a four row preamble, one header row of
// dimension names, then groups aligned under their dimension.
func groupGrid(queryURL string, count int64, results []upstream.GroupResult, limit int) [][]string {
	grid := [][]string{
		{"Your query: " + queryURL},
		{},
		{"Number of results: " + strconv.FormatInt(count, 10)},
		{},
	}
	if len(results) == 0 {
		return grid
	}

	blocks := make([][][3]string, len(results))
	height := 0
	header := make([]string, 0, 3*len(results))
	for i, res := range results {
		header = append(header, res.Dimension, "", "")
		for _, g := range res.Groups {
			blocks[i] = append(blocks[i], [3]string{g.KeyDisplayName, strconv.FormatInt(g.Count, 10), ""})
		}
		if res.Truncated {
			msg := fmt.Sprintf("Results truncated, groups limited to %d results per group.", limit)
			blocks[i] = append(blocks[i], [3]string{msg, "", ""})
		}
		height = max(height, len(blocks[i]))
	}
	grid = append(grid, header)

	for r := 0; r < height; r++ {
		row := make([]string, 0, 3*len(blocks))
		for _, b := range blocks {
			if r < len(b) {
				row = append(row, b[r][:]...)
			} else {
				row = append(row, "", "", "")
			}
		}
		grid = append(grid, row)
	}
	return grid
}

func report(ctx context.Context, fn ProgressFunc, p float64) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, p)
}
