package encode

import (
	"context"
	"fmt"
	"io"

	"github.com/ourresearch/openalex-formatter/internal/export/flatten"
)

// CSVEncoder writes one flat table of works. Rows are buffered until the
// source is exhausted so the header covers every discovered column.
type CSVEncoder struct {
	flattener *flatten.Flattener
}

// NewCSVEncoder returns a CSVEncoder.
func NewCSVEncoder() *CSVEncoder {
	return &CSVEncoder{flattener: flatten.New(flatten.Options{})}
}

// ContentType implements Encoder.
func (e *CSVEncoder) ContentType() string { return ContentTypeCSV }

// Encode implements Encoder.
func (e *CSVEncoder) Encode(ctx context.Context, job Job, w io.Writer) error {
	t := newTable(flatten.BaseColumns...)
	err := ForEachPage(ctx, job.Pages, func(page []map[string]any) error {
		for _, rec := range page {
			t.add(e.flattener.Flatten(rec))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := t.writeTo(w, t.columns.Columns(), job.Args.Truncate); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
