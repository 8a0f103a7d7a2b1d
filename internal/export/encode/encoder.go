// Package encode renders fetched work records into export artifacts.
package encode

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ourresearch/openalex-formatter/internal/domain/model"
	"github.com/ourresearch/openalex-formatter/internal/upstream"
)

// Content types of the produced artifacts.
const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeRIS  = "application/x-research-info-systems"
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeZip  = "application/zip"
)

// PageSource yields pages of records until it returns upstream.ErrNoMorePages.
type PageSource interface {
	Next(ctx context.Context) ([]map[string]any, error)
}

// ProgressFunc persists job progress.
type ProgressFunc func(ctx context.Context, progress float64) error

// Job is everything an encoder needs to produce one artifact.
type Job struct {
	QueryURL string
	Args     model.ExportArgs
	// Pages is the record stream. Encoders that fetch on their own ignore it.
	Pages PageSource
	// Progress is used by encoders that drive their own fetching. Paged
	// encoders rely on the page source to report progress.
	Progress ProgressFunc
}

// Encoder writes one artifact for a job.
type Encoder interface {
	Encode(ctx context.Context, job Job, w io.Writer) error
	ContentType() string
}

// ForEachPage calls fn with every page of src.
func ForEachPage(ctx context.Context, src PageSource, fn func(page []map[string]any) error) error {
	if src == nil {
		return errors.New("encode: job has no page source")
	}
	for {
		page, err := src.Next(ctx)
		if errors.Is(err, upstream.ErrNoMorePages) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(page); err != nil {
			return err
		}
	}
}

// RegistryOptions carries the dependencies of the built-in encoders.
type RegistryOptions struct {
	Groups GroupSource
	Clock  Clock
}

// Registry maps formats to encoders.
type Registry struct {
	encoders map[model.ExportFormat]Encoder
}

// NewRegistry returns a registry holding every format this deployment
// produces. mega-csv is intentionally absent.
func NewRegistry(opts RegistryOptions) *Registry {
	return &Registry{encoders: map[model.ExportFormat]Encoder{
		model.ExportFormatCSV:          NewCSVEncoder(),
		model.ExportFormatRIS:          NewRISEncoder(),
		model.ExportFormatWoSPlaintext: NewWoSEncoder(opts.Clock),
		model.ExportFormatGroupBysCSV:  NewGroupBysEncoder(opts.Groups),
		model.ExportFormatZip:          NewZipEncoder(),
	}}
}

// Get returns the encoder for format.
func (r *Registry) Get(format model.ExportFormat) (Encoder, error) {
	enc, ok := r.encoders[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedFormat, format)
	}
	return enc, nil
}

// Supports reports whether format has an encoder.
func (r *Registry) Supports(format model.ExportFormat) bool {
	_, ok := r.encoders[format]
	return ok
}
