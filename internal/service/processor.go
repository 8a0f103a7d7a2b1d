package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ourresearch/openalex-formatter/internal/core"
	"github.com/ourresearch/openalex-formatter/internal/data"
	"github.com/ourresearch/openalex-formatter/internal/domain/model"
	"github.com/ourresearch/openalex-formatter/internal/export/encode"
	obserrors "github.com/ourresearch/openalex-formatter/internal/observability/errors"
	"github.com/ourresearch/openalex-formatter/internal/observability/metrics"
	"github.com/ourresearch/openalex-formatter/internal/observability/notify"
	"github.com/ourresearch/openalex-formatter/internal/observability/statsd"
	"github.com/ourresearch/openalex-formatter/internal/upstream"
)

// maxErrorMessageChars bounds last_error so a huge upstream body never lands in the row.
const maxErrorMessageChars = 1000

// ExportProcessorOptions groups dependencies for ExportProcessor.
type ExportProcessorOptions struct {
	Repo     core.ExportRepository // Required: export persistence
	Blobs    core.BlobStore        // Required: artifact storage
	Fetcher  upstream.Fetcher      // Required: works API client
	Encoders *encode.Registry      // Required: format encoders

	// ResultBaseURL is the public base URL download links are built on.
	ResultBaseURL string
	Paginator     upstream.PaginatorConfig
	// TempDir holds artifacts while they are encoded. Empty uses the OS default.
	TempDir string

	Logger           *slog.Logger           // Optional: structured logger
	Metrics          statsd.Sink            // Optional: StatsD lifecycle metrics
	ExportMetrics    *metrics.ExportMetrics // Optional: Prometheus outcome metrics
	PaginatorMetrics upstream.Metrics       // Optional: Prometheus page metrics
	Failures         FailureNotifier        // Optional: operator alerts for failed exports
}

// FailureNotifier alerts operators about exports that failed.
type FailureNotifier interface {
	NotifyExportFailure(ctx context.Context, payload notify.ExportFailurePayload)
}

// ExportProcessor runs the export pipeline for a claimed export: page through
// the query, encode every page, upload the artifact and finish the row.
type ExportProcessor struct {
	repo          core.ExportRepository
	blobs         core.BlobStore
	fetcher       upstream.Fetcher
	encoders      *encode.Registry
	resultBaseURL string
	paginator     upstream.PaginatorConfig
	tempDir       string
	rootLogger    *slog.Logger
	logger        *slog.Logger
	metrics       statsd.Sink
	exportMetrics *metrics.ExportMetrics
	pageMetrics   upstream.Metrics
	failures      FailureNotifier
}

// NewExportProcessor constructs an ExportProcessor.
func NewExportProcessor(opts ExportProcessorOptions) (*ExportProcessor, error) {
	switch {
	case opts.Repo == nil:
		return nil, errors.New("ExportRepository is required")
	case opts.Blobs == nil:
		return nil, errors.New("BlobStore is required")
	case opts.Fetcher == nil:
		return nil, errors.New("upstream Fetcher is required")
	case opts.Encoders == nil:
		return nil, errors.New("encoder Registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportProcessor{
		repo:          opts.Repo,
		blobs:         opts.Blobs,
		fetcher:       opts.Fetcher,
		encoders:      opts.Encoders,
		resultBaseURL: strings.TrimRight(opts.ResultBaseURL, "/"),
		paginator:     opts.Paginator,
		tempDir:       opts.TempDir,
		rootLogger:    logger,
		logger:        logger.With("component", "export_processor"),
		metrics:       opts.Metrics,
		exportMetrics: opts.ExportMetrics,
		pageMetrics:   opts.PaginatorMetrics,
		failures:      opts.Failures,
	}, nil
}

// Supports reports whether format can be produced.
func (p *ExportProcessor) Supports(format model.ExportFormat) bool {
	return p.encoders.Supports(format)
}

// ContentType is the media type of format's artifact.
func (p *ExportProcessor) ContentType(format model.ExportFormat) string {
	enc, err := p.encoders.Get(format)
	if err != nil {
		return "application/octet-stream"
	}
	return enc.ContentType()
}

// ResultURL is the stable download link stored on a finished export.
func (p *ExportProcessor) ResultURL(exportID string) string {
	return ResultURL(p.resultBaseURL, exportID)
}

// ResultURL builds <base>/export/<id>/download.
func ResultURL(baseURL, exportID string) string {
	return fmt.Sprintf("%s/export/%s/download", strings.TrimRight(baseURL, "/"), exportID)
}

// ProgressURL builds <base>/export/<id>, where clients poll an export.
func ProgressURL(baseURL, exportID string) string {
	return fmt.Sprintf("%s/export/%s", strings.TrimRight(baseURL, "/"), exportID)
}

// Process runs the full pipeline for a running export. Any pipeline error
// fails the export and is returned; a reaped export is never finished.
// Cancellation leaves the row running for the reaper.
func (p *ExportProcessor) Process(ctx context.Context, exp *model.Export) error {
	_, err := p.run(ctx, exp, false)
	return err
}

// RunSync runs the pipeline over the first page only and returns the
// artifact bytes along with its content type.
func (p *ExportProcessor) RunSync(ctx context.Context, exp *model.Export) ([]byte, string, error) {
	art, err := p.run(ctx, exp, true)
	if err != nil {
		return nil, "", err
	}
	return art.body, art.contentType, nil
}

type artifact struct {
	contentType string
	size        int64
	body        []byte
}

func (p *ExportProcessor) run(ctx context.Context, exp *model.Export, sync bool) (artifact, error) {
	start := time.Now()
	logger := p.logger.With("export_id", exp.ID, "format", exp.Format)
	if !exp.Status.CanTransitionTo(model.ExportStatusFinished) {
		return artifact{}, fmt.Errorf("%w: %s is %s", data.ErrExportNotRunning, exp.ID, exp.Status)
	}
	logger.InfoContext(ctx, "processing export", "query_url", exp.QueryURL, "sync", sync)

	art, err := p.produce(ctx, exp, sync)
	if err == nil {
		err = p.repo.Finish(ctx, exp.ID, p.ResultURL(exp.ID))
	}
	if err != nil {
		p.fail(ctx, logger, exp, err)
		p.emit(exp, metrics.TransitionFail, metrics.ResultError, time.Since(start), err)
		p.exportMetrics.Completed(string(exp.Format), string(model.ExportStatusFailed), time.Since(start), 0)
		return artifact{}, err
	}

	logger.InfoContext(ctx, "export finished", "bytes", art.size, "duration", time.Since(start))
	p.emit(exp, metrics.TransitionFinish, metrics.ResultSuccess, time.Since(start), nil)
	p.exportMetrics.Completed(string(exp.Format), string(model.ExportStatusFinished), time.Since(start), art.size)
	return art, nil
}

// produce encodes the export into a temp file and uploads it.
func (p *ExportProcessor) produce(ctx context.Context, exp *model.Export, sync bool) (artifact, error) {
	enc, err := p.encoders.Get(exp.Format)
	if err != nil {
		return artifact{}, err
	}
	args, err := exp.Options()
	if err != nil {
		return artifact{}, err
	}

	progress := func(ctx context.Context, value float64) error {
		return p.repo.UpdateProgress(ctx, exp.ID, value)
	}
	pages := upstream.NewPaginator(upstream.PaginatorOptions{
		Fetcher:    p.fetcher,
		QueryURL:   exp.QueryURL,
		Config:     p.paginator,
		Sync:       sync,
		OnProgress: progress,
		Metrics:    p.pageMetrics,
		Logger:     p.rootLogger,
	})

	f, err := os.CreateTemp(p.tempDir, "export-*."+exp.Format.Extension())
	if err != nil {
		return artifact{}, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = f.Close()
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			p.logger.WarnContext(ctx, "remove temp file", "path", f.Name(), "error", rmErr)
		}
	}()

	w := bufio.NewWriter(f)
	job := encode.Job{QueryURL: exp.QueryURL, Args: args, Pages: pages, Progress: progress}
	if err := enc.Encode(ctx, job, w); err != nil {
		return artifact{}, fmt.Errorf("encode %s: %w", exp.Format, err)
	}
	if err := w.Flush(); err != nil {
		return artifact{}, fmt.Errorf("flush artifact: %w", err)
	}

	size, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return artifact{}, fmt.Errorf("stat artifact: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return artifact{}, fmt.Errorf("rewind artifact: %w", err)
	}

	art := artifact{contentType: enc.ContentType(), size: size}
	var body io.Reader = f
	if sync {
		if art.body, err = io.ReadAll(f); err != nil {
			return artifact{}, fmt.Errorf("read artifact: %w", err)
		}
		body = bytes.NewReader(art.body)
	}

	if err := p.blobs.Put(ctx, core.PutObjectParams{
		Key:         exp.ObjectKey(),
		Body:        body,
		Size:        size,
		ContentType: art.contentType,
	}); err != nil {
		return artifact{}, fmt.Errorf("upload %s: %w", exp.ObjectKey(), err)
	}
	return art, nil
}

func (p *ExportProcessor) fail(ctx context.Context, logger *slog.Logger, exp *model.Export, cause error) {
	if errors.Is(cause, data.ErrExportNotRunning) {
		logger.WarnContext(ctx, "export is no longer running; dropping result", "error", cause)
		return
	}
	if errors.Is(cause, context.Canceled) {
		logger.WarnContext(ctx, "export interrupted; leaving it for the reaper", "error", cause)
		return
	}
	logger.ErrorContext(ctx, "export failed", "error", cause)

	// The request context may already be gone; the failure must still land.
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.repo.Fail(failCtx, exp.ID, truncateMessage(cause.Error())); err != nil {
		if errors.Is(err, data.ErrExportNotRunning) {
			logger.WarnContext(ctx, "export left running state before it could be failed")
			return
		}
		logger.ErrorContext(ctx, "fail export error", "error", err, "original_error", cause)
		return
	}

	if p.failures != nil {
		p.failures.NotifyExportFailure(failCtx, notify.ExportFailurePayload{
			ExportID:   exp.ID,
			Format:     string(exp.Format),
			QueryURL:   exp.QueryURL,
			IsAsync:    exp.IsAsync,
			Error:      truncateMessage(cause.Error()),
			ErrorClass: obserrors.Classify(cause),
			OccurredAt: time.Now(),
		})
	}
}

func (p *ExportProcessor) emit(exp *model.Export, transition, result string, elapsed time.Duration, err error) {
	metrics.EmitExportLifecycle(p.metrics, metrics.ExportMetric{
		Format:     string(exp.Format),
		Transition: transition,
		Result:     result,
		Duration:   elapsed,
		Err:        err,
	})
}

func truncateMessage(msg string) string {
	if len(msg) <= maxErrorMessageChars {
		return msg
	}
	return strings.ToValidUTF8(msg[:maxErrorMessageChars], "")
}
