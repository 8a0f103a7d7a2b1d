// Package jobrunner runs the export worker pool: claim a submitted export,
// run the pipeline, repeat.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ourresearch/openalex-formatter/internal/core"
	"github.com/ourresearch/openalex-formatter/internal/domain/model"
	"github.com/ourresearch/openalex-formatter/internal/observability/metrics"
	"github.com/ourresearch/openalex-formatter/internal/observability/statsd"
)

// Processor runs the pipeline for one claimed export. Implementations fail
// the export themselves; the returned error is informational.
type Processor interface {
	Process(ctx context.Context, exp *model.Export) error
}

// RunnerOptions configures the export runner.
type RunnerOptions struct {
	Repo      core.ExportRepository // Required: claims and notifications
	Processor Processor             // Required: export pipeline

	Concurrency int // number of worker goroutines; defaults to 1
	// PollInterval bounds how long an idle worker waits for a submission
	// notification before claiming again; defaults to 1s.
	PollInterval time.Duration

	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Runner pulls submitted exports and processes them.
type Runner struct {
	repo         core.ExportRepository
	processor    Processor
	workers      int
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      statsd.Sink
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Repo == nil {
		return nil, errors.New("ExportRepository is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("processor is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = time.Second
	}

	return &Runner{
		repo:         opts.Repo,
		processor:    opts.Processor,
		workers:      workers,
		pollInterval: poll,
		logger:       logger.With("component", "export_runner"),
		metrics:      opts.Metrics,
	}, nil
}

// Run starts worker goroutines and processes exports until the context is
// cancelled. Cancellation is a clean shutdown and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting export runner", "workers", r.workers, "poll_interval", r.pollInterval)

	var wg sync.WaitGroup
	for i := range r.workers {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.workerLoop(ctx, worker)
		}(i)
	}
	wg.Wait()

	r.logger.InfoContext(ctx, "export runner stopped")
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (r *Runner) workerLoop(ctx context.Context, worker int) {
	logger := r.logger.With("worker", worker)
	for ctx.Err() == nil {
		exp, err := r.repo.ClaimNext(ctx)
		switch {
		case err == nil:
			r.processExport(ctx, logger, exp)
		case errors.Is(err, model.ErrNoExportsAvailable):
			r.waitForNotify(ctx, logger)
		case ctx.Err() != nil:
			return
		default:
			// A database blip must not take the worker down; back off and retry.
			logger.ErrorContext(ctx, "claim export failed", "error", err)
			r.emitClaim(metrics.ResultError, err)
			r.sleep(ctx)
		}
	}
}

// waitForNotify blocks until a submission is announced, the poll interval
// passes, or ctx ends.
func (r *Runner) waitForNotify(ctx context.Context, logger *slog.Logger) {
	waitCtx, cancel := context.WithTimeout(ctx, r.pollInterval)
	defer cancel()

	err := r.repo.WaitForNotification(waitCtx)
	if err == nil || ctx.Err() != nil || waitCtx.Err() != nil {
		return
	}
	logger.DebugContext(ctx, "wait for export notification", "error", err)
	<-waitCtx.Done()
}

func (r *Runner) sleep(ctx context.Context) {
	t := time.NewTimer(r.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (r *Runner) processExport(ctx context.Context, logger *slog.Logger, exp *model.Export) {
	r.emitClaim(metrics.ResultSuccess, nil)
	logger = logger.With("export_id", exp.ID)

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("export processor panic: %v", rec)
			logger.ErrorContext(ctx, "export processor panicked", "panic", rec)
			failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if ferr := r.repo.Fail(failCtx, exp.ID, "internal error"); ferr != nil {
				logger.ErrorContext(ctx, "fail export error", "error", ferr, "original_error", err)
			}
		}
	}()

	if err := r.processor.Process(ctx, exp); err != nil {
		logger.WarnContext(ctx, "export did not finish", "error", err)
	}
}

func (r *Runner) emitClaim(result string, err error) {
	metrics.EmitExportLifecycle(r.metrics, metrics.ExportMetric{
		Transition: metrics.TransitionClaim,
		Result:     result,
		Err:        err,
	})
}
