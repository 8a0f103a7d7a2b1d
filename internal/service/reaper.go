package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ourresearch/openalex-formatter/config"
	"github.com/ourresearch/openalex-formatter/internal/core"
	obserrors "github.com/ourresearch/openalex-formatter/internal/observability/errors"
	"github.com/ourresearch/openalex-formatter/internal/observability/metrics"
	"github.com/ourresearch/openalex-formatter/internal/observability/statsd"
)

// Reasons recorded on exports the reaper fails.
const (
	ReasonTimedOut     = "timed out"
	ReasonNeverClaimed = "never claimed"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository
	Config  config.ReaperConfig
	Logger  *slog.Logger // optional
	Metrics statsd.Sink  // optional
}

// ReaperService fails running exports whose progress stalled past
// RunningMaxAge and, when SubmittedMaxAge is set, submissions no worker
// ever claimed.
type ReaperService struct {
	repo    core.ReaperRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"schedule", opts.Config.Schedule,
			"running_max_age", opts.Config.RunningMaxAge,
			"submitted_max_age", opts.Config.SubmittedMaxAge,
		)
	}

	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// sweep is one class of stuck export the reaper fails in batches.
type sweep struct {
	operation string
	label     string
	reason    string
	maxAge    time.Duration
	fail      func(context.Context, core.FailStaleParams) (int64, error)
}

type sweepResult struct {
	sweep
	count int64
	err   error
}

func (s *ReaperService) sweeps() []sweep {
	return []sweep{
		{
			operation: "fail_running",
			label:     "fail stale running exports",
			reason:    ReasonTimedOut,
			maxAge:    s.config.RunningMaxAge,
			fail:      s.repo.FailStaleRunning,
		},
		{
			operation: "fail_submitted",
			label:     "fail unclaimed submitted exports",
			reason:    ReasonNeverClaimed,
			// Zero disables this sweep.
			maxAge: s.config.SubmittedMaxAge,
			fail:   s.repo.FailStaleSubmitted,
		},
	}
}

// RunOnce performs one sweep. A sweep whose every failure was a context
// cancellation returns context.Canceled.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := time.Now()

	sweeps := s.sweeps()
	results := make([]sweepResult, 0, len(sweeps))
	for _, sw := range sweeps {
		res := sweepResult{sweep: sw}
		if sw.maxAge > 0 {
			params := core.FailStaleParams{MaxAge: sw.maxAge, BatchSize: s.config.BatchSize, Reason: sw.reason}
			res.count, res.err = s.drain(ctx, func(ctx context.Context) (int64, error) {
				return sw.fail(ctx, params)
			})
		}
		if res.count > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, "reaped stuck exports",
				"operation", sw.operation,
				"count", res.count,
				"max_age", sw.maxAge,
			)
		}
		results = append(results, res)
	}

	s.emitMetrics(results, time.Since(start))
	return sweepError(results)
}

func sweepError(results []sweepResult) error {
	var errs []error
	onlyCanceled := true
	for _, r := range results {
		if r.err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.label, r.err))
		onlyCanceled = onlyCanceled && isContextCancellation(r.err)
	}
	switch {
	case len(errs) == 0:
		return nil
	case onlyCanceled:
		return context.Canceled
	default:
		return fmt.Errorf("cleanup failed: %w", errors.Join(errs...))
	}
}

// drain repeats batch until it affects no rows or ctx ends.
func (s *ReaperService) drain(ctx context.Context, batch func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		n, err := batch(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func resultOf(count int64, err error) string {
	switch {
	case err != nil:
		return metrics.ResultError
	case count == 0:
		return metrics.ResultNoop
	default:
		return metrics.ResultSuccess
	}
}

func classifyInto(tags map[string]string, err error) map[string]string {
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	return tags
}

func (s *ReaperService) emitMetrics(results []sweepResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var (
		total    int64
		firstErr error
	)
	for _, r := range results {
		// Shutdown mid-sweep is not a reaper failure.
		err := r.err
		if isContextCancellation(err) {
			err = nil
		}
		opTags := classifyInto(map[string]string{
			"operation": r.operation,
			"result":    resultOf(r.count, err),
		}, err)
		s.metrics.Count("reaper.cleanup_operation", 1, opTags)
		if err == nil && r.count > 0 {
			s.metrics.Count("reaper.exports_failed", r.count, metrics.CloneTags(opTags))
		}

		total += r.count
		if firstErr == nil {
			firstErr = err
		}
	}

	tags := classifyInto(map[string]string{"result": resultOf(total, firstErr)}, firstErr)
	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}
	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

// LogCleanupError logs a sweep failure, demoting context cancellation to debug.
func (s *ReaperService) LogCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
