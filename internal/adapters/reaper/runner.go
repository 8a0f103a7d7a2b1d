// Package reaper provides adapters for running the export reaper.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ourresearch/openalex-formatter/config"
	"github.com/ourresearch/openalex-formatter/internal/core"
	"github.com/ourresearch/openalex-formatter/internal/data"
	"github.com/ourresearch/openalex-formatter/internal/observability/statsd"
	"github.com/ourresearch/openalex-formatter/internal/service"
)

// Runner schedules reaper sweeps on a cron spec.
type Runner struct {
	reaper     *service.ReaperService
	schedule   string
	runOnStart bool
	logger     *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReaperConfig
	Logger *slog.Logger

	// RunOnStart sweeps once before the first scheduled run.
	RunOnStart bool

	// Optional dependency injection for testing/decoupling
	Repo    core.ReaperRepository
	Metrics statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	reaper, err := wireReaperService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{
		reaper:     reaper,
		schedule:   opts.Config.Schedule,
		runOnStart: opts.RunOnStart,
		logger:     opts.Logger.With("component", "reaper_runner"),
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Repo == nil {
		return errors.New("either DB or Repo must be provided")
	}
	if _, err := cron.ParseStandard(opts.Config.Schedule); err != nil {
		return fmt.Errorf("invalid reaper schedule %q: %w", opts.Config.Schedule, err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// wireReaperService wires up all dependencies for the reaper service.
func wireReaperService(opts RunnerOptions) (*service.ReaperService, error) {
	repo := opts.Repo
	if repo == nil {
		repo = data.NewExportRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	return service.NewReaperService(service.ReaperServiceOptions{
		Repo:    repo,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
}

// Run schedules sweeps and blocks until the context is cancelled, then waits
// for an in-flight sweep to finish.
func (r *Runner) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{r.logger})))
	if _, err := c.AddFunc(r.schedule, func() { r.sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}

	r.logger.InfoContext(ctx, "starting reaper runner", "schedule", r.schedule)
	if r.runOnStart {
		r.sweep(ctx)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.InfoContext(ctx, "reaper runner stopped")
	return nil
}

func (r *Runner) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := r.reaper.RunOnce(ctx)
	r.reaper.LogCleanupError(err, "reaper sweep")
	if err == nil {
		r.logger.DebugContext(ctx, "reaper sweep completed", "duration", time.Since(start))
	}
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
