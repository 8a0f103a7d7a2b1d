package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ourresearch/openalex-formatter/config"
	"github.com/ourresearch/openalex-formatter/internal/adapters/emailrunner"
	"github.com/ourresearch/openalex-formatter/internal/adapters/jobrunner"
	"github.com/ourresearch/openalex-formatter/internal/adapters/reaper"
	"github.com/ourresearch/openalex-formatter/internal/core"
	"github.com/ourresearch/openalex-formatter/internal/observability/statsd"
)

// ExportWorkerConfig contains configuration for the export worker pool.
type ExportWorkerConfig struct {
	Repo      core.ExportRepository
	Processor jobrunner.Processor
	Config    config.ExportWorkerConfig
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// RunExportWorker claims submitted exports and runs them until ctx ends.
func RunExportWorker(ctx context.Context, cfg ExportWorkerConfig) error {
	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Repo:         cfg.Repo,
		Processor:    cfg.Processor,
		Concurrency:  cfg.Config.Concurrency,
		PollInterval: cfg.Config.PollInterval,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create export runner: %w", err)
	}

	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run export runner: %w", runErr)
	}
	return nil
}

// EmailWorkerConfig contains configuration for the email worker.
type EmailWorkerConfig struct {
	Notifier emailrunner.Sender
	Config   config.EmailWorkerConfig
	Logger   *slog.Logger
}

// RunEmailWorker sends download-ready notifications until ctx ends.
func RunEmailWorker(ctx context.Context, cfg EmailWorkerConfig) error {
	runner, err := emailrunner.NewRunner(emailrunner.RunnerOptions{
		Sender:       cfg.Notifier,
		PollInterval: cfg.Config.PollInterval,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create email runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:         cfg.DB,
		Config:     cfg.Config,
		Logger:     cfg.Logger,
		RunOnStart: true,
		Metrics:    cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
