// Package emailrunner drives the "download ready" email worker.
package emailrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ourresearch/openalex-formatter/internal/domain/model"
)

// Sender sends one pending notification, returning model.ErrNoEmailsAvailable
// when nothing is ready.
type Sender interface {
	SendNext(ctx context.Context) error
}

// RunnerOptions configures the email runner.
type RunnerOptions struct {
	Sender       Sender        // Required
	PollInterval time.Duration // idle sleep; defaults to 5s
	Logger       *slog.Logger
}

// Runner sends ready notifications until its context ends.
type Runner struct {
	sender       Sender
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Sender == nil {
		return nil, errors.New("sender is required")
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		sender:       opts.Sender,
		pollInterval: poll,
		logger:       logger.With("component", "email_runner"),
	}, nil
}

// Run drains ready notifications back to back and sleeps when there are none
// or a send fails. Cancellation returns nil.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting email runner", "poll_interval", r.pollInterval)

	for {
		err := r.sender.SendNext(ctx)
		if ctx.Err() != nil {
			r.logger.InfoContext(ctx, "email runner stopped")
			return nil
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, model.ErrNoEmailsAvailable) {
			r.logger.ErrorContext(ctx, "send export email", "error", err)
		}

		t := time.NewTimer(r.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			r.logger.InfoContext(ctx, "email runner stopped")
			return nil
		case <-t.C:
		}
	}
}
