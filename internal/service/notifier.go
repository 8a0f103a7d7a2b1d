package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ourresearch/openalex-formatter/internal/core"
	"github.com/ourresearch/openalex-formatter/internal/domain/model"
	"github.com/ourresearch/openalex-formatter/internal/observability/metrics"
	"github.com/ourresearch/openalex-formatter/internal/observability/statsd"
)

// Download-ready email contents.
const (
	DownloadReadySubject  = "Your OpenAlex Works download is ready"
	DownloadReadyTemplate = "csv_export_ready"
)

// EmailNotifierOptions groups dependencies for EmailNotifier.
type EmailNotifierOptions struct {
	Repo    core.ExportEmailRepository // Required: notification persistence
	Mailer  core.Mailer                // Required: outbound email
	Logger  *slog.Logger               // Optional: structured logger
	Metrics statsd.Sink                // Optional: metrics sink (StatsD-compatible)
}

// EmailNotifier sends "download ready" emails for finished exports.
type EmailNotifier struct {
	repo    core.ExportEmailRepository
	mailer  core.Mailer
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewEmailNotifier constructs an EmailNotifier.
func NewEmailNotifier(opts EmailNotifierOptions) (*EmailNotifier, error) {
	if opts.Repo == nil {
		return nil, errors.New("ExportEmailRepository is required")
	}
	if opts.Mailer == nil {
		return nil, errors.New("mailer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{
		repo:    opts.Repo,
		mailer:  opts.Mailer,
		logger:  logger.With("component", "email_notifier"),
		metrics: opts.Metrics,
	}, nil
}

// SendNext claims one pending notification whose export has finished and
// sends it. It returns model.ErrNoEmailsAvailable when nothing is ready.
//
// A claim is never released: if sending fails the row keeps send_started set
// and sent_at null, so the address is not mailed twice.
func (n *EmailNotifier) SendNext(ctx context.Context) error {
	claimed, err := n.repo.ClaimNext(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNoEmailsAvailable) {
			return err
		}
		return fmt.Errorf("claim export email: %w", err)
	}

	start := time.Now()
	logger := n.logger.With("email_id", claimed.Email.ID, "export_id", claimed.Email.ExportID)

	mail := core.Mail{
		To:       claimed.Email.RequesterEmail,
		Subject:  DownloadReadySubject,
		Template: DownloadReadyTemplate,
		Data: map[string]any{
			"result_url": claimed.ResultURL,
			"query_url":  claimed.QueryURL,
		},
	}
	if err := n.mailer.Send(ctx, mail); err != nil {
		n.emit(metrics.ResultError, time.Since(start), err)
		return fmt.Errorf("send export email %d: %w", claimed.Email.ID, err)
	}

	marked, err := n.repo.MarkSent(ctx, claimed.Email.ID)
	if err != nil {
		n.emit(metrics.ResultError, time.Since(start), err)
		return fmt.Errorf("mark export email %d sent: %w", claimed.Email.ID, err)
	}

	result := metrics.ResultSuccess
	if !marked {
		result = metrics.ResultNoop
		logger.WarnContext(ctx, "export email was already marked sent")
	}
	logger.InfoContext(ctx, "sent export email")
	n.emit(result, time.Since(start), nil)
	return nil
}

func (n *EmailNotifier) emit(result string, elapsed time.Duration, err error) {
	metrics.EmitExportLifecycle(n.metrics, metrics.ExportMetric{
		Transition: metrics.TransitionEmail,
		Result:     result,
		Duration:   elapsed,
		Err:        err,
	})
}
