// Package failurenotifier fans export failure alerts out to operator sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/ourresearch/openalex-formatter/internal/observability/notify"
)

// SinkRegistration names a sink for logs.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service delivers each failure to every registered sink in parallel.
// Delivery errors are logged, never returned: alerting must not affect
// export state.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService drops nil sinks and names anonymous ones.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{logger: logger.With("component", "failure_notifier")}
	for i, reg := range opts.Sinks {
		if reg.Sink == nil {
			continue
		}
		if reg.Name == "" {
			reg.Name = "sink-" + strconv.Itoa(i)
		}
		s.sinks = append(s.sinks, reg)
	}
	return s
}

// NotifyExportFailure blocks until every sink has answered. Synchronous
// exports are skipped since their caller already received the error.
func (s *Service) NotifyExportFailure(ctx context.Context, payload notify.ExportFailurePayload) {
	if !s.Enabled() {
		return
	}
	log := s.logger.With("export_id", payload.ExportID, "format", payload.Format)
	if !payload.IsAsync {
		log.DebugContext(ctx, "skipping notification for synchronous export")
		return
	}
	payload.Severity = notify.Fallback(payload.Severity, notify.SeverityCritical)

	var g errgroup.Group
	for _, reg := range s.sinks {
		g.Go(func() error {
			if err := reg.Sink.SendExportFailure(ctx, payload); err != nil {
				log.ErrorContext(ctx, "failure alert not delivered", "sink", reg.Name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
