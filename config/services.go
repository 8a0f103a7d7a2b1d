package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeExportWorker runs the export job workers.
	ServiceModeExportWorker ServiceMode = "export-worker"
	// ServiceModeEmailWorker runs the "download ready" email sender.
	ServiceModeEmailWorker ServiceMode = "email-worker"
	// ServiceModeReaper runs the stuck-export reaper.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeExportWorker,
		ServiceModeEmailWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeExportWorker, ServiceModeEmailWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, export-worker, email-worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// ExportWorkerConfig contains export worker and pagination configuration.
type ExportWorkerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"EXPORT_WORKER_CONCURRENCY" envDefault:"2"`

	// PollInterval is how long an idle worker waits before claiming again
	// when no submission notification arrives.
	PollInterval time.Duration `env:"EXPORT_WORKER_POLL_INTERVAL" envDefault:"1s"`

	// PerPage is the maximum and starting page size.
	PerPage int `env:"EXPORT_PER_PAGE" envDefault:"200"`

	// MinPerPage is the floor the page size never shrinks below.
	MinPerPage int `env:"EXPORT_MIN_PER_PAGE" envDefault:"25"`

	// MaxRecords caps the number of works in one export.
	MaxRecords int `env:"EXPORT_MAX_RECORDS" envDefault:"50000"`

	// MaxConsecutiveFailures is how many failed page fetches in a row fail the export.
	MaxConsecutiveFailures int `env:"EXPORT_MAX_CONSECUTIVE_FAILURES" envDefault:"10"`

	// RetryDelay is the pause before refetching a failed page.
	RetryDelay time.Duration `env:"EXPORT_RETRY_DELAY" envDefault:"1s"`

	// TempDir holds artifacts while they are encoded. Empty uses the OS default.
	TempDir string `env:"EXPORT_TEMP_DIR" envDefault:""`
}

// Sanitize applies guardrails to export worker configuration values.
func (w *ExportWorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.PollInterval < 100*time.Millisecond {
		w.PollInterval = 100 * time.Millisecond
	}
	if w.PerPage < 1 {
		w.PerPage = 200
	}
	if w.PerPage > 200 {
		w.PerPage = 200
	}
	if w.MinPerPage < 1 {
		w.MinPerPage = 1
	}
	if w.MinPerPage > w.PerPage {
		w.MinPerPage = w.PerPage
	}
	if w.MaxRecords < 1 {
		w.MaxRecords = 50000
	}
	if w.MaxConsecutiveFailures < 1 {
		w.MaxConsecutiveFailures = 1
	}
	if w.RetryDelay < 0 {
		w.RetryDelay = 0
	}
}

// EmailWorkerConfig contains email worker configuration.
type EmailWorkerConfig struct {
	// PollInterval is how long the worker sleeps when nothing is ready to send.
	PollInterval time.Duration `env:"EMAIL_WORKER_POLL_INTERVAL" envDefault:"5s"`
}

// Sanitize applies guardrails to email worker configuration values.
func (e *EmailWorkerConfig) Sanitize() {
	if e.PollInterval < 100*time.Millisecond {
		e.PollInterval = 100 * time.Millisecond
	}
}

// ReaperConfig contains stuck-export reaper configuration.
type ReaperConfig struct {
	// Schedule is a cron spec (robfig/cron syntax, descriptors allowed).
	Schedule string `env:"REAPER_SCHEDULE" envDefault:"@every 10m"`

	// RunningMaxAge is how long a running export may go without a progress
	// update before it is failed as timed out.
	RunningMaxAge time.Duration `env:"REAPER_RUNNING_MAX_AGE" envDefault:"2h"`

	// SubmittedMaxAge fails exports never claimed within this age. Zero disables the step.
	SubmittedMaxAge time.Duration `env:"REAPER_SUBMITTED_MAX_AGE" envDefault:"0"`

	// BatchSize is the maximum number of rows to process per statement.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	r.Schedule = strings.TrimSpace(r.Schedule)
	if r.Schedule == "" {
		r.Schedule = "@every 10m"
	}
	if r.RunningMaxAge < 5*time.Minute {
		r.RunningMaxAge = 5 * time.Minute
	}
	if r.SubmittedMaxAge < 0 {
		r.SubmittedMaxAge = 0
	}
	if r.SubmittedMaxAge > 0 && r.SubmittedMaxAge < 5*time.Minute {
		r.SubmittedMaxAge = 5 * time.Minute
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
