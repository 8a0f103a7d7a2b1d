package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ourresearch/openalex-formatter/config"
	"github.com/ourresearch/openalex-formatter/internal/adapters/blobstore"
	"github.com/ourresearch/openalex-formatter/internal/adapters/mailer"
	"github.com/ourresearch/openalex-formatter/internal/core"
	"github.com/ourresearch/openalex-formatter/internal/data"
	"github.com/ourresearch/openalex-formatter/internal/export/encode"
	httpx "github.com/ourresearch/openalex-formatter/internal/http"
	"github.com/ourresearch/openalex-formatter/internal/observability/metrics"
	"github.com/ourresearch/openalex-formatter/internal/observability/notify/pagerduty"
	"github.com/ourresearch/openalex-formatter/internal/observability/notify/slack"
	"github.com/ourresearch/openalex-formatter/internal/observability/statsd"
	"github.com/ourresearch/openalex-formatter/internal/service"
	"github.com/ourresearch/openalex-formatter/internal/service/failurenotifier"
	"github.com/ourresearch/openalex-formatter/internal/upstream"
)

const bucketSetupTimeout = 30 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Exports   *service.ExportService
	Works     *service.WorkService
	Processor *service.ExportProcessor
	Notifier  *service.EmailNotifier

	ExportRepo *data.ExportRepo
	EmailRepo  *data.ExportEmailRepo
	Blobs      *blobstore.Store

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is nil when StatsD emission is disabled.
	MetricsSink   statsd.Sink
	statsdClient  *statsd.Client
	Prometheus    *metrics.Registry
	MetricsConfig config.ObservabilityMetricsConfig

	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// Close releases the StatsD connection, if any.
func (o ObservabilityContainer) Close() error {
	if o.statsdClient == nil {
		return nil
	}
	return o.statsdClient.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Exports *data.ExportRepo
	Emails  *data.ExportEmailRepo
	Lock    core.SubmissionLock
}

// buildObservability configures metrics adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obs := ObservabilityContainer{
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(logger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
	if cfg.Metrics.PrometheusEnabled {
		obs.Prometheus = metrics.NewRegistry()
	}

	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			obs.statsdClient = client
			obs.MetricsSink = client
		}
	}
	return obs
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger.With("component", "failure_notifier")
	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: baseLogger})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:      cfg.Slack.WebhookURL,
			Channel:         cfg.Slack.Channel,
			Username:        cfg.Slack.Username,
			Timeout:         cfg.Timeout,
			RetryLimit:      cfg.RetryLimit,
			ExportURLPrefix: cfg.Slack.ExportURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{Logger: baseLogger, Sinks: sinks})
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps) *serviceRepositories {
	repoCfg := data.RepoConfig{Logger: deps.Logger}
	repos := &serviceRepositories{
		Exports: data.NewExportRepo(deps.DB, repoCfg),
		Emails:  data.NewExportEmailRepo(deps.DB, repoCfg),
	}
	if deps.RedisClient != nil {
		repos.Lock = data.NewRedisSubmissionLock(deps.RedisClient, deps.Config.Redis.LockPrefix)
	}
	return repos
}

// newMailer sends through Mailgun when mail is enabled and only logs otherwise.
//
//nolint:ireturn // the concrete mailer depends on configuration.
func newMailer(cfg config.MailConfig, logger *slog.Logger) (core.Mailer, error) {
	if !cfg.Enabled {
		logger.Info("outbound mail disabled; notifications will be logged")
		return mailer.NewLogMailer(logger)
	}
	return mailer.NewMailgun(cfg, logger)
}

func newUpstreamClient(cfg config.UpstreamConfig, logger *slog.Logger) *upstream.Client {
	return upstream.NewClient(upstream.ClientOptions{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		APIKey:     cfg.APIKey,
		Mailto:     cfg.Mailto,
		UserAgent:  cfg.UserAgent,
		Logger:     logger,
	})
}

func paginatorConfig(cfg config.ExportWorkerConfig) upstream.PaginatorConfig {
	return upstream.PaginatorConfig{
		PerPage:                cfg.PerPage,
		MinPerPage:             cfg.MinPerPage,
		MaxRecords:             cfg.MaxRecords,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		RetryDelay:             cfg.RetryDelay,
	}
}

// NewServices wires repositories, adapters and domain services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg := deps.Config
	logger := deps.Logger

	observability := buildObservability(logger, cfg.Observability)
	repos := buildRepositories(deps)

	blobs, err := blobstore.New(cfg.Storage, logger)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("blob store: %w", err)
	}
	if cfg.Storage.CreateBucket {
		ctx, cancel := context.WithTimeout(context.Background(), bucketSetupTimeout)
		err = blobs.EnsureBucket(ctx)
		cancel()
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("ensure bucket: %w", err)
		}
	}

	client := newUpstreamClient(cfg.Upstream, logger)
	encoders := encode.NewRegistry(encode.RegistryOptions{
		Groups: upstream.NewGroupFetcher(upstream.GroupFetcherOptions{Fetcher: client, Logger: logger}),
	})

	var exportMetrics *metrics.ExportMetrics
	var pageMetrics upstream.Metrics
	if observability.Prometheus != nil {
		exportMetrics = observability.Prometheus.Exports
		pageMetrics = observability.Prometheus.Paginator
	}

	processor, err := service.NewExportProcessor(service.ExportProcessorOptions{
		Repo:             repos.Exports,
		Blobs:            blobs,
		Fetcher:          client,
		Encoders:         encoders,
		ResultBaseURL:    cfg.HTTP.BaseURL,
		Paginator:        paginatorConfig(cfg.ExportWorker),
		TempDir:          cfg.ExportWorker.TempDir,
		Logger:           logger,
		Metrics:          observability.MetricsSink,
		ExportMetrics:    exportMetrics,
		PaginatorMetrics: pageMetrics,
		Failures:         observability.FailureNotifier,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("export processor: %w", err)
	}

	exports, err := service.NewExportService(service.ExportServiceOptions{
		Repo:      repos.Exports,
		Emails:    repos.Emails,
		Blobs:     blobs,
		Processor: processor,
		Lock:      repos.Lock,
		Prober:    client,
		Config:    cfg.Upstream,
		BaseURL:   cfg.HTTP.BaseURL,
		LockTTL:   cfg.Redis.LockTTL,
		Logger:    logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("export service: %w", err)
	}

	works, err := service.NewWorkService(service.WorkServiceOptions{
		Fetcher: client,
		BaseURL: cfg.Upstream.BaseURL,
		Logger:  logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("work service: %w", err)
	}

	outbound, err := newMailer(cfg.Mail, logger)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("mailer: %w", err)
	}
	notifier, err := service.NewEmailNotifier(service.EmailNotifierOptions{
		Repo:    repos.Emails,
		Mailer:  outbound,
		Logger:  logger,
		Metrics: observability.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("email notifier: %w", err)
	}

	return ServiceContainer{
		Exports:       exports,
		Works:         works,
		Processor:     processor,
		Notifier:      notifier,
		ExportRepo:    repos.Exports,
		EmailRepo:     repos.Emails,
		Blobs:         blobs,
		Observability: observability,
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// backgroundService describes a startable long-running component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

func buildBackgroundServices(cfg *ServiceOrchestrationConfig, logger *slog.Logger) []backgroundService {
	app := cfg.Config
	svcs := cfg.Services
	return []backgroundService{
		{
			mode: config.ServiceModeHTTP,
			name: "http server",
			start: func(ctx context.Context) error {
				return RunHTTPServer(ctx, &HTTPServerConfig{
					Config:    app,
					Services:  svcs,
					Readiness: readinessChecks(cfg),
					Logger:    logger,
				})
			},
		},
		{
			mode: config.ServiceModeExportWorker,
			name: "export worker",
			start: func(ctx context.Context) error {
				return RunExportWorker(ctx, ExportWorkerConfig{
					Repo:      svcs.ExportRepo,
					Processor: svcs.Processor,
					Config:    app.ExportWorker,
					Logger:    logger,
					Metrics:   svcs.Observability.MetricsSink,
				})
			},
		},
		{
			mode: config.ServiceModeEmailWorker,
			name: "email worker",
			start: func(ctx context.Context) error {
				return RunEmailWorker(ctx, EmailWorkerConfig{
					Notifier: svcs.Notifier,
					Config:   app.EmailWorker,
					Logger:   logger,
				})
			},
		},
		{
			mode: config.ServiceModeReaper,
			name: "reaper",
			start: func(ctx context.Context) error {
				return RunReaper(ctx, ReaperConfig{
					DB:      cfg.DB,
					Logger:  logger,
					Config:  app.Reaper,
					Metrics: svcs.Observability.MetricsSink,
				})
			},
		},
	}
}

// enabledBackgroundServices filters services to the enabled modes, preserving order.
func enabledBackgroundServices(all []backgroundService, enabled map[config.ServiceMode]bool) []backgroundService {
	out := make([]backgroundService, 0, len(all))
	for _, svc := range all {
		if enabled[svc.mode] {
			out = append(out, svc)
		}
	}
	return out
}

// runServices runs every service in its own errgroup goroutine. The first
// failure cancels the rest; ctx cancellation is a clean shutdown.
func runServices(ctx context.Context, services []backgroundService, logger *slog.Logger) error {
	group, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		group.Go(func() error {
			logger.InfoContext(gctx, "background service started", "service", svc.name, "mode", svc.mode)
			err := svc.start(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			logger.InfoContext(gctx, svc.name+" stopped")
			return nil
		})
	}
	return group.Wait()
}

// RunServicesWithShutdown starts all enabled services and blocks until a
// shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services := enabledBackgroundServices(buildBackgroundServices(cfg, logger), enabled)
	runErr := runServices(ctx, services, logger)
	logger.Info("shutting down services...")

	if closeErr := cfg.Services.Observability.Close(); closeErr != nil {
		logger.Warn("close metrics sink", "error", closeErr)
	}
	if runErr != nil {
		logger.Error("service error", "error", runErr)
	}
	return runErr
}

// readinessChecks probes the dependencies the HTTP server relies on.
func readinessChecks(cfg *ServiceOrchestrationConfig) []httpx.ReadinessCheck {
	var checks []httpx.ReadinessCheck
	if cfg.DB != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "postgres", Check: cfg.DB.PingContext})
	}
	if cfg.RedisClient != nil {
		client := cfg.RedisClient
		checks = append(checks, httpx.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}
	if cfg.Services.Blobs != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "storage", Check: cfg.Services.Blobs.Health})
	}
	return checks
}
