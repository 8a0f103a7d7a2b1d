package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and Redis configuration
//   - http.go: HTTP server configuration
//   - export.go: Upstream API, blob storage and email configuration
//   - services.go: Service mode, worker and reaper configuration
type AppConfig struct {
	// IsDev controls development mode behavior (text logs, relaxed guardrails).
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	// Upstream works API configuration
	Upstream UpstreamConfig

	// Export worker configuration
	ExportWorker ExportWorkerConfig

	// Email worker configuration
	EmailWorker EmailWorkerConfig

	// Reaper configuration
	Reaper ReaperConfig

	// Blob storage configuration
	Storage StorageConfig `envPrefix:"STORAGE_"`

	// Outbound email configuration
	Mail MailConfig `envPrefix:"MAIL_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Postgres.Sanitize()
	c.HTTP.Sanitize()
	c.Upstream.Sanitize()
	c.ExportWorker.Sanitize()
	c.EmailWorker.Sanitize()
	c.Reaper.Sanitize()
	c.Storage.Sanitize()
	c.Mail.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and APP_ENV environment variables.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.serviceEnabled(ServiceModeHTTP)
}

// IsExportWorkerEnabled returns true if the export worker service is enabled.
func (c *AppConfig) IsExportWorkerEnabled() bool {
	return c.serviceEnabled(ServiceModeExportWorker)
}

// IsEmailWorkerEnabled returns true if the email worker service is enabled.
func (c *AppConfig) IsEmailWorkerEnabled() bool {
	return c.serviceEnabled(ServiceModeEmailWorker)
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.serviceEnabled(ServiceModeReaper)
}
