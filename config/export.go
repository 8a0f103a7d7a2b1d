package config

import (
	"strings"
	"time"
)

// UpstreamConfig contains works API and submission configuration.
type UpstreamConfig struct {
	// BaseURL is the works API root; submissions build <BaseURL>/works?... from it.
	BaseURL string `env:"UPSTREAM_BASE_URL" envDefault:"https://api.openalex.org"`

	// APIKey is appended as api_key when set.
	APIKey string `env:"UPSTREAM_API_KEY"`

	// Mailto is appended as mailto when set (polite pool).
	Mailto string `env:"UPSTREAM_MAILTO" envDefault:"team@ourresearch.org"`

	// Timeout bounds one upstream request.
	Timeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"60s"`

	// UserAgent is sent with every request.
	UserAgent string `env:"UPSTREAM_USER_AGENT" envDefault:"openalex-formatter"`

	// DedupeWindow is how recently an identical export must have progressed to be reused.
	DedupeWindow time.Duration `env:"SUBMIT_DEDUPE_WINDOW" envDefault:"15m"`

	// ProbeOnSubmit checks the query against the API before accepting it.
	ProbeOnSubmit bool `env:"SUBMIT_PROBE" envDefault:"true"`

	// DownloadURLExpiry is the lifetime of presigned download links.
	DownloadURLExpiry time.Duration `env:"DOWNLOAD_URL_EXPIRY" envDefault:"300s"`
}

// Sanitize applies guardrails to upstream configuration values.
func (u *UpstreamConfig) Sanitize() {
	u.BaseURL = strings.TrimRight(strings.TrimSpace(u.BaseURL), "/")
	u.APIKey = strings.TrimSpace(u.APIKey)
	u.Mailto = strings.TrimSpace(u.Mailto)
	if u.Timeout <= 0 {
		u.Timeout = 60 * time.Second
	}
	if u.DedupeWindow < 0 {
		u.DedupeWindow = 0
	}
	if u.DownloadURLExpiry < time.Minute {
		u.DownloadURLExpiry = time.Minute
	}
	if u.DownloadURLExpiry > 7*24*time.Hour {
		u.DownloadURLExpiry = 7 * 24 * time.Hour
	}
}

// StorageConfig contains S3-compatible blob storage configuration.
type StorageConfig struct {
	Endpoint  string `env:"ENDPOINT"   envDefault:"s3.amazonaws.com"`
	Region    string `env:"REGION"     envDefault:"us-east-1"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET"     envDefault:"openalex-query-exports"`
	UseSSL    bool   `env:"USE_SSL"    envDefault:"true"`

	// CreateBucket creates the bucket at startup when missing (local MinIO).
	CreateBucket bool `env:"CREATE_BUCKET" envDefault:"false"`
}

// Sanitize trims connection values.
func (s *StorageConfig) Sanitize() {
	s.Endpoint = strings.TrimSpace(s.Endpoint)
	s.Endpoint = strings.TrimPrefix(strings.TrimPrefix(s.Endpoint, "https://"), "http://")
	s.Bucket = strings.TrimSpace(s.Bucket)
	if s.Bucket == "" {
		s.Bucket = "openalex-query-exports"
	}
}

// MailConfig contains Mailgun configuration for "download ready" notifications.
type MailConfig struct {
	Enabled bool          `env:"ENABLED"  envDefault:"false"`
	Domain  string        `env:"DOMAIN"   envDefault:"ourresearch.org"`
	APIKey  string        `env:"API_KEY"`
	APIBase string        `env:"API_BASE" envDefault:"https://api.mailgun.net/v3"`
	Sender  string        `env:"SENDER"   envDefault:"OurResearch Team <team@ourresearch.org>"`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"10s"`
}

// Sanitize disables sending when no API key is configured.
func (m *MailConfig) Sanitize() {
	m.APIKey = strings.TrimSpace(m.APIKey)
	m.Domain = strings.TrimSpace(m.Domain)
	if m.APIKey == "" || m.Domain == "" {
		m.Enabled = false
	}
	if m.Timeout <= 0 {
		m.Timeout = 10 * time.Second
	}
}
