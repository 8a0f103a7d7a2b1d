// Package mailer sends templated emails through Mailgun.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"net/http"
	texttemplate "text/template"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/ourresearch/openalex-formatter/config"
	"github.com/ourresearch/openalex-formatter/internal/core"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// Templates holds the HTML and plain text renderings of every email.
type Templates struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

// LoadTemplates parses the embedded email templates.
func LoadTemplates() (*Templates, error) {
	html, err := htmltemplate.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Templates{html: html, text: text}, nil
}

// Render executes the named template in both renderings.
func (t *Templates) Render(name string, data map[string]any) (html, text string, err error) {
	var hb, tb bytes.Buffer
	if err := t.html.ExecuteTemplate(&hb, name+".html", data); err != nil {
		return "", "", fmt.Errorf("render %s.html: %w", name, err)
	}
	if err := t.text.ExecuteTemplate(&tb, name+".txt", data); err != nil {
		return "", "", fmt.Errorf("render %s.txt: %w", name, err)
	}
	return hb.String(), tb.String(), nil
}

// Mailgun is the Mailgun implementation of core.Mailer.
type Mailgun struct {
	mg        *mailgun.MailgunImpl
	sender    string
	templates *Templates
	logger    *slog.Logger
}

var _ core.Mailer = (*Mailgun)(nil)

// NewMailgun builds a Mailgun mailer from configuration.
func NewMailgun(cfg config.MailConfig, logger *slog.Logger) (*Mailgun, error) {
	if cfg.APIKey == "" || cfg.Domain == "" {
		return nil, errors.New("mailgun domain and api key are required")
	}
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}
	mg := mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	if cfg.APIBase != "" {
		mg.SetAPIBase(cfg.APIBase)
	}
	mg.SetClient(&http.Client{Timeout: cfg.Timeout})
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailgun{
		mg:        mg,
		sender:    cfg.Sender,
		templates: templates,
		logger:    logger.With("component", "mailgun"),
	}, nil
}

// Send renders mail.Template and posts the message.
func (m *Mailgun) Send(ctx context.Context, mail core.Mail) error {
	html, text, err := m.templates.Render(mail.Template, mail.Data)
	if err != nil {
		return err
	}
	msg := m.mg.NewMessage(m.sender, mail.Subject, text, mail.To)
	msg.SetHtml(html)

	m.logger.InfoContext(ctx, "sending email", "subject", mail.Subject, "to", mail.To)
	_, id, err := m.mg.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	m.logger.DebugContext(ctx, "email queued", "message_id", id)
	return nil
}

// LogMailer renders and logs emails without sending them. It is used when
// Mailgun is not configured.
type LogMailer struct {
	templates *Templates
	logger    *slog.Logger
}

var _ core.Mailer = (*LogMailer)(nil)

// NewLogMailer returns a LogMailer.
func NewLogMailer(logger *slog.Logger) (*LogMailer, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{templates: templates, logger: logger.With("component", "log_mailer")}, nil
}

// Send implements core.Mailer.
func (m *LogMailer) Send(ctx context.Context, mail core.Mail) error {
	_, text, err := m.templates.Render(mail.Template, mail.Data)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "email not sent; mail is disabled",
		"subject", mail.Subject,
		"to", mail.To,
		"body", text,
	)
	return nil
}
