package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	apperrors "github.com/ourresearch/openalex-formatter/internal/errors"
	"github.com/ourresearch/openalex-formatter/internal/export/encode"
	"github.com/ourresearch/openalex-formatter/internal/export/flatten"
)

// DocumentFetcher retrieves a single upstream entity as raw JSON.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, rawURL string) ([]byte, error)
}

// WorkServiceOptions groups dependencies for WorkService.
type WorkServiceOptions struct {
	Fetcher DocumentFetcher // Required: works API client
	// BaseURL is the works API root, e.g. https://api.openalex.org.
	BaseURL string
	Logger  *slog.Logger
}

// WorkService renders single works as citations.
type WorkService struct {
	fetcher DocumentFetcher
	baseURL string
	logger  *slog.Logger
}

// NewWorkService constructs a WorkService.
func NewWorkService(opts WorkServiceOptions) (*WorkService, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("DocumentFetcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkService{
		fetcher: opts.Fetcher,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		logger:  logger.With("component", "work_service"),
	}, nil
}

// FormattedWork is a rendered citation.
type FormattedWork struct {
	Body        []byte
	ContentType string
}

// Format fetches workID and renders it. bib is the only supported format.
func (s *WorkService) Format(ctx context.Context, workID, format string) (*FormattedWork, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return nil, apperrors.ValidationField("format", `"format" argument is required`)
	}
	if format != "bib" {
		return nil, apperrors.Unprocessablef(`supported formats are: "bib"`)
	}
	workID = strings.TrimSpace(workID)
	if workID == "" {
		return nil, apperrors.ValidationField("id", "work id is required")
	}

	queryURL := s.baseURL + "/works/" + url.PathEscape(workID)
	raw, err := s.fetcher.FetchDocument(ctx, queryURL)
	if err != nil {
		return nil, relayUpstreamError(ctx, s.logger, queryURL, err)
	}
	work, err := flatten.DecodeRecord(raw)
	if err == nil && len(work) == 0 {
		err = errors.New("empty work document")
	}
	if err != nil {
		return nil, relayUpstreamError(ctx, s.logger, queryURL, err)
	}

	return &FormattedWork{
		Body:        []byte(encode.BibTeXEntry(work)),
		ContentType: encode.ContentTypeBibTeX,
	}, nil
}
