package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ourresearch/openalex-formatter/config"
	"github.com/ourresearch/openalex-formatter/internal/core"
	"github.com/ourresearch/openalex-formatter/internal/data"
	"github.com/ourresearch/openalex-formatter/internal/domain/model"
	apperrors "github.com/ourresearch/openalex-formatter/internal/errors"
	"github.com/ourresearch/openalex-formatter/internal/upstream"
)

const (
	defaultLockTTL   = 30 * time.Second
	peerPollInterval = 100 * time.Millisecond
	peerWait         = 3 * time.Second
)

// syncFormats can be produced inline from the first page of results.
var syncFormats = map[model.ExportFormat]bool{
	model.ExportFormatCSV:          true,
	model.ExportFormatRIS:          true,
	model.ExportFormatWoSPlaintext: true,
}

// Prober checks a query against the works API before an export is created.
type Prober interface {
	Probe(ctx context.Context, rawURL string) error
}

// ExportServiceOptions groups dependencies for ExportService.
type ExportServiceOptions struct {
	Repo      core.ExportRepository      // Required: export persistence
	Emails    core.ExportEmailRepository // Required: notification persistence
	Blobs     core.BlobStore             // Required: presigned downloads
	Processor *ExportProcessor           // Required: synchronous exports and format support
	Lock      core.SubmissionLock        // Optional: serializes identical submissions
	Prober    Prober                     // Optional: nil skips the submission probe
	Config    config.UpstreamConfig
	// BaseURL is the public base URL of this service.
	BaseURL string
	LockTTL time.Duration
	Logger  *slog.Logger
}

// ExportService accepts export submissions and answers lookups.
type ExportService struct {
	repo      core.ExportRepository
	emails    core.ExportEmailRepository
	blobs     core.BlobStore
	processor *ExportProcessor
	lock      core.SubmissionLock
	prober    Prober
	cfg       config.UpstreamConfig
	baseURL   string
	lockTTL   time.Duration
	logger    *slog.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(opts ExportServiceOptions) (*ExportService, error) {
	switch {
	case opts.Repo == nil:
		return nil, errors.New("ExportRepository is required")
	case opts.Emails == nil:
		return nil, errors.New("ExportEmailRepository is required")
	case opts.Blobs == nil:
		return nil, errors.New("BlobStore is required")
	case opts.Processor == nil:
		return nil, errors.New("ExportProcessor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &ExportService{
		repo:      opts.Repo,
		emails:    opts.Emails,
		blobs:     opts.Blobs,
		processor: opts.Processor,
		lock:      opts.Lock,
		prober:    opts.Prober,
		cfg:       opts.Config,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		lockTTL:   ttl,
		logger:    logger.With("component", "export_service"),
	}, nil
}

// SubmitExportRequest is a user's export submission.
type SubmitExportRequest struct {
	Format   string
	Filter   string
	Sort     string
	Search   string
	GroupBys string
	Email    string
	Columns  []string
	Truncate bool
	IsAsync  bool
}

// SubmitExportResult is the outcome of Submit.
type SubmitExportResult struct {
	Export *model.Export
	// Reused is set when a recent identical export was returned instead of a new one.
	Reused bool
	// Body and ContentType hold the artifact of a synchronous export.
	Body        []byte
	ContentType string
}

// QueryParams are the works API parameters an export is built from.
type QueryParams struct {
	Filter   string
	Sort     string
	Search   string
	GroupBys string
}

// BuildQueryURL builds <base>/works with the non-empty params in a fixed
// order so identical submissions produce identical URLs.
func BuildQueryURL(baseURL string, p QueryParams) string {
	queryURL := strings.TrimRight(baseURL, "/") + "/works"
	pairs := []struct{ key, value string }{
		{"filter", p.Filter},
		{"sort", p.Sort},
		{"search", p.Search},
		{"group_bys", p.GroupBys},
	}
	parts := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		if kv.value != "" {
			parts = append(parts, kv.key+"="+url.QueryEscape(kv.value))
		}
	}
	if len(parts) == 0 {
		return queryURL
	}
	return queryURL + "?" + strings.Join(parts, "&")
}

// Submit validates a submission and returns either a recent identical export
// or a newly created one. Synchronous submissions run inline and carry the
// artifact in the result.
func (s *ExportService) Submit(ctx context.Context, req SubmitExportRequest) (*SubmitExportResult, error) {
	format, err := s.parseFormat(req.Format)
	if err != nil {
		return nil, err
	}

	var email string
	if raw := strings.TrimSpace(req.Email); raw != "" {
		if email, err = model.ValidateEmail(raw); err != nil {
			return nil, apperrors.ValidationField("email",
				fmt.Sprintf("email argument %s doesn't look like an email address", raw))
		}
	}

	create := &model.CreateExportRequest{
		QueryURL: BuildQueryURL(s.cfg.BaseURL, QueryParams{
			Filter:   req.Filter,
			Sort:     req.Sort,
			Search:   req.Search,
			GroupBys: req.GroupBys,
		}),
		Format:  format,
		Args:    model.ExportArgs{Columns: req.Columns, Truncate: req.Truncate},
		IsAsync: req.IsAsync,
	}

	var result *SubmitExportResult
	if req.IsAsync {
		result, err = s.submitAsync(ctx, create)
	} else {
		result, err = s.submitSync(ctx, create)
	}
	if err != nil {
		return nil, err
	}

	if email != "" {
		if _, err := s.emails.Create(ctx, result.Export.ID, email); err != nil {
			return nil, fmt.Errorf("record email notification: %w", apperrors.MapDBError(err))
		}
	}
	return result, nil
}

func (s *ExportService) parseFormat(raw string) (model.ExportFormat, error) {
	if strings.TrimSpace(raw) == "" {
		return "", apperrors.ValidationField("format", `"format" argument is required`)
	}
	format, err := model.ParseExportFormat(raw)
	if err != nil || !s.processor.Supports(format) {
		return "", apperrors.Unprocessablef("supported formats are: %s", strings.Join(s.supportedFormats(), ","))
	}
	return format, nil
}

func (s *ExportService) supportedFormats() []string {
	var out []string
	for _, f := range model.SupportedFormats() {
		if s.processor.Supports(f) {
			out = append(out, string(f))
		}
	}
	return out
}

func (s *ExportService) submitAsync(ctx context.Context, req *model.CreateExportRequest) (*SubmitExportResult, error) {
	key := submissionKey(req)
	release, err := s.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := s.findRecent(ctx, req)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.DebugContext(ctx, "reusing recent export", "export_id", existing.ID)
		return &SubmitExportResult{Export: existing, Reused: true}, nil
	}

	if err := s.probe(ctx, req); err != nil {
		return nil, err
	}

	exp, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create export: %w", apperrors.MapDBError(err))
	}
	s.logger.InfoContext(ctx, "export submitted", "export_id", exp.ID, "format", exp.Format, "query_url", exp.QueryURL)
	return &SubmitExportResult{Export: exp}, nil
}

// submissionKey identifies submissions that would produce the same artifact.
func submissionKey(req *model.CreateExportRequest) string {
	return string(req.Format) + "|" + req.QueryURL + "|" + req.Args.Canonical()
}

// acquire takes the submission lock for key. When a peer holds it, acquire
// waits briefly for the peer's export to appear so the caller can reuse it.
// Lock failures never block a submission.
func (s *ExportService) acquire(ctx context.Context, key string) (func(), error) {
	noop := func() {}
	if s.lock == nil {
		return noop, nil
	}

	deadline := time.Now().Add(peerWait)
	for {
		ok, err := s.lock.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			s.logger.WarnContext(ctx, "submission lock unavailable; continuing without it", "error", err)
			return noop, nil
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				if err := s.lock.Release(releaseCtx, key); err != nil {
					s.logger.WarnContext(ctx, "release submission lock", "error", err)
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return noop, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(peerPollInterval):
		}
	}
}

func (s *ExportService) findRecent(ctx context.Context, req *model.CreateExportRequest) (*model.Export, error) {
	if s.cfg.DedupeWindow <= 0 {
		return nil, nil
	}
	exp, err := s.repo.FindRecent(ctx, core.FindRecentExportParams{
		Format:   req.Format,
		QueryURL: req.QueryURL,
		Args:     req.Args.Canonical(),
		Window:   s.cfg.DedupeWindow,
	})
	switch {
	case err == nil:
		return exp, nil
	case errors.Is(err, data.ErrExportNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find recent export: %w", apperrors.MapDBError(err))
	}
}

// probe checks the query upstream. Grouped reports are never probed because
// the works endpoint rejects the group_bys parameter.
func (s *ExportService) probe(ctx context.Context, req *model.CreateExportRequest) error {
	if s.prober == nil || !s.cfg.ProbeOnSubmit || req.Format == model.ExportFormatGroupBysCSV {
		return nil
	}
	err := s.prober.Probe(ctx, req.QueryURL)
	if err == nil {
		return nil
	}
	return s.submissionError(ctx, req.QueryURL, err)
}

func (s *ExportService) submissionError(ctx context.Context, queryURL string, err error) error {
	return relayUpstreamError(ctx, s.logger, queryURL, err)
}

// relayUpstreamError relays upstream rejections and hides everything else
// behind a generic 500.
func relayUpstreamError(ctx context.Context, logger *slog.Logger, queryURL string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var se *upstream.StatusError
	if errors.As(err, &se) {
		return apperrors.Upstream(se.StatusCode, se.ContentType, se.Body)
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	logger.WarnContext(ctx, "upstream request rejected", "query_url", queryURL, "error", err)
	return apperrors.Wrapf(err, apperrors.ErrCodeInternal,
		"There was an error submitting your request to %s.", queryURL)
}

func (s *ExportService) submitSync(ctx context.Context, req *model.CreateExportRequest) (*SubmitExportResult, error) {
	if !syncFormats[req.Format] {
		return nil, apperrors.Unprocessablef("synchronous exports support csv, ris and wos-plaintext, not %s", req.Format)
	}
	if err := s.probe(ctx, req); err != nil {
		return nil, err
	}

	exp, err := s.repo.CreateRunning(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create export: %w", apperrors.MapDBError(err))
	}

	body, contentType, err := s.processor.RunSync(ctx, exp)
	if err != nil {
		return nil, s.submissionError(ctx, req.QueryURL, err)
	}

	finished, err := s.repo.GetByID(ctx, exp.ID)
	if err != nil {
		return nil, fmt.Errorf("reload export: %w", apperrors.MapDBError(err))
	}
	return &SubmitExportResult{Export: finished, Body: body, ContentType: contentType}, nil
}

// Get returns an export by id.
func (s *ExportService) Get(ctx context.Context, id string) (*model.Export, error) {
	exp, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, data.ErrExportNotFound) {
		return nil, apperrors.NotFoundf("Export %s does not exist.", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return exp, nil
}

// DownloadURL returns a short-lived presigned link to a finished export's artifact.
func (s *ExportService) DownloadURL(ctx context.Context, id string) (string, error) {
	exp, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !exp.Format.Valid() {
		return "", apperrors.Unprocessablef("Export %s is not a supported format.", id)
	}
	switch {
	case exp.Status == model.ExportStatusFinished:
	case exp.Status.Terminal():
		return "", apperrors.Unprocessablef("Export %s failed.", id)
	default:
		return "", apperrors.Unprocessablef("Export %s is not finished.", id)
	}

	link, err := s.blobs.PresignGet(ctx, core.PresignParams{
		Key:         exp.ObjectKey(),
		Filename:    exp.DownloadFilename(),
		ContentType: s.processor.ContentType(exp.Format),
		Expiry:      s.cfg.DownloadURLExpiry,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "could not sign the download link")
	}
	return link, nil
}

// ProgressURL is where clients poll an export.
func (s *ExportService) ProgressURL(id string) string {
	return ProgressURL(s.baseURL, id)
}

// Stats counts exports per status.
func (s *ExportService) Stats(ctx context.Context) (*model.ExportStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return stats, nil
}
