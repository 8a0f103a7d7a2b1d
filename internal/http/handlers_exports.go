package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ourresearch/openalex-formatter/internal/domain/model"
	"github.com/ourresearch/openalex-formatter/internal/service"
)

// ExportService is the export surface the handlers depend on.
type ExportService interface {
	Submit(ctx context.Context, req service.SubmitExportRequest) (*service.SubmitExportResult, error)
	Get(ctx context.Context, id string) (*model.Export, error)
	DownloadURL(ctx context.Context, id string) (string, error)
	ProgressURL(id string) string
}

// ExportHandlers serves export submission, lookup and download.
type ExportHandlers struct {
	Svc    ExportService
	Logger *slog.Logger
}

// exportResponse is the public JSON shape of an export.
type exportResponse struct {
	ID              string             `json:"id"`
	QueryURL        string             `json:"query_url"`
	Status          model.ExportStatus `json:"status"`
	Format          model.ExportFormat `json:"format"`
	Progress        float64            `json:"progress"`
	ResultURL       *string            `json:"result_url"`
	Submitted       *time.Time         `json:"submitted"`
	ProgressUpdated *time.Time         `json:"progress_updated"`
	ProgressURL     string             `json:"progress_url"`
	LastError       *string            `json:"last_error,omitempty"`
}

func (h *ExportHandlers) view(exp *model.Export) exportResponse {
	return exportResponse{
		ID:              exp.ID,
		QueryURL:        exp.QueryURL,
		Status:          exp.Status,
		Format:          exp.Format,
		Progress:        exp.Progress,
		ResultURL:       exp.ResultURL,
		Submitted:       optionalTime(exp.Submitted),
		ProgressUpdated: optionalTime(exp.ProgressUpdated),
		ProgressURL:     h.Svc.ProgressURL(exp.ID),
		LastError:       exp.LastError,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func (h *ExportHandlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// Submit handles GET /works. Asynchronous submissions (the default) answer
// with the export JSON; is_async=false answers with the artifact itself.
func (h *ExportHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := service.SubmitExportRequest{
		Format:   strings.ToLower(strings.TrimSpace(q.Get("format"))),
		Filter:   q.Get("filter"),
		Sort:     q.Get("sort"),
		Search:   q.Get("search"),
		GroupBys: q.Get("group-bys"),
		Email:    q.Get("email"),
		Columns:  parseListQuery(r, "columns"),
		Truncate: parseBoolQuery(r, "truncate", false),
		IsAsync:  parseBoolQuery(r, "is_async", true),
	}

	res, err := h.Svc.Submit(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger(), err)
		return
	}

	if !req.IsAsync {
		w.Header().Set("Content-Type", res.ContentType)
		w.Header().Set("X-Export-Id", res.Export.ID)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Body)
		return
	}
	WriteJSON(w, http.StatusOK, h.view(res.Export))
}

// Get handles GET /export/{id}.
func (h *ExportHandlers) Get(w http.ResponseWriter, r *http.Request) {
	exp, err := h.Svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, h.view(exp))
}

// Download handles GET /export/{id}/download by redirecting to a short-lived
// presigned link.
func (h *ExportHandlers) Download(w http.ResponseWriter, r *http.Request) {
	link, err := h.Svc.DownloadURL(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger(), err)
		return
	}
	http.Redirect(w, r, link, http.StatusFound)
}
