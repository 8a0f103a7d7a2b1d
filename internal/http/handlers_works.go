package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ourresearch/openalex-formatter/internal/service"
)

// WorkService renders single works.
type WorkService interface {
	Format(ctx context.Context, workID, format string) (*service.FormattedWork, error)
}

// WorkHandlers serves single-work citations.
type WorkHandlers struct {
	Svc    WorkService
	Logger *slog.Logger
}

// Format handles GET /works/{id}.{format}, e.g. /works/W2741809807.bib.
func (h *WorkHandlers) Format(w http.ResponseWriter, r *http.Request) {
	id, format := splitWorkFile(r.PathValue("file"))
	out, err := h.Svc.Format(r.Context(), id, format)
	if err != nil {
		logger := h.Logger
		if logger == nil {
			logger = slog.Default()
		}
		writeServiceError(w, r, logger, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Body)
}

// splitWorkFile splits "W1.bib" at the last dot. A name without one has no format.
func splitWorkFile(file string) (id, format string) {
	i := strings.LastIndex(file, ".")
	if i < 0 {
		return file, ""
	}
	return file[:i], file[i+1:]
}
