package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/ourresearch/openalex-formatter/internal/errors"
)

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code int
	Err  error
}

// WriteError writes the error envelope clients already parse:
// {"HTTP_status_code": 404, "error": true, "message": "..."} with sorted keys
// and four-space indentation.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	msg := http.StatusText(p.Code)
	if p.Err != nil {
		msg = p.Err.Error()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	// map keys marshal in sorted order
	if err := enc.Encode(map[string]any{
		"HTTP_status_code": p.Code,
		"error":            true,
		"message":          msg,
	}); err != nil {
		http.Error(w, msg, p.Code)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(p.Code)
	_, _ = buf.WriteTo(w)
}

// writeServiceError maps a service error to a response. Relayed upstream
// responses are written verbatim; other application errors use their own
// status and message; anything else is a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		if errors.Is(err, context.Canceled) {
			logger.DebugContext(r.Context(), "request canceled", "path", r.URL.Path)
			return
		}
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError})
		return
	}

	status := appErr.HTTPStatus()
	if len(appErr.Body) > 0 {
		if appErr.ContentType != "" {
			w.Header().Set("Content-Type", appErr.ContentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write(appErr.Body)
		return
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "code", appErr.Code, "error", err)
	}
	WriteError(w, ErrorParams{Code: status, Err: errors.New(appErr.Message)})
}
