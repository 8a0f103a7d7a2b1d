// Package httpx is the HTTP surface of the export service.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
)

// APIVersion is reported by the root endpoint.
const APIVersion = "0.0.1"

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Exports ExportService // Required
	// Optional: single-work citations served at /works/{id}.{format}
	Works WorkService
	// Optional: Prometheus scrape handler mounted at /metrics
	Metrics http.Handler
	// Optional: dependency probes served at /readyz
	Readiness []ReadinessCheck
	Logger    *slog.Logger
}

// NewRouter creates the API router wrapped in the standard middleware chain.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	exports := &ExportHandlers{Svc: services.Exports, Logger: logger}

	mux.HandleFunc("GET /{$}", rootHandler)
	mux.HandleFunc("POST /{$}", rootHandler)
	mux.HandleFunc("GET /works", exports.Submit)
	mux.HandleFunc("GET /works/{$}", exports.Submit)
	mux.HandleFunc("GET /export/{id}", exports.Get)
	mux.HandleFunc("GET /export/{id}/download", exports.Download)
	if services.Works != nil {
		works := &WorkHandlers{Svc: services.Works, Logger: logger}
		mux.HandleFunc("GET /works/{file}", works.Format)
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	if len(services.Readiness) > 0 {
		mux.Handle("GET /readyz", readinessHandler(services.Readiness))
	}
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}
	mux.HandleFunc("/", notFoundHandler)

	return Chain(mux,
		RequestID(),
		Logging(logger),
		Recover(logger),
		CORS(),
		NoCache(),
	)
}

func rootHandler(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": APIVersion,
		"msg":     "Don't panic",
	})
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, ErrorParams{Code: http.StatusNotFound, Err: errors.New("not found")})
}
