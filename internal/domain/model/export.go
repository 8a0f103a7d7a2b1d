// Package model defines the core data types shared by the export pipeline.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// ExportFormat identifies the artifact an export job produces.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type ExportFormat string

// ExportStatus represents the lifecycle state of an export job.
type ExportStatus string

const (
	// ExportFormatCSV is a single flat table of works.
	ExportFormatCSV ExportFormat = "csv"
	// ExportFormatMegaCSV is the warehouse bulk-unload CSV.
	ExportFormatMegaCSV ExportFormat = "mega-csv"
	// ExportFormatWoSPlaintext is the Web of Science tagged plaintext format.
	ExportFormatWoSPlaintext ExportFormat = "wos-plaintext"
	// ExportFormatGroupBysCSV is the grouped aggregation report.
	ExportFormatGroupBysCSV ExportFormat = "group-bys-csv"
	// ExportFormatRIS is the RIS bibliographic format.
	ExportFormatRIS ExportFormat = "ris"
	// ExportFormatZip is a zip of CSV tables (works plus one per nested collection).
	ExportFormatZip ExportFormat = "zip"

	// ExportStatusSubmitted indicates the export is waiting for a worker.
	ExportStatusSubmitted ExportStatus = "submitted"
	// ExportStatusRunning indicates a worker holds the export.
	ExportStatusRunning ExportStatus = "running"
	// ExportStatusFinished indicates the artifact was published.
	ExportStatusFinished ExportStatus = "finished"
	// ExportStatusFailed indicates the export stopped without an artifact.
	ExportStatusFailed ExportStatus = "failed"
)

var formatExtensions = map[ExportFormat]string{
	ExportFormatCSV:          "csv",
	ExportFormatMegaCSV:      "csv",
	ExportFormatWoSPlaintext: "txt",
	ExportFormatGroupBysCSV:  "csv",
	ExportFormatRIS:          "ris",
	ExportFormatZip:          "zip",
}

// ErrNoExportsAvailable is returned when no submitted export can be claimed.
var ErrNoExportsAvailable = errors.New("no exports available")

// ErrUnsupportedFormat is returned for formats this deployment cannot produce.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseExportFormat normalizes and validates a user supplied format name.
func ParseExportFormat(raw string) (ExportFormat, error) {
	f := ExportFormat(strings.ToLower(strings.TrimSpace(raw)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
	return f, nil
}

// UnmarshalText implements encoding.TextUnmarshaler for env and JSON decoding.
func (f *ExportFormat) UnmarshalText(text []byte) error {
	parsed, err := ParseExportFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Valid returns true if the format is one of the known formats.
func (f ExportFormat) Valid() bool {
	_, ok := formatExtensions[f]
	return ok
}

// Extension returns the file extension used for the uploaded artifact.
func (f ExportFormat) Extension() string {
	return formatExtensions[f]
}

// SupportedFormats lists every known format in a stable order.
func SupportedFormats() []ExportFormat {
	return []ExportFormat{
		ExportFormatCSV,
		ExportFormatMegaCSV,
		ExportFormatWoSPlaintext,
		ExportFormatGroupBysCSV,
		ExportFormatRIS,
		ExportFormatZip,
	}
}

// Valid returns true if the status is valid.
func (s ExportStatus) Valid() bool {
	return s == ExportStatusSubmitted || s == ExportStatusRunning ||
		s == ExportStatusFinished || s == ExportStatusFailed
}

// Terminal reports whether no further transition is allowed.
func (s ExportStatus) Terminal() bool {
	return s == ExportStatusFinished || s == ExportStatusFailed
}

// CanTransitionTo reports whether moving from s to next follows
// submitted -> running -> finished|failed. The reaper may fail a submitted job.
func (s ExportStatus) CanTransitionTo(next ExportStatus) bool {
	switch s {
	case ExportStatusSubmitted:
		return next == ExportStatusRunning || next == ExportStatusFailed
	case ExportStatusRunning:
		return next == ExportStatusFinished || next == ExportStatusFailed
	default:
		return false
	}
}

// NewExportID returns a format-prefixed identifier such as works-csv-<shortuuid>.
func NewExportID(format ExportFormat) string {
	return fmt.Sprintf("works-%s-%s", format, shortuuid.New())
}

// ExportArgs carries per-job options that are not part of the upstream query.
type ExportArgs struct {
	Columns  []string `json:"columns,omitempty"`
	Truncate bool     `json:"truncate,omitempty"`
}

// Canonical returns the JSON form stored in the args column. Two submissions
// share an artifact only when their canonical args match.
func (a ExportArgs) Canonical() string {
	// Marshalling a struct of strings and bools cannot fail.
	b, _ := json.Marshal(a)
	return string(b)
}

// Export is a persisted export job.
type Export struct {
	ID              string          `json:"id"                   db:"id"`
	QueryURL        string          `json:"query_url"            db:"query_url"`
	Format          ExportFormat    `json:"format"               db:"format"`
	Status          ExportStatus    `json:"status"               db:"status"`
	Progress        float64         `json:"progress"             db:"progress"`
	ResultURL       *string         `json:"result_url"           db:"result_url"`
	Args            json.RawMessage `json:"args,omitempty"       db:"args"`
	IsAsync         bool            `json:"is_async"             db:"is_async"`
	LastError       *string         `json:"last_error,omitempty" db:"last_error"`
	Submitted       time.Time       `json:"submitted"            db:"submitted"`
	ProgressUpdated time.Time       `json:"progress_updated"     db:"progress_updated"`
}

// Options decodes the structured argument bag. A missing bag yields zero options.
func (e *Export) Options() (ExportArgs, error) {
	var args ExportArgs
	if len(e.Args) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(e.Args, &args); err != nil {
		return args, fmt.Errorf("decode export args: %w", err)
	}
	return args, nil
}

// ObjectKey returns the blob storage key of the export artifact.
func (e *Export) ObjectKey() string {
	return e.ID + "." + e.Format.Extension()
}

// DownloadFilename is the attachment name offered to browsers.
func (e *Export) DownloadFilename() string {
	if e.Submitted.IsZero() {
		return e.ObjectKey()
	}
	return fmt.Sprintf("works-%s.%s", e.Submitted.UTC().Format("2006-01-02T15-04-05"), e.Format.Extension())
}

// CreateExportRequest represents a request to persist a new export job.
type CreateExportRequest struct {
	QueryURL string       `json:"query_url"`
	Format   ExportFormat `json:"format"`
	Args     ExportArgs   `json:"args"`
	IsAsync  bool         `json:"is_async"`
}

// Validate validates the CreateExportRequest fields.
func (r *CreateExportRequest) Validate() error {
	if !r.Format.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, r.Format)
	}
	if strings.TrimSpace(r.QueryURL) == "" {
		return errors.New("query url is required")
	}
	return nil
}

// ExportStats counts exports per status.
type ExportStats struct {
	Submitted int `json:"submitted"`
	Running   int `json:"running"`
	Finished  int `json:"finished"`
	Failed    int `json:"failed"`
}
