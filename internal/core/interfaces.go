package core

import (
	"context"
	"io"
	"time"

	"github.com/ourresearch/openalex-formatter/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not on the data layer.

// ExportRepository defines the interface for export job persistence.
type ExportRepository interface {
	Create(ctx context.Context, req *model.CreateExportRequest) (*model.Export, error)
	CreateRunning(ctx context.Context, req *model.CreateExportRequest) (*model.Export, error)
	GetByID(ctx context.Context, id string) (*model.Export, error)
	FindRecent(ctx context.Context, params FindRecentExportParams) (*model.Export, error)
	ClaimNext(ctx context.Context) (*model.Export, error)
	WaitForNotification(ctx context.Context) error
	UpdateProgress(ctx context.Context, id string, progress float64) error
	Finish(ctx context.Context, id, resultURL string) error
	Fail(ctx context.Context, id, errMsg string) error
	Stats(ctx context.Context) (*model.ExportStats, error)
}

// FindRecentExportParams groups parameters for ExportRepository.FindRecent.
type FindRecentExportParams struct {
	Format   model.ExportFormat
	QueryURL string
	// Args is the canonical JSON of model.ExportArgs. Empty matches "{}".
	Args   string
	Window time.Duration
}

// ExportEmailRepository defines the interface for download-ready notifications.
type ExportEmailRepository interface {
	Create(ctx context.Context, exportID, address string) (*model.ExportEmail, error)
	ClaimNext(ctx context.Context) (*model.ClaimedEmail, error)
	MarkSent(ctx context.Context, id int64) (bool, error)
}

// ReaperRepository defines the interface for timing out stuck exports.
type ReaperRepository interface {
	FailStaleRunning(ctx context.Context, params FailStaleParams) (int64, error)
	FailStaleSubmitted(ctx context.Context, params FailStaleParams) (int64, error)
}

// FailStaleParams groups parameters for the reaper sweeps.
type FailStaleParams struct {
	MaxAge    time.Duration
	BatchSize int
	Reason    string
}

// SubmissionLock serializes concurrent identical submissions.
type SubmissionLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// PutObjectParams groups parameters for BlobStore.Put.
type PutObjectParams struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
}

// PresignParams groups parameters for BlobStore.PresignGet.
type PresignParams struct {
	Key         string
	Filename    string
	ContentType string
	Expiry      time.Duration
}

// BlobStore stores export artifacts.
type BlobStore interface {
	Put(ctx context.Context, params PutObjectParams) error
	PresignGet(ctx context.Context, params PresignParams) (string, error)
}

// Mail is a templated outbound email.
type Mail struct {
	To       string
	Subject  string
	Template string
	Data     map[string]any
}

// Mailer sends templated emails.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}
