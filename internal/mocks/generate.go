// Package mocks provides mock implementations for testing the export pipeline.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockRepo := mocks.NewMockExportRepository(ctrl)
//	mockRepo.EXPECT().ClaimNext(gomock.Any()).Return(export, nil)
package mocks

// Generate mock for ExportRepository interface from internal/core package.
// This creates MockExportRepository with methods for all ExportRepository interface methods:
// Create, CreateRunning, GetByID, FindRecent, ClaimNext, WaitForNotification, UpdateProgress, Finish, Fail, Stats
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=export_repository_mock.go github.com/ourresearch/openalex-formatter/internal/core ExportRepository

// Generate mock for ExportEmailRepository interface from internal/core package.
// This creates MockExportEmailRepository with methods for all ExportEmailRepository interface methods:
// Create, ClaimNext, MarkSent
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=export_email_repository_mock.go github.com/ourresearch/openalex-formatter/internal/core ExportEmailRepository

// Generate mock for BlobStore interface from internal/core package.
// This creates MockBlobStore with methods for all BlobStore interface methods:
// Put, List, PresignGet
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=blob_store_mock.go github.com/ourresearch/openalex-formatter/internal/core BlobStore

// Generate mock for Mailer interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=mailer_mock.go github.com/ourresearch/openalex-formatter/internal/core Mailer

// Generate mock for SubmissionLock interface from internal/core package.
// This creates MockSubmissionLock with methods for all SubmissionLock interface methods:
// Acquire, Release
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=submission_lock_mock.go github.com/ourresearch/openalex-formatter/internal/core SubmissionLock
