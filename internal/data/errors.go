package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Export repository sentinels.
	ErrExportNotFound   = errors.New("export not found")
	ErrExportNotRunning = errors.New("export is not running")
	ErrExportIDRequired = errors.New("export id is required")

	// Export email repository sentinels.
	ErrEmailAddressRequired = errors.New("requester email is required")

	// Submission lock sentinels.
	ErrLockKeyRequired = errors.New("lock key cannot be empty")
)
