package ingest

import "errors"

var (
	// ErrSyncFailed wraps every transaction-fatal failure.
	ErrSyncFailed = errors.New("sync failed")

	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrEmptyID          = errors.New("id is empty after sanitization")
)
