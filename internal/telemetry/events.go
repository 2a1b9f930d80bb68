package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// SyncCompleted is published after a sync batch commits.
type SyncCompleted struct {
	UserID       uuid.UUID `json:"userId"`
	SyncedCounts Counts    `json:"syncedCounts"`
	ErrorCount   int       `json:"errorCount"`
	LastSyncTime time.Time `json:"lastSyncTime"`
}
