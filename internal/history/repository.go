package history

import (
	"context"
	"fmt"

	"github.com/Wuchinator/watchtime/internal/telemetry"
	"github.com/Wuchinator/watchtime/pkg/postgres"
)

type Repository interface {
	InsertSyncHistory(ctx context.Context, h *telemetry.SyncHistory) error
}

type repository struct {
	db *postgres.DB
}

func NewRepository(db *postgres.DB) Repository {
	return &repository{db: db}
}

func (r *repository) InsertSyncHistory(ctx context.Context, h *telemetry.SyncHistory) error {
	query := `
		INSERT INTO sync_history (user_id, synced_at, synced_counts, error_count)
		VALUES ($1, $2, $3, $4)
		RETURNING id, recorded_at
	`

	err := r.db.QueryRowxContext(ctx, query, h.UserID, h.SyncedAt, h.SyncedCounts, h.ErrorCount).
		Scan(&h.ID, &h.RecordedAt)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return telemetry.ErrUserNotFound
		}
		return fmt.Errorf("failed to insert sync history: %w", err)
	}
	return nil
}
