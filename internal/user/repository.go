package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
	"go.uber.org/zap"

	"github.com/Wuchinator/watchtime/internal/telemetry"
	"github.com/Wuchinator/watchtime/pkg/logger"
	"github.com/Wuchinator/watchtime/pkg/postgres"
)

type Repository interface {
	// GetOrCreate returns the user owning deviceID, creating it with settings
	// on first sight. Settings of an existing user are left untouched.
	GetOrCreate(ctx context.Context, deviceID string, settings pqtype.NullRawMessage) (*telemetry.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*telemetry.User, error)
	TouchLastSync(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type repository struct {
	db     *postgres.DB
	logger *zap.Logger
}

func NewRepository(db *postgres.DB, log *zap.Logger) Repository {
	return &repository{db: db, logger: log}
}

func (r *repository) GetOrCreate(ctx context.Context, deviceID string, settings pqtype.NullRawMessage) (*telemetry.User, error) {
	// The no-op update makes RETURNING yield the existing row on conflict, so
	// two first requests from one device race safely.
	query := `
		INSERT INTO users (id, device_id, settings)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_id) DO UPDATE SET device_id = EXCLUDED.device_id
		RETURNING id, device_id, created_at, settings, last_sync_at
	`

	var u telemetry.User
	if err := r.db.GetContext(ctx, &u, query, uuid.New(), deviceID, settings); err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}
	return &u, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*telemetry.User, error) {
	query := `
		SELECT id, device_id, created_at, settings, last_sync_at
		FROM users
		WHERE id = $1
	`

	var u telemetry.User
	if err := r.db.GetContext(ctx, &u, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, telemetry.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// TouchLastSync only moves last_sync_at forward.
func (r *repository) TouchLastSync(ctx context.Context, userID uuid.UUID, at time.Time) error {
	query := `
		UPDATE users
		SET last_sync_at = GREATEST(COALESCE(last_sync_at, $2), $2)
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return telemetry.ErrUserNotFound
	}
	r.logger.Debug("last sync updated", logger.UserID(userID), zap.Time("at", at))
	return nil
}
