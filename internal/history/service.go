package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
	"go.uber.org/zap"

	"github.com/Wuchinator/watchtime/internal/telemetry"
	"github.com/Wuchinator/watchtime/pkg/logger"
)

// UserTouch is the slice of the user repository the worker needs.
type UserTouch interface {
	TouchLastSync(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type Service struct {
	repo   Repository
	users  UserTouch
	logger *zap.Logger
}

func NewService(repo Repository, users UserTouch, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		users:  users,
		logger: logger,
	}
}

// Record stores one committed sync and advances the user's last sync time.
func (s *Service) Record(ctx context.Context, event telemetry.SyncCompleted) error {
	counts, err := json.Marshal(event.SyncedCounts)
	if err != nil {
		return fmt.Errorf("failed to encode synced counts: %w", err)
	}

	h := &telemetry.SyncHistory{
		UserID:       event.UserID,
		SyncedAt:     event.LastSyncTime,
		SyncedCounts: pqtype.NullRawMessage{RawMessage: counts, Valid: true},
		ErrorCount:   event.ErrorCount,
	}
	if err := s.repo.InsertSyncHistory(ctx, h); err != nil {
		return fmt.Errorf("failed to record sync: %w", err)
	}
	if err := s.users.TouchLastSync(ctx, event.UserID, event.LastSyncTime); err != nil {
		return fmt.Errorf("failed to touch last sync: %w", err)
	}

	s.logger.Debug("sync recorded",
		logger.UserID(event.UserID),
		zap.Int64("history_id", h.ID),
		zap.Int("items", event.SyncedCounts.Total()),
		zap.Int("errors", event.ErrorCount),
	)
	return nil
}

// HandleMessage is the Kafka consumer entry point. Undecodable messages and
// messages for unknown users are logged and dropped.
func (s *Service) HandleMessage(ctx context.Context, key, value []byte) error {
	var event telemetry.SyncCompleted
	if err := json.Unmarshal(value, &event); err != nil {
		s.logger.Warn("dropping malformed sync message",
			zap.ByteString("key", key),
			zap.Error(err),
		)
		return nil
	}
	if event.UserID == uuid.Nil || event.LastSyncTime.IsZero() {
		s.logger.Warn("dropping incomplete sync message", zap.ByteString("key", key))
		return nil
	}

	err := s.Record(ctx, event)
	if errors.Is(err, telemetry.ErrUserNotFound) {
		s.logger.Warn("dropping sync message for unknown user", logger.UserID(event.UserID))
		return nil
	}
	return err
}
