package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Wuchinator/watchtime/internal/telemetry"
	"github.com/Wuchinator/watchtime/pkg/logger"
)

// Result is the outcome of a committed sync.
type Result struct {
	SyncedCounts telemetry.Counts
	LastSyncTime time.Time
	Errors       []string
}

// Response converts r into the wire shape.
func (r *Result) Response() SyncResponse {
	counts := make(map[string]int, len(r.SyncedCounts))
	for entity, n := range r.SyncedCounts {
		counts[entity.String()] = n
	}
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return SyncResponse{
		Success:      true,
		SyncedCounts: counts,
		LastSyncTime: r.LastSyncTime.UnixMilli(),
		Errors:       errs,
	}
}

type Service struct {
	store    telemetry.Store
	notifier Notifier
	metrics  *Metrics
	clock    quartz.Clock
	limits   Limits
	logger   *zap.Logger
}

type ServiceOption func(*Service)

func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithClock(c quartz.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

func WithLimits(l Limits) ServiceOption {
	return func(s *Service) { s.limits = l }
}

func NewService(store telemetry.Store, log *zap.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		notifier: NoopNotifier(),
		clock:    quartz.NewReal(),
		limits:   DefaultLimits(),
		logger:   log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the limits requests are checked against.
func (s *Service) Limits() Limits {
	return s.limits
}

// Sync validates req, reconciles it in one transaction and returns the
// processed counts. Rejections are *LimitError or *ValidationError; any
// store failure rolls back the whole batch and wraps ErrSyncFailed.
func (s *Service) Sync(ctx context.Context, userID uuid.UUID, req *SyncRequest) (*Result, error) {
	start := s.clock.Now()
	log := s.logger.With(logger.UserID(userID))

	if err := Validate(req, s.limits); err != nil {
		s.metrics.observe(OutcomeRejected, s.clock.Since(start))
		log.Info("sync rejected", zap.Error(err))
		return nil, err
	}

	batch, err := Normalize(req, userID)
	if err != nil {
		s.metrics.observe(OutcomeRejected, s.clock.Since(start))
		log.Info("sync rejected", zap.Error(err))
		return nil, err
	}

	counts := telemetry.NewCounts()
	softErrs := append([]string{}, batch.Errors...)

	err = s.store.InTx(ctx, func(tx telemetry.Tx) error {
		for _, r := range dispatchTable {
			n, soft, err := r.apply(ctx, tx, batch)
			if err != nil {
				return fmt.Errorf("%s (%s): %w", r.entity, r.policy, err)
			}
			counts[r.entity] = n
			softErrs = append(softErrs, soft...)
		}
		return nil
	})
	if err != nil {
		s.metrics.observe(OutcomeFailed, s.clock.Since(start))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Warn("sync aborted", zap.Error(err))
		} else {
			log.Error("sync failed, batch rolled back", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}

	result := &Result{
		SyncedCounts: counts,
		LastSyncTime: s.clock.Now().UTC(),
		Errors:       softErrs,
	}
	s.metrics.observe(OutcomeSuccess, s.clock.Since(start))
	s.metrics.observeResult(result)

	if err := s.notifier.SyncCompleted(ctx, telemetry.SyncCompleted{
		UserID:       userID,
		SyncedCounts: counts,
		ErrorCount:   len(softErrs),
		LastSyncTime: result.LastSyncTime,
	}); err != nil {
		log.Warn("failed to publish sync completion", zap.Error(err))
	}

	log.Info("sync completed",
		zap.Int("items", counts.Total()),
		zap.Int("soft_errors", len(softErrs)),
	)
	return result, nil
}
