package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/Wuchinator/watchtime/internal/telemetry"
)

// Notifier announces committed syncs to downstream consumers.
type Notifier interface {
	SyncCompleted(ctx context.Context, event telemetry.SyncCompleted) error
}

// MessageProducer is the subset of the Kafka producer the notifier needs.
type MessageProducer interface {
	SendMessage(ctx context.Context, key string, value any) error
}

type kafkaNotifier struct {
	producer MessageProducer
	logger   *zap.Logger
}

// NewKafkaNotifier publishes SyncCompleted keyed by user id, so one user's
// notifications stay ordered on a single partition.
func NewKafkaNotifier(producer MessageProducer, logger *zap.Logger) Notifier {
	return &kafkaNotifier{producer: producer, logger: logger}
}

func (n *kafkaNotifier) SyncCompleted(ctx context.Context, event telemetry.SyncCompleted) error {
	if err := n.producer.SendMessage(ctx, event.UserID.String(), event); err != nil {
		return err
	}
	n.logger.Debug("sync completion published",
		zap.String("user_id", event.UserID.String()),
		zap.Int("items", event.SyncedCounts.Total()),
	)
	return nil
}

type noopNotifier struct{}

// NoopNotifier is used when Kafka is disabled.
func NoopNotifier() Notifier {
	return noopNotifier{}
}

func (noopNotifier) SyncCompleted(context.Context, telemetry.SyncCompleted) error {
	return nil
}
