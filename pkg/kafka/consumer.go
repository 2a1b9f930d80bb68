package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// MessageHandler processes one message. A returned error is logged and the
// message is still marked, so a poison message never blocks its partition.
type MessageHandler func(ctx context.Context, key, value []byte) error

type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	topics        []string
	handler       MessageHandler
	logger        *zap.Logger
	ready         chan struct{}
	retryBackoff  time.Duration
}

type ConsumerConfig struct {
	Brokers           []string
	Topics            []string
	GroupID           string
	AutoCommit        bool
	CommitInterval    time.Duration
	SessionTimeout    time.Duration
	RebalanceStrategy string
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V3_3_0_0
	config.Consumer.Return.Errors = true

	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Offsets.AutoCommit.Enable = cfg.AutoCommit
	config.Consumer.Offsets.AutoCommit.Interval = cfg.CommitInterval

	config.Consumer.Group.Session.Timeout = cfg.SessionTimeout
	config.Consumer.Group.Heartbeat.Interval = cfg.SessionTimeout / 3

	switch cfg.RebalanceStrategy {
	case "sticky":
		config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
			sarama.NewBalanceStrategySticky(),
		}
	case "roundrobin":
		config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
			sarama.NewBalanceStrategyRoundRobin(),
		}
	default:
		config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
			sarama.NewBalanceStrategyRange(),
		}
	}

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("Kafka consumer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.Strings("topics", cfg.Topics),
		zap.String("group_id", cfg.GroupID),
	)

	return newConsumer(consumerGroup, cfg.Topics, handler, logger), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		consumerGroup: group,
		topics:        topics,
		handler:       handler,
		logger:        logger,
		ready:         make(chan struct{}),
		retryBackoff:  time.Second,
	}
}

// Start blocks consuming until ctx is cancelled or the group is closed.
// Consume returns on every rebalance, so it is called in a loop; failed
// rounds are retried after retryBackoff.
func (c *Consumer) Start(ctx context.Context) error {
	go func() {
		for err := range c.consumerGroup.Errors() {
			c.logger.Error("Consumer group error", zap.Error(err))
		}
	}()

	for {
		err := c.consumerGroup.Consume(ctx, c.topics, c)
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			c.logger.Info("Consumer group closed, stopping consumer")
			return nil
		}
		if ctx.Err() != nil {
			c.logger.Info("Context cancelled, stopping consumer")
			return nil
		}
		if err == nil {
			continue
		}

		c.logger.Error("Error from consumer", zap.Error(err), zap.Duration("retry_in", c.retryBackoff))
		select {
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping consumer")
			return nil
		case <-time.After(c.retryBackoff):
		}
	}
}

func (c *Consumer) Close() error {
	if err := c.consumerGroup.Close(); err != nil {
		c.logger.Error("Failed to close consumer group", zap.Error(err))
		return err
	}
	c.logger.Info("Kafka consumer closed")
	return nil
}

// Setup runs at the start of each session, after a rebalance.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Consumer group rebalanced")
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			c.handle(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, message *sarama.ConsumerMessage) {
	c.logger.Debug("Message received",
		zap.String("topic", message.Topic),
		zap.Int32("partition", message.Partition),
		zap.Int64("offset", message.Offset),
		zap.String("key", string(message.Key)),
	)

	if err := c.handler(ctx, message.Key, message.Value); err != nil {
		c.logger.Error("Failed to process message",
			zap.Error(err),
			zap.String("topic", message.Topic),
			zap.Int32("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
	}
}

// WaitReady is closed once the first session has been set up.
func (c *Consumer) WaitReady() <-chan struct{} {
	return c.ready
}
