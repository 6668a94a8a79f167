package kafka

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/service-desk-api/pkg/logger"
	"github.com/vaidashi/service-desk-api/pkg/retry"
)

// MessageHandler is the interface for handling messages from Kafka
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// ConsumerConfig is the configuration for the Kafka consumer
type ConsumerConfig struct {
	Brokers []string
	Group   string
}

// Consumer routes the messages of a consumer group to one handler per topic.
// The topics consumed are the ones with a registered handler.
//
// Offsets are cumulative, so a failed message cannot be left behind while
// later ones commit. A failing handler is retried in place; once the
// attempts run out the message is logged as dropped and committed.
type Consumer struct {
	group  sarama.ConsumerGroup
	routes map[string]MessageHandler
	retry  retry.RetryConfig
	logger logger.Logger
}

// NewConsumerConfig starts a new group at the oldest offset and reports
// group errors on the Errors channel
func NewConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	return config
}

// NewConsumer joins cfg.Group on cfg.Brokers
func NewConsumer(cfg ConsumerConfig, logger logger.Logger) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Group, NewConsumerConfig())

	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group %s: %w", cfg.Group, err)
	}

	return NewConsumerWith(group, logger), nil
}

// NewConsumerWith wraps an existing consumer group
func NewConsumerWith(group sarama.ConsumerGroup, logger logger.Logger) *Consumer {
	return &Consumer{
		group:  group,
		routes: make(map[string]MessageHandler),
		retry: retry.RetryConfig{
			MaxAttempts: 3,
			BackoffStrategy: &retry.ExponentialBackoff{
				InitialInterval: 200 * time.Millisecond,
				MaxInterval:     5 * time.Second,
				Multiplier:      2,
			},
			Logger: logger,
		},
		logger: logger,
	}
}

// SetRetryPolicy changes how often and how patiently a failing handler is
// retried before its message is dropped. Call before Run.
func (c *Consumer) SetRetryPolicy(attempts int, backoff retry.BackoffStrategy) {
	c.retry.MaxAttempts = attempts
	c.retry.BackoffStrategy = backoff
}

// Handle routes topic to handler. Call before Run.
func (c *Consumer) Handle(topic string, handler MessageHandler) {
	c.routes[topic] = handler
}

// Topics lists the routed topics in name order
func (c *Consumer) Topics() []string {
	return slices.Sorted(maps.Keys(c.routes))
}

// Run consumes until ctx is done and then leaves the group. Consume returns
// on every rebalance, so the session is rejoined in a loop.
func (c *Consumer) Run(ctx context.Context) error {
	topics := c.Topics()
	if len(topics) == 0 {
		return errors.New("kafka: no topic handlers registered")
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for err := range c.group.Errors() {
			c.logger.Error("Kafka consumer group error", "error", err)
		}
	}()

	defer func() {
		if err := c.group.Close(); err != nil {
			c.logger.Error("Failed to leave consumer group", "error", err)
		}
		<-drained
		c.logger.Info("Kafka consumer stopped")
	}()

	c.logger.Info("Kafka consumer started", "topics", topics)

	for {
		err := c.group.Consume(ctx, topics, c)

		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return err
		}
		if err != nil {
			c.logger.Error("Kafka consume session ended", "error", err)
		}
	}
}

// Setup is part of sarama.ConsumerGroupHandler
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup is part of sarama.ConsumerGroupHandler
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim is part of sarama.ConsumerGroupHandler
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !c.dispatch(ctx, msg) {
				// nothing after msg may be marked; it is redelivered on rejoin
				return nil
			}
			session.MarkMessage(msg, "")
		case <-ctx.Done():
			return nil
		}
	}
}

// dispatch hands msg to its topic handler and reports whether the offset
// may be committed. It is false only when ctx ended before the handler
// succeeded.
func (c *Consumer) dispatch(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	log := c.logger.With("topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	log.Debug("Received message from Kafka", "key", string(msg.Key))

	handler, ok := c.routes[msg.Topic]
	if !ok {
		log.Warn("No handler registered for topic")
		return true
	}

	err := retry.Retry(ctx, func() error { return handler.HandleMessage(ctx, msg) }, &c.retry)
	if err == nil {
		return true
	}

	if ctx.Err() != nil {
		log.Warn("Message left uncommitted, consumer session ended", "error", err)
		return false
	}

	log.Error("Dropping message after failed attempts",
		"error", err,
		"key", string(msg.Key),
		"attempts", c.retry.MaxAttempts)
	return true
}
