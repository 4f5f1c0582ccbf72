// Package kafkabatch reads activity batches straight from a Kafka consumer
// group, committing offsets only after a whole batch is settled.
package kafkabatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/activityflow/internal/consumer"
	errspkg "github.com/drblury/activityflow/internal/runtime/errors"
	"github.com/drblury/activityflow/internal/runtime/logging"
)

// Config for a batch consumer group.
type Config struct {
	Brokers  []string
	Group    string
	Topic    string
	ClientID string
	// Sarama overrides the default consumer configuration.
	Sarama *sarama.Config
	// RetrySleep is the pause before rejoining after a failed session.
	RetrySleep time.Duration
}

// DefaultSaramaConfig starts new groups at the oldest offset and leaves
// offset commits to marked messages.
func DefaultSaramaConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.ClientID = clientID
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = true
	return cfg
}

// Consumer feeds claims of one consumer group into a consumer.Batcher.
type Consumer struct {
	cfg     Config
	batcher *consumer.Batcher
	logger  logging.ServiceLogger
	group   sarama.ConsumerGroup
}

var newConsumerGroup = sarama.NewConsumerGroup

func New(cfg Config, batcher *consumer.Batcher, logger logging.ServiceLogger) (*Consumer, error) {
	switch {
	case batcher == nil:
		return nil, errspkg.ErrHandlerRequired
	case cfg.Group == "":
		return nil, errspkg.ErrConsumerGroupRequired
	case cfg.Topic == "":
		return nil, errspkg.ErrConsumeTopicRequired
	case len(cfg.Brokers) == 0:
		return nil, errors.New("kafkabatch: at least one broker is required")
	}
	if cfg.Sarama == nil {
		cfg.Sarama = DefaultSaramaConfig(cfg.ClientID)
	}
	if cfg.RetrySleep <= 0 {
		cfg.RetrySleep = time.Second
	}
	if logger == nil {
		logger = logging.Nop()
	}

	group, err := newConsumerGroup(cfg.Brokers, cfg.Group, cfg.Sarama)
	if err != nil {
		return nil, fmt.Errorf("kafkabatch: create consumer group %s: %w", cfg.Group, err)
	}
	return &Consumer{
		cfg:     cfg,
		batcher: batcher,
		logger:  logger.With(logging.LogFields{"group": cfg.Group, "topic": cfg.Topic}),
		group:   group,
	}, nil
}

// Run joins the group and consumes until ctx is cancelled. Sessions that end
// with an error are rejoined, which replays every unmarked batch.
func (c *Consumer) Run(ctx context.Context) error {
	go c.drainErrors(ctx)
	h := &groupHandler{batcher: c.batcher, logger: c.logger}
	for {
		err := c.group.Consume(ctx, []string{c.cfg.Topic}, h)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return nil
		}
		if err != nil {
			c.logger.Error("Consumer group session ended", err, nil)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.RetrySleep):
			}
		}
	}
}

func (c *Consumer) drainErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-c.group.Errors():
			if !ok {
				return
			}
			c.logger.Error("Consumer group error", err, nil)
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	batcher *consumer.Batcher
	logger  logging.ServiceLogger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim settles one partition claim batch by batch. Offsets are marked
// only after Settle succeeds; returning an error ends the session so the
// batch is redelivered. A batch cut short by a rebalance or shutdown is left
// unmarked for the next owner of the partition.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		batch, open := h.collect(ctx, claim.Messages())
		if ctx.Err() != nil {
			return nil
		}
		if len(batch) > 0 {
			err := h.settle(ctx, sess, batch)
			if errors.Is(err, consumer.ErrBatchInterrupted) {
				return nil
			}
			if err != nil {
				return err
			}
		}
		if !open || ctx.Err() != nil {
			return nil
		}
	}
}

func (h *groupHandler) collect(ctx context.Context, msgs <-chan *sarama.ConsumerMessage) (batch []*sarama.ConsumerMessage, open bool) {
	select {
	case <-ctx.Done():
		return nil, true
	case msg, ok := <-msgs:
		if !ok {
			return nil, false
		}
		batch = append(batch, msg)
	}

	timer := time.NewTimer(h.batcher.MaxWait())
	defer timer.Stop()
	for len(batch) < h.batcher.Size() {
		select {
		case <-ctx.Done():
			return batch, true
		case <-timer.C:
			return batch, true
		case msg, ok := <-msgs:
			if !ok {
				return batch, false
			}
			batch = append(batch, msg)
		}
	}
	return batch, true
}

func (h *groupHandler) settle(ctx context.Context, sess sarama.ConsumerGroupSession, batch []*sarama.ConsumerMessage) error {
	items := make([]consumer.Delivery, len(batch))
	for i, msg := range batch {
		items[i] = delivery(msg)
	}
	if _, err := h.batcher.Settle(ctx, items); err != nil {
		return err
	}
	for _, msg := range batch {
		sess.MarkMessage(msg, "")
	}
	return nil
}

func delivery(msg *sarama.ConsumerMessage) consumer.Delivery {
	md := make(message.Metadata, len(msg.Headers))
	for _, h := range msg.Headers {
		if h == nil {
			continue
		}
		md.Set(string(h.Key), string(h.Value))
	}
	return consumer.Delivery{
		Payload:  msg.Value,
		Metadata: md,
		Position: consumer.Position{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Known:     true,
		},
	}
}
