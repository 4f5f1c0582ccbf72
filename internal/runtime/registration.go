package runtime

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/activityflow/internal/consumer"
	"github.com/drblury/activityflow/internal/consumer/kafkabatch"
	errspkg "github.com/drblury/activityflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/activityflow/internal/runtime/logging"
	"github.com/drblury/activityflow/internal/store"
)

// Consumer modes reported by ConsumerInfo.
const (
	ModeStream = "stream"
	ModeBatch  = "batch"
)

// ConsumerInfo describes a registered consumer.
type ConsumerInfo struct {
	Name  string `json:"name"`
	Group string `json:"group"`
	Topic string `json:"topic"`
	Mode  string `json:"mode"`
}

// ConsumerRegistration wires a processor to a consumer group.
type ConsumerRegistration struct {
	// Name identifies the consumer in logs and metrics. Defaults to the
	// processor name.
	Name string
	// Group is the logical consumer group. The broker-level name gets the
	// configured prefix.
	Group     string
	Processor consumer.Processor
	// Topic defaults to the configured activity topic.
	Topic string
	// Batch settles messages in batches of BatchSize instead of one at a time.
	Batch bool
	// Subscriber overrides the transport's group subscriber.
	Subscriber message.Subscriber
}

type batchSource interface {
	Run(ctx context.Context) error
	Close() error
}

type batchConsumer struct {
	info   ConsumerInfo
	source batchSource
}

var newKafkaBatchSource = func(cfg kafkabatch.Config, b *consumer.Batcher, log loggingpkg.ServiceLogger) (batchSource, error) {
	c, err := kafkabatch.New(cfg, b, log)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RegisterConsumer attaches a consumer group to the service.
func RegisterConsumer(svc *Service, cfg ConsumerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	return svc.registerConsumer(cfg)
}

// RegisterAuditConsumer registers the audit consumer group, in batch mode
// when batch is true.
func RegisterAuditConsumer(svc *Service, audit store.AuditStore, batch bool) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	p, err := consumer.AuditProcessor(audit)
	if err != nil {
		return err
	}
	return svc.registerConsumer(ConsumerRegistration{
		Group:     svc.Conf.AuditConsumerGroup,
		Processor: p,
		Batch:     batch,
	})
}

// RegisterNotificationConsumer registers the notification consumer group.
// dispatcher may be nil, in which case records are persisted but not pushed.
func RegisterNotificationConsumer(svc *Service, notifications store.NotificationStore, feed store.FriendActivityStore, dispatcher store.Dispatcher) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	p, err := consumer.NotificationProcessor(notifications, feed, dispatcher)
	if err != nil {
		return err
	}
	return svc.registerConsumer(ConsumerRegistration{
		Group:     svc.Conf.NotificationConsumerGroup,
		Processor: p,
	})
}

func (s *Service) registerConsumer(cfg ConsumerRegistration) error {
	if cfg.Processor == nil {
		return errspkg.ErrHandlerRequired
	}
	if cfg.Group == "" {
		return errspkg.ErrConsumerGroupRequired
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Processor.Name()
	}
	if cfg.Name == "" {
		return errspkg.ErrHandlerNameRequired
	}
	if cfg.Topic == "" {
		cfg.Topic = s.Conf.ActivityTopic
	}

	info := ConsumerInfo{
		Name:  cfg.Name,
		Group: s.Conf.ConsumerGroupName(cfg.Group),
		Topic: cfg.Topic,
		Mode:  ModeStream,
	}
	if cfg.Batch {
		info.Mode = ModeBatch
	}

	s.consumersMu.Lock()
	defer s.consumersMu.Unlock()
	for _, existing := range s.consumers {
		if existing.Name == info.Name {
			return fmt.Errorf("%w: %s", errspkg.ErrDuplicateConsumer, info.Name)
		}
	}

	h, err := consumer.NewHandler(cfg.Processor, consumer.HandlerOptions{
		Topic:               cfg.Topic,
		Logger:              s.Logger,
		Metrics:             s.Metrics,
		PoisonParseFailures: s.Conf.PoisonQueue != "" && !cfg.Batch,
	})
	if err != nil {
		return err
	}

	if cfg.Batch {
		source, err := s.newBatchSource(info, h, cfg.Subscriber)
		if err != nil {
			return err
		}
		s.batches = append(s.batches, batchConsumer{info: info, source: source})
	} else {
		sub := cfg.Subscriber
		if sub == nil {
			if sub, err = s.transport.GroupSubscriber(info.Group); err != nil {
				return fmt.Errorf("subscriber for group %s: %w", info.Group, err)
			}
		}
		s.router.AddNoPublisherHandler(info.Name, info.Topic, sub, h.HandleMessage)
	}

	s.consumers = append(s.consumers, info)
	s.Logger.Info("Registered consumer", loggingpkg.LogFields{
		"consumer": info.Name,
		"group":    info.Group,
		"topic":    info.Topic,
		"mode":     info.Mode,
	})
	return nil
}

// newBatchSource reads batches straight from a Kafka consumer group when
// Kafka is the transport, so offsets are committed per settled batch. Other
// transports feed the batcher from their group subscriber.
func (s *Service) newBatchSource(info ConsumerInfo, h *consumer.Handler, sub message.Subscriber) (batchSource, error) {
	opts := consumer.BatchOptions{
		Size:    s.Conf.BatchSize,
		MaxWait: s.Conf.BatchMaxWait,
		Logger:  s.Logger,
		Metrics: s.Metrics,
	}
	if s.Conf.PoisonQueue != "" {
		opts.FailedPublisher = s.publisher
		opts.FailedTopic = s.Conf.PoisonQueue
	}
	b, err := consumer.NewBatcher(h, opts)
	if err != nil {
		return nil, err
	}

	if sub == nil && s.Conf.PubSubSystem == "kafka" {
		return newKafkaBatchSource(kafkabatch.Config{
			Brokers:    s.Conf.KafkaBrokers,
			Group:      info.Group,
			Topic:      info.Topic,
			ClientID:   s.Conf.KafkaClientID,
			RetrySleep: s.Conf.NackResendSleep,
		}, b, s.Logger)
	}

	if sub == nil {
		if sub, err = s.transport.GroupSubscriber(info.Group); err != nil {
			return nil, fmt.Errorf("subscriber for group %s: %w", info.Group, err)
		}
	}
	return consumer.NewSubscriberBatches(b, sub, info.Topic)
}

// Consumers lists the registered consumers in registration order.
func (s *Service) Consumers() []ConsumerInfo {
	s.consumersMu.RLock()
	defer s.consumersMu.RUnlock()
	return append([]ConsumerInfo(nil), s.consumers...)
}
