// Package transport defines how the activity topic is reached on each broker.
// Each implementation lives in its own sub-package and registers a Builder
// with the registry under the PUBSUB_SYSTEM name it serves.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

var (
	ErrGroupRequired       = errors.New("activityflow: consumer group is required")
	ErrNoSubscriberFactory = errors.New("activityflow: transport cannot build group subscribers")
)

// SubscriberFactory builds a subscriber that joins one consumer group.
type SubscriberFactory func(group string) (message.Subscriber, error)

// Transport pairs the shared publisher with a factory for group subscribers.
// Every consumer group reads the whole topic; members of one group share it.
type Transport struct {
	Publisher     message.Publisher
	NewSubscriber SubscriberFactory
}

// GroupSubscriber returns a subscriber for group.
func (t Transport) GroupSubscriber(group string) (message.Subscriber, error) {
	if group == "" {
		return nil, ErrGroupRequired
	}
	if t.NewSubscriber == nil {
		return nil, ErrNoSubscriberFactory
	}
	return t.NewSubscriber(group)
}

// Builder is the function signature for creating a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the values transports read. It is satisfied by
// *config.Config.
type Config interface {
	GetPubSubSystem() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaClientID() string
	GetKafkaProducerRetryMax() int
	GetKafkaProducerRetryBackoff() time.Duration
	GetKafkaProducerTimeout() time.Duration
	GetNackResendSleep() time.Duration

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
