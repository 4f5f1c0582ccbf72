// Package kafka provides the Kafka transport. Messages are keyed by their
// partition_key metadata, so every event of one target user lands on one
// partition and is consumed in order.
package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/activityflow/internal/runtime/metadata"
	"github.com/drblury/activityflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the Kafka transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Marshaler keys records by the partition_key metadata.
func Marshaler() kafka.MarshalerUnmarshaler {
	return kafka.NewWithPartitioningMarshaler(func(topic string, msg *message.Message) (string, error) {
		return msg.Metadata.Get(metadata.KeyPartitionKey), nil
	})
}

// PublisherSaramaConfig applies the producer retry, backoff and timeout
// settings. Publishes wait for all in-sync replicas.
func PublisherSaramaConfig(cfg transport.Config) *sarama.Config {
	sc := kafka.DefaultSaramaSyncPublisherConfig()
	if id := cfg.GetKafkaClientID(); id != "" {
		sc.ClientID = id
	}
	sc.Producer.RequiredAcks = sarama.WaitForAll
	if n := cfg.GetKafkaProducerRetryMax(); n > 0 {
		sc.Producer.Retry.Max = n
	}
	if d := cfg.GetKafkaProducerRetryBackoff(); d > 0 {
		sc.Producer.Retry.Backoff = d
	}
	if d := cfg.GetKafkaProducerTimeout(); d > 0 {
		sc.Producer.Timeout = d
	}
	return sc
}

// SubscriberSaramaConfig starts new groups at the oldest offset so no event
// published before the first deployment of a group is skipped.
func SubscriberSaramaConfig(cfg transport.Config) *sarama.Config {
	sc := kafka.DefaultSaramaSubscriberConfig()
	if id := cfg.GetKafkaClientID(); id != "" {
		sc.ClientID = id
	}
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	return sc
}

// Build creates a new Kafka transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()
	marshaler := Marshaler()

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             marshaler,
			OverwriteSaramaConfig: PublisherSaramaConfig(cfg),
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	newSubscriber := func(group string) (message.Subscriber, error) {
		return SubscriberFactory(
			kafka.SubscriberConfig{
				Brokers:               brokers,
				Unmarshaler:           marshaler,
				ConsumerGroup:         group,
				NackResendSleep:       cfg.GetNackResendSleep(),
				OverwriteSaramaConfig: SubscriberSaramaConfig(cfg),
			},
			logger,
		)
	}

	return transport.Transport{
		Publisher:     publisher,
		NewSubscriber: newSubscriber,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
