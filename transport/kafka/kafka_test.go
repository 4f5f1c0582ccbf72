package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/activityflow/internal/runtime/metadata"
	"github.com/drblury/activityflow/transport"
)

func TestRegister(t *testing.T) {
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "kafka", caps.Name)
	assert.True(t, caps.SupportsPartitioning)
	assert.True(t, caps.SupportsConsumerGroups)
	assert.Empty(t, caps.Warnings())
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Equal(t, transport.KafkaCapabilities, caps)
	assert.Equal(t, "kafka", caps.Name)
}

func TestMarshalerKeysByPartitionKey(t *testing.T) {
	msg := message.NewMessage("e-1", []byte(`{}`))
	msg.Metadata.Set(metadata.KeyPartitionKey, "9")

	produced, err := Marshaler().Marshal("activity-events", msg)
	require.NoError(t, err)

	key, err := produced.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "9", string(key))
}

func TestSaramaConfigs(t *testing.T) {
	cfg := &mockConfig{
		clientID:     "expense-service",
		retryMax:     7,
		retryBackoff: 250 * time.Millisecond,
		timeout:      3 * time.Second,
	}

	pub := PublisherSaramaConfig(cfg)
	assert.Equal(t, "expense-service", pub.ClientID)
	assert.Equal(t, 7, pub.Producer.Retry.Max)
	assert.Equal(t, 250*time.Millisecond, pub.Producer.Retry.Backoff)
	assert.Equal(t, 3*time.Second, pub.Producer.Timeout)
	assert.Equal(t, sarama.WaitForAll, pub.Producer.RequiredAcks)
	assert.True(t, pub.Producer.Return.Successes)

	sub := SubscriberSaramaConfig(cfg)
	assert.Equal(t, "expense-service", sub.ClientID)
	assert.Equal(t, sarama.OffsetOldest, sub.Consumer.Offsets.Initial)
}

func TestPublisherSaramaConfigKeepsDefaultsForZeroValues(t *testing.T) {
	defaults := kafka.DefaultSaramaSyncPublisherConfig()
	got := PublisherSaramaConfig(&mockConfig{})
	assert.Equal(t, defaults.Producer.Retry.Max, got.Producer.Retry.Max)
	assert.Equal(t, defaults.Producer.Timeout, got.Producer.Timeout)
}

func TestBuild(t *testing.T) {
	t.Run("creates a subscriber per group", func(t *testing.T) {
		originalPubFactory := PublisherFactory
		originalSubFactory := SubscriberFactory
		defer func() {
			PublisherFactory = originalPubFactory
			SubscriberFactory = originalSubFactory
		}()

		mockPub := &mockPublisher{}
		var groups []string

		PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
			assert.NotNil(t, cfg.OverwriteSaramaConfig)
			return mockPub, nil
		}
		SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
			assert.Equal(t, 2*time.Second, cfg.NackResendSleep)
			groups = append(groups, cfg.ConsumerGroup)
			return &mockSubscriber{}, nil
		}

		cfg := &mockConfig{brokers: []string{"localhost:9092"}, nackSleep: 2 * time.Second}
		tr, err := Build(context.Background(), cfg, watermill.NopLogger{})
		require.NoError(t, err)
		assert.Equal(t, mockPub, tr.Publisher)

		_, err = tr.GroupSubscriber("audit")
		require.NoError(t, err)
		_, err = tr.GroupSubscriber("notification")
		require.NoError(t, err)
		assert.Equal(t, []string{"audit", "notification"}, groups)

		_, err = tr.GroupSubscriber("")
		assert.ErrorIs(t, err, transport.ErrGroupRequired)
	})

	t.Run("returns error when publisher factory fails", func(t *testing.T) {
		originalPubFactory := PublisherFactory
		defer func() { PublisherFactory = originalPubFactory }()

		PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		cfg := &mockConfig{brokers: []string{"localhost:9092"}}
		_, err := Build(context.Background(), cfg, watermill.NopLogger{})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "publisher error")
	})

	t.Run("returns error when subscriber factory fails", func(t *testing.T) {
		originalPubFactory := PublisherFactory
		originalSubFactory := SubscriberFactory
		defer func() {
			PublisherFactory = originalPubFactory
			SubscriberFactory = originalSubFactory
		}()

		PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			return &mockPublisher{}, nil
		}
		SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}

		cfg := &mockConfig{brokers: []string{"localhost:9092"}}
		tr, err := Build(context.Background(), cfg, watermill.NopLogger{})
		require.NoError(t, err)

		_, err = tr.GroupSubscriber("audit")
		assert.ErrorContains(t, err, "subscriber error")
	})
}

type mockConfig struct {
	brokers      []string
	clientID     string
	retryMax     int
	retryBackoff time.Duration
	timeout      time.Duration
	nackSleep    time.Duration
}

func (m *mockConfig) GetPubSubSystem() string                     { return "kafka" }
func (m *mockConfig) GetKafkaBrokers() []string                   { return m.brokers }
func (m *mockConfig) GetKafkaClientID() string                    { return m.clientID }
func (m *mockConfig) GetKafkaProducerRetryMax() int               { return m.retryMax }
func (m *mockConfig) GetKafkaProducerRetryBackoff() time.Duration { return m.retryBackoff }
func (m *mockConfig) GetKafkaProducerTimeout() time.Duration      { return m.timeout }
func (m *mockConfig) GetNackResendSleep() time.Duration           { return m.nackSleep }
func (m *mockConfig) GetRabbitMQURL() string                      { return "" }
func (m *mockConfig) GetNATSURL() string                          { return "" }

type mockPublisher struct{}

func (m *mockPublisher) Publish(topic string, messages ...*message.Message) error { return nil }
func (m *mockPublisher) Close() error                                             { return nil }

type mockSubscriber struct{}

func (m *mockSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}
func (m *mockSubscriber) Close() error { return nil }
