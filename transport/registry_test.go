package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock config for testing
type mockConfig struct {
	pubSubSystem string
}

func (m *mockConfig) GetPubSubSystem() string                     { return m.pubSubSystem }
func (m *mockConfig) GetKafkaBrokers() []string                   { return nil }
func (m *mockConfig) GetKafkaClientID() string                    { return "" }
func (m *mockConfig) GetKafkaProducerRetryMax() int               { return 0 }
func (m *mockConfig) GetKafkaProducerRetryBackoff() time.Duration { return 0 }
func (m *mockConfig) GetKafkaProducerTimeout() time.Duration      { return 0 }
func (m *mockConfig) GetNackResendSleep() time.Duration           { return 0 }
func (m *mockConfig) GetRabbitMQURL() string                      { return "" }
func (m *mockConfig) GetNATSURL() string                          { return "" }

// Mock publisher and subscriber
type mockPublisher struct{}

func (m *mockPublisher) Publish(topic string, messages ...*message.Message) error {
	return nil
}

func (m *mockPublisher) Close() error {
	return nil
}

type mockSubscriber struct{}

func (m *mockSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (m *mockSubscriber) Close() error {
	return nil
}

func subscriberFactory(string) (message.Subscriber, error) {
	return &mockSubscriber{}, nil
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.NotNil(t, reg)
	assert.NotNil(t, reg.entries)
	assert.Empty(t, reg.Names())
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()

	builder := func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{
			Publisher:     &mockPublisher{},
			NewSubscriber: subscriberFactory,
		}, nil
	}

	reg.Register("test-transport", builder)
	assert.True(t, reg.Has("test-transport"))
	assert.Contains(t, reg.Names(), "test-transport")
}

func TestRegistry_RegisterWithCapabilities(t *testing.T) {
	reg := NewRegistry()

	builder := func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{
			Publisher:     &mockPublisher{},
			NewSubscriber: subscriberFactory,
		}, nil
	}

	caps := Capabilities{
		Name:                 "test-transport",
		SupportsPartitioning: true,
		Durable:              true,
	}

	reg.RegisterWithCapabilities("test-transport", builder, caps)

	assert.True(t, reg.Has("test-transport"))
	retrievedCaps := reg.GetCapabilities("test-transport")
	assert.Equal(t, "test-transport", retrievedCaps.Name)
	assert.True(t, retrievedCaps.SupportsPartitioning)
	assert.True(t, retrievedCaps.Durable)
}

func TestRegistry_GetCapabilities_Unknown(t *testing.T) {
	reg := NewRegistry()
	caps := reg.GetCapabilities("unknown")
	assert.Equal(t, "unknown", caps.Name)
	assert.False(t, caps.SupportsPartitioning)
	assert.False(t, caps.Durable)
}

func TestRegistry_Build(t *testing.T) {
	reg := NewRegistry()

	builder := func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{
			Publisher:     &mockPublisher{},
			NewSubscriber: subscriberFactory,
		}, nil
	}

	reg.Register("test-transport", builder)

	cfg := &mockConfig{pubSubSystem: "test-transport"}
	ctx := context.Background()

	transport, err := reg.Build(ctx, cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, transport.Publisher)
	sub, err := transport.GroupSubscriber("audit")
	require.NoError(t, err)
	assert.NotNil(t, sub)
}

func TestRegistry_Build_NilConfig(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	_, err := reg.Build(ctx, nil, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")
}

func TestRegistry_Build_UnknownTransport(t *testing.T) {
	reg := NewRegistry()
	cfg := &mockConfig{pubSubSystem: "unknown-transport"}
	ctx := context.Background()

	reg.Register("kafka", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, nil
	})

	_, err := reg.Build(ctx, cfg, nil)
	assert.ErrorIs(t, err, ErrUnknownTransport)
	assert.Contains(t, err.Error(), "unknown transport")
	assert.Contains(t, err.Error(), "[kafka]")
}

type closeRecordingPublisher struct {
	mockPublisher
	closed bool
}

func (p *closeRecordingPublisher) Close() error {
	p.closed = true
	return nil
}

func TestRegistry_Build_IncompleteTransport(t *testing.T) {
	reg := NewRegistry()
	pub := &closeRecordingPublisher{}
	reg.Register("publish-only", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{Publisher: pub}, nil
	})
	reg.Register("subscribe-only", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{NewSubscriber: subscriberFactory}, nil
	})

	_, err := reg.Build(context.Background(), &mockConfig{pubSubSystem: "publish-only"}, nil)
	assert.ErrorIs(t, err, ErrIncompleteTransport)
	assert.True(t, pub.closed, "publisher of a rejected transport must be closed")

	_, err = reg.Build(context.Background(), &mockConfig{pubSubSystem: "subscribe-only"}, nil)
	assert.ErrorIs(t, err, ErrIncompleteTransport)
}

func TestRegistry_RegisterRejectsProgrammingErrors(t *testing.T) {
	reg := NewRegistry()
	builder := func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) { return Transport{}, nil }

	assert.Panics(t, func() { reg.Register("", builder) })
	assert.Panics(t, func() { reg.Register("kafka", nil) })
	assert.Panics(t, func() { reg.RegisterWithCapabilities("", builder, Capabilities{}) })
	assert.Empty(t, reg.Names())
}

func TestRegistry_RegisterKeepsCapabilities(t *testing.T) {
	reg := NewRegistry()
	first := func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, errors.New("first")
	}
	second := func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, errors.New("second")
	}

	reg.RegisterWithCapabilities("kafka", first, Capabilities{SupportsPartitioning: true})
	reg.Register("kafka", second)

	caps := reg.GetCapabilities("kafka")
	assert.Equal(t, "kafka", caps.Name)
	assert.True(t, caps.SupportsPartitioning)

	_, err := reg.Build(context.Background(), &mockConfig{pubSubSystem: "kafka"}, nil)
	assert.ErrorContains(t, err, "second")
}

func TestRegistry_Build_BuilderError(t *testing.T) {
	reg := NewRegistry()

	expectedErr := errors.New("builder error")
	builder := func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, expectedErr
	}

	reg.Register("failing-transport", builder)
	cfg := &mockConfig{pubSubSystem: "failing-transport"}
	ctx := context.Background()

	_, err := reg.Build(ctx, cfg, nil)
	assert.ErrorIs(t, err, expectedErr)
	assert.Contains(t, err.Error(), "build failing-transport transport")
}

func TestRegistry_Has(t *testing.T) {
	reg := NewRegistry()

	builder := func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, nil
	}

	assert.False(t, reg.Has("test-transport"))

	reg.Register("test-transport", builder)
	assert.True(t, reg.Has("test-transport"))
	assert.False(t, reg.Has("other-transport"))
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()

	builder := func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, nil
	}

	assert.Empty(t, reg.Names())

	reg.Register("transport2", builder)
	reg.Register("transport1", builder)
	reg.Register("transport3", builder)

	assert.Equal(t, []string{"transport1", "transport2", "transport3"}, reg.Names())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	builder := func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{
			Publisher:     &mockPublisher{},
			NewSubscriber: subscriberFactory,
		}, nil
	}

	// Register multiple transports concurrently
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(idx int) {
			for j := 0; j < 100; j++ {
				reg.Register("transport", builder)
				reg.Has("transport")
				reg.Names()
				reg.GetCapabilities("transport")
			}
			done <- true
		}(i)
	}

	// Wait for all goroutines to complete
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.True(t, reg.Has("transport"))
}

func TestGlobalRegistry(t *testing.T) {
	// Test that DefaultRegistry exists
	assert.NotNil(t, DefaultRegistry)

	// Note: We can't test the global Register functions without
	// potentially affecting other tests, since they share the
	// global DefaultRegistry
}

func TestBuildWithDefaultRegistry(t *testing.T) {
	// This tests the package-level Build function
	// We create a new test registry to avoid affecting global state

	cfg := &mockConfig{pubSubSystem: "nonexistent"}
	ctx := context.Background()

	// Should fail with unknown transport
	_, err := Build(ctx, cfg, nil)
	assert.ErrorIs(t, err, ErrUnknownTransport)
}

func TestPackageLevelRegister(t *testing.T) {
	// Test the package-level Register function
	builder := func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{
			Publisher:     &mockPublisher{},
			NewSubscriber: subscriberFactory,
		}, nil
	}

	// Register a transport
	Register("test-pkg-transport", builder)

	// Verify it was registered in the default registry
	assert.True(t, DefaultRegistry.Has("test-pkg-transport"))
}

func TestPackageLevelRegisterWithCapabilities(t *testing.T) {
	// Test the package-level RegisterWithCapabilities function
	builder := func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{
			Publisher:     &mockPublisher{},
			NewSubscriber: subscriberFactory,
		}, nil
	}

	caps := Capabilities{
		Name:        "test-pkg-caps-transport",
		SupportsAck: true,
	}

	// Register a transport with capabilities
	RegisterWithCapabilities("test-pkg-caps-transport", builder, caps)

	// Verify it was registered
	assert.True(t, DefaultRegistry.Has("test-pkg-caps-transport"))
	retrievedCaps := DefaultRegistry.GetCapabilities("test-pkg-caps-transport")
	assert.Equal(t, "test-pkg-caps-transport", retrievedCaps.Name)
	assert.True(t, retrievedCaps.SupportsAck)
}
