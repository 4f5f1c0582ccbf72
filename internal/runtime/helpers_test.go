package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/activityflow/internal/activity"
	"github.com/drblury/activityflow/internal/consumer"
	"github.com/drblury/activityflow/internal/consumer/kafkabatch"
	configpkg "github.com/drblury/activityflow/internal/runtime/config"
	loggingpkg "github.com/drblury/activityflow/internal/runtime/logging"
	"github.com/drblury/activityflow/transport"
	channeltransport "github.com/drblury/activityflow/transport/channel"
)

type testPublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for range messages {
		p.published = append(p.published, topic)
	}
	return nil
}

func (p *testPublisher) Close() error { return nil }

func (p *testPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]string, len(p.published))
	copy(clone, p.published)
	return clone
}

type fakeBatchSource struct {
	runErr error
	mu     sync.Mutex
	closed bool
}

func (f *fakeBatchSource) Run(ctx context.Context) error {
	if f.runErr != nil {
		return f.runErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeBatchSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type kafkaBatchCall struct {
	cfg     kafkabatch.Config
	batcher *consumer.Batcher
}

func recordKafkaBatch(call *kafkaBatchCall, source batchSource) func(kafkabatch.Config, *consumer.Batcher, loggingpkg.ServiceLogger) (batchSource, error) {
	return func(cfg kafkabatch.Config, b *consumer.Batcher, _ loggingpkg.ServiceLogger) (batchSource, error) {
		call.cfg, call.batcher = cfg, b
		return source, nil
	}
}

type capturingLogger struct {
	mu   sync.Mutex
	msgs []capturedLog
}

type capturedLog struct {
	msg    string
	fields loggingpkg.LogFields
}

func (c *capturingLogger) record(msg string, fields loggingpkg.LogFields) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, capturedLog{msg: msg, fields: fields})
}

func (c *capturingLogger) With(loggingpkg.LogFields) loggingpkg.ServiceLogger { return c }
func (c *capturingLogger) Debug(string, loggingpkg.LogFields)                 {}
func (c *capturingLogger) Info(msg string, fields loggingpkg.LogFields)       { c.record(msg, fields) }
func (c *capturingLogger) Error(msg string, _ error, fields loggingpkg.LogFields) {
	c.record(msg, fields)
}
func (c *capturingLogger) Trace(string, loggingpkg.LogFields) {}

func (c *capturingLogger) messages(msg string) []capturedLog {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []capturedLog
	for _, l := range c.msgs {
		if l.msg == msg {
			out = append(out, l)
		}
	}
	return out
}

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func testConfig() *configpkg.Config {
	return &configpkg.Config{
		PubSubSystem:              "channel",
		ActivityTopic:             "activity-events",
		AuditConsumerGroup:        "audit",
		NotificationConsumerGroup: "notification",
		ServiceName:               "expense-service",
		ServiceVersion:            "1.4.0",
		Environment:               "test",
		BatchSize:                 10,
		BatchMaxWait:              20 * time.Millisecond,
	}
}

func channelRegistry() *transport.Registry {
	r := transport.NewRegistry()
	r.RegisterWithCapabilities(channeltransport.TransportName, channeltransport.Build, channeltransport.Capabilities())
	return r
}

func testDeps() ServiceDependencies {
	return ServiceDependencies{
		TransportRegistry: channelRegistry(),
		MetricsRegisterer: prometheus.NewRegistry(),
	}
}

func newTestService(t *testing.T, cfg *configpkg.Config) *Service {
	t.Helper()
	svc, err := TryNewService(cfg, newTestLogger(), context.Background(), testDeps())
	if err != nil {
		t.Fatalf("service init failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

// startService runs svc until the test ends and waits for its router when
// stream consumers are registered.
func startService(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("service did not stop")
		}
	})

	for _, c := range svc.Consumers() {
		if c.Mode == ModeStream {
			select {
			case <-svc.router.Running():
			case <-time.After(5 * time.Second):
				t.Fatal("router did not start")
			}
			break
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func expenseCreated(actor, target int64) *activity.Envelope {
	return activity.New(activity.EntityExpense, activity.ActionCreate).
		Target(target).
		Actor(actor, "maria").
		Entity(42, "Groceries").
		RequiresNotification(true).
		Build()
}
