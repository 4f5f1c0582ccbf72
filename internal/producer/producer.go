// Package producer validates, enriches and publishes activity envelopes.
package producer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/drblury/activityflow/internal/activity"
	errspkg "github.com/drblury/activityflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/activityflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/activityflow/internal/runtime/metadata"
	metricspkg "github.com/drblury/activityflow/internal/runtime/metrics"
)

const (
	defaultMaxInFlight = 256
	defaultLanes       = 16
	tracerName         = "github.com/drblury/activityflow/producer"
)

// Options configures a Producer.
type Options struct {
	Topic    string
	Identity Identity
	// Timeout bounds a single broker send. Zero relies on the broker client.
	Timeout time.Duration
	// MaxInFlight caps concurrent background sends; Publish blocks while the
	// cap is reached.
	MaxInFlight int
	// Lanes is the number of background senders. Envelopes with the same
	// partition key always use the same lane and are sent in Publish order.
	Lanes int
	// OnComplete, when set, runs on the background goroutine after every
	// asynchronous send.
	OnComplete func(Outcome)
	Logger     loggingpkg.ServiceLogger
	Metrics    *metricspkg.Pipeline
}

// Producer publishes envelopes to the activity topic. It is safe for
// concurrent use.
type Producer struct {
	publisher message.Publisher
	topic     string
	identity  Identity
	timeout   time.Duration
	onDone    func(Outcome)
	log       loggingpkg.ServiceLogger
	metrics   *metricspkg.Pipeline
	tracer    trace.Tracer

	sem   *semaphore.Weighted
	lanes []chan sendJob

	mu         sync.RWMutex
	closed     bool
	inFlight   sync.WaitGroup
	closeLanes sync.Once
}

// New returns a Producer that sends through publisher.
func New(publisher message.Publisher, opts Options) (*Producer, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if opts.Topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	lanes := opts.Lanes
	if lanes <= 0 {
		lanes = defaultLanes
	}
	log := opts.Logger
	if log == nil {
		log = loggingpkg.Nop()
	}

	p := &Producer{
		publisher: publisher,
		topic:     opts.Topic,
		identity:  opts.Identity,
		timeout:   opts.Timeout,
		onDone:    opts.OnComplete,
		log:       log.With(loggingpkg.LogFields{"component": "producer", "topic": opts.Topic}),
		metrics:   opts.Metrics,
		tracer:    otel.Tracer(tracerName),
		sem:       semaphore.NewWeighted(int64(maxInFlight)),
		lanes:     make([]chan sendJob, lanes),
	}
	for i := range p.lanes {
		p.lanes[i] = make(chan sendJob, maxInFlight)
		go p.runLane(p.lanes[i])
	}
	return p, nil
}

type sendJob struct {
	ctx     context.Context
	msg     *message.Message
	eventID string
	key     string
	future  *Future
}

func (p *Producer) runLane(jobs <-chan sendJob) {
	for job := range jobs {
		outcome := p.send(job.ctx, job.msg, job.eventID, job.key)
		p.finish(job.future, outcome)
		p.sem.Release(1)
		p.inFlight.Done()
	}
}

func (p *Producer) laneFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.lanes)))
}

// Publish validates and enriches e in place, then sends it in the background.
// Validation failures are returned directly and nothing is sent. The broker
// outcome is delivered through the returned Future; failures are logged and
// never retried here. Cancelling ctx after Publish returns does not abort the
// send.
func (p *Producer) Publish(ctx context.Context, e *activity.Envelope) (*Future, error) {
	msg, err := p.prepare(e)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrProducerClosed
	}
	p.inFlight.Add(1)
	p.mu.RUnlock()

	eventID, key := e.EventID, PartitionKey(e)
	future := newFuture(eventID)

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.inFlight.Done()
		outcome := p.failure(eventID, key, err)
		p.finish(future, outcome)
		return future, nil
	}

	p.lanes[p.laneFor(key)] <- sendJob{
		ctx:     context.WithoutCancel(ctx),
		msg:     msg,
		eventID: eventID,
		key:     key,
		future:  future,
	}
	return future, nil
}

// PublishSync is Publish but waits for the broker to confirm. It fails with
// a *PublishError when the send fails, the configured timeout elapses or ctx
// is cancelled. It does not queue behind pending asynchronous sends.
func (p *Producer) PublishSync(ctx context.Context, e *activity.Envelope) (Receipt, error) {
	msg, err := p.prepare(e)
	if err != nil {
		return Receipt{}, err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return Receipt{}, ErrProducerClosed
	}
	p.inFlight.Add(1)
	p.mu.RUnlock()
	defer p.inFlight.Done()

	outcome := p.send(ctx, msg, e.EventID, PartitionKey(e))
	return outcome.Receipt, outcome.Err
}

// Close stops accepting publishes and waits for in-flight sends until ctx is
// done. The underlying publisher is not closed.
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.inFlight.Wait()
		p.closeLanes.Do(func() {
			for _, lane := range p.lanes {
				close(lane)
			}
		})
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("activityflow: waiting for in-flight publishes: %w", ctx.Err())
	}
}

func (p *Producer) prepare(e *activity.Envelope) (*message.Message, error) {
	if err := activity.Validate(e); err != nil {
		return nil, err
	}
	Enrich(e, p.identity)

	payload, err := activity.Encode(e)
	if err != nil {
		return nil, err
	}

	md := metadatapkg.Metadata{}.
		With(metadatapkg.KeyEventID, e.EventID).
		With(metadatapkg.KeyCorrelationID, e.CorrelationID).
		With(metadatapkg.KeyPartitionKey, PartitionKey(e)).
		With(metadatapkg.KeyEntityType, string(e.EntityType)).
		With(metadatapkg.KeyAction, string(e.Action)).
		With(metadatapkg.KeySourceService, e.SourceService).
		With(metadatapkg.KeyContentType, metadatapkg.ContentTypeEnvelope)

	msg := message.NewMessage(e.EventID, payload)
	msg.Metadata = metadatapkg.ToWatermill(md)
	return msg, nil
}

func (p *Producer) send(ctx context.Context, msg *message.Message, eventID, key string) Outcome {
	ctx, span := p.tracer.Start(ctx, "activity.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", p.topic),
			attribute.String("activity.event_id", eventID),
			attribute.String("activity.partition_key", key),
		),
	)
	defer span.End()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	msg.SetContext(ctx)

	started := time.Now()
	p.metrics.PublishStarted()
	err := p.publishWithContext(ctx, msg)
	p.metrics.PublishFinished(p.topic, err, time.Since(started))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return p.failure(eventID, key, err)
	}

	return Outcome{Receipt: Receipt{
		EventID:      eventID,
		PartitionKey: key,
		Topic:        p.topic,
		PublishedAt:  time.Now().UTC(),
	}}
}

// publishWithContext returns when the publisher does or when ctx is done,
// whichever comes first. An abandoned send keeps running until the broker
// client gives up on its own.
func (p *Producer) publishWithContext(ctx context.Context, msg *message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	result := make(chan error, 1)
	go func() {
		result <- p.publisher.Publish(p.topic, msg)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Producer) failure(eventID, key string, err error) Outcome {
	pubErr := &PublishError{EventID: eventID, Err: err}
	fields := loggingpkg.LogFields{
		metadatapkg.KeyEventID:      eventID,
		metadatapkg.KeyPartitionKey: key,
	}
	if errors.Is(err, context.DeadlineExceeded) {
		fields["timeout"] = p.timeout.String()
	}
	p.log.Error("Failed to publish activity event", err, fields)
	return Outcome{
		Receipt: Receipt{EventID: eventID, PartitionKey: key, Topic: p.topic},
		Err:     pubErr,
	}
}

func (p *Producer) finish(f *Future, o Outcome) {
	f.complete(o)
	if p.onDone == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Publish completion callback panicked", fmt.Errorf("%v", r), loggingpkg.LogFields{
				metadatapkg.KeyEventID: o.EventID,
			})
		}
	}()
	p.onDone(o)
}
