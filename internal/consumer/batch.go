package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	errspkg "github.com/drblury/activityflow/internal/runtime/errors"
	"github.com/drblury/activityflow/internal/runtime/logging"
	"github.com/drblury/activityflow/internal/runtime/metrics"
)

const (
	defaultBatchSize    = 100
	defaultBatchMaxWait = 500 * time.Millisecond
)

// Delivery is one raw record of a batch.
type Delivery struct {
	Payload  []byte
	Metadata message.Metadata
	Position Position
}

// BatchSummary accumulates per-item results. Failed items do not stop the
// batch.
type BatchSummary struct {
	Results   []Result
	Succeeded int
	Skipped   int
	Failed    int
	Errors    []error
}

func (s *BatchSummary) add(r Result) {
	s.Results = append(s.Results, r)
	switch r.Outcome {
	case OutcomeSucceeded:
		s.Succeeded++
	case OutcomeSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
	if r.Err != nil {
		s.Errors = append(s.Errors, r.Err)
	}
}

// ProcessBatch runs every delivery through the handler in order. A panic in
// one item is recorded as that item's failure.
func (h *Handler) ProcessBatch(ctx context.Context, items []Delivery) BatchSummary {
	summary := BatchSummary{Results: make([]Result, 0, len(items))}
	for _, item := range items {
		summary.add(h.processIsolated(ctx, item))
	}
	return summary
}

func (h *Handler) processIsolated(ctx context.Context, item Delivery) (r Result) {
	defer func() {
		if p := recover(); p != nil {
			r = Result{
				Position: item.Position,
				Path:     []State{StateReceived, StateNotAcknowledged},
				Outcome:  OutcomeFailed,
				Err:      fmt.Errorf("%w: panic: %v", ErrPersistFailed, p),
			}
			h.logger.Error("Activity handler panicked", r.Err, h.fields(r))
		}
	}()
	return h.Process(ctx, item.Payload, item.Position)
}

// BatchOptions configures a Batcher.
type BatchOptions struct {
	Size    int
	MaxWait time.Duration
	Logger  logging.ServiceLogger
	Metrics *metrics.Pipeline
	// FailedPublisher, when set, receives a copy of every item that failed
	// or could not be parsed so it survives the batch acknowledgement.
	FailedPublisher message.Publisher
	FailedTopic     string
}

// Batcher settles whole batches: every item is attempted, then the batch is
// acknowledged as one unit.
type Batcher struct {
	handler     *Handler
	size        int
	maxWait     time.Duration
	logger      logging.ServiceLogger
	metrics     *metrics.Pipeline
	failedPub   message.Publisher
	failedTopic string
}

func NewBatcher(h *Handler, opts BatchOptions) (*Batcher, error) {
	if h == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	if opts.FailedPublisher != nil && opts.FailedTopic == "" {
		return nil, fmt.Errorf("failed-item publisher: %w", errspkg.ErrTopicRequired)
	}
	b := &Batcher{
		handler:     h,
		size:        opts.Size,
		maxWait:     opts.MaxWait,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		failedPub:   opts.FailedPublisher,
		failedTopic: opts.FailedTopic,
	}
	if b.size <= 0 {
		b.size = defaultBatchSize
	}
	if b.maxWait <= 0 {
		b.maxWait = defaultBatchMaxWait
	}
	if b.logger == nil {
		b.logger = logging.Nop()
	}
	b.logger = b.logger.With(logging.LogFields{"consumer": h.Name(), "mode": "batch"})
	return b, nil
}

// Size is the maximum number of items per batch.
func (b *Batcher) Size() int { return b.size }

// MaxWait bounds how long a partial batch waits for more items.
func (b *Batcher) MaxWait() time.Duration { return b.maxWait }

// Settle processes items and forwards failures. A nil error means the batch
// may be acknowledged. An error means forwarding failed and the whole batch
// must be redelivered.
func (b *Batcher) Settle(ctx context.Context, items []Delivery) (BatchSummary, error) {
	start := time.Now()
	summary := b.handler.ProcessBatch(ctx, items)
	b.metrics.RecordBatch(b.handler.Name(), len(items), time.Since(start))

	fields := logging.LogFields{
		"size":      len(items),
		"succeeded": summary.Succeeded,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	}
	if summary.Failed > 0 {
		b.logger.Error("Batch finished with failures", errors.Join(summary.Errors...), fields)
	} else {
		b.logger.Debug("Batch finished", fields)
	}

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("%w: %w", ErrBatchInterrupted, err)
	}
	if err := b.forwardFailed(items, summary); err != nil {
		return summary, err
	}
	return summary, nil
}

func (b *Batcher) forwardFailed(items []Delivery, summary BatchSummary) error {
	if b.failedPub == nil {
		return nil
	}
	var msgs []*message.Message
	for i, r := range summary.Results {
		if r.Outcome != OutcomeFailed && !errors.Is(r.Err, ErrParseFailed) {
			continue
		}
		id := r.EventID
		if id == "" {
			id = watermill.NewUUID()
		}
		msg := message.NewMessage(id, items[i].Payload)
		for k, v := range items[i].Metadata {
			msg.Metadata.Set(k, v)
		}
		msg.Metadata.Set(middleware.ReasonForPoisonedKey, r.Err.Error())
		msg.Metadata.Set(middleware.PoisonedTopicKey, r.Position.Topic)
		msg.Metadata.Set(middleware.PoisonedHandlerKey, b.handler.Name())
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := b.failedPub.Publish(b.failedTopic, msgs...); err != nil {
		return fmt.Errorf("forward %d failed items to %s: %w", len(msgs), b.failedTopic, err)
	}
	b.metrics.RecordPoisoned(b.handler.Name(), len(msgs))
	return nil
}

// SubscriberBatches drives a Batcher from any Watermill subscriber.
//
// Subscribers that wait for an ack before delivering the next message of a
// partition or subscription bound the effective batch size by the number of
// concurrently delivering partitions; partial batches flush after MaxWait.
type SubscriberBatches struct {
	batcher    *Batcher
	subscriber message.Subscriber
	topic      string
}

func NewSubscriberBatches(b *Batcher, sub message.Subscriber, topic string) (*SubscriberBatches, error) {
	switch {
	case b == nil:
		return nil, errspkg.ErrHandlerRequired
	case sub == nil:
		return nil, errspkg.ErrConsumerGroupRequired
	case topic == "":
		return nil, errspkg.ErrConsumeTopicRequired
	}
	return &SubscriberBatches{batcher: b, subscriber: sub, topic: topic}, nil
}

// Close closes the underlying subscriber.
func (s *SubscriberBatches) Close() error {
	return s.subscriber.Close()
}

// Run consumes until ctx is cancelled or the subscription closes. Neither
// ends it with an error.
func (s *SubscriberBatches) Run(ctx context.Context) error {
	msgs, err := s.subscriber.Subscribe(ctx, s.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}
	for {
		batch, open := s.collect(ctx, msgs)
		if ctx.Err() != nil {
			nackAll(batch)
			return nil
		}
		if len(batch) > 0 {
			s.settle(ctx, batch)
		}
		if !open || ctx.Err() != nil {
			return nil
		}
	}
}

// collect blocks for the first message, then gathers more until the batch
// is full or MaxWait passes. open is false once the channel is closed.
func (s *SubscriberBatches) collect(ctx context.Context, msgs <-chan *message.Message) (batch []*message.Message, open bool) {
	select {
	case <-ctx.Done():
		return nil, true
	case msg, ok := <-msgs:
		if !ok {
			return nil, false
		}
		batch = append(batch, msg)
	}

	timer := time.NewTimer(s.batcher.maxWait)
	defer timer.Stop()
	for len(batch) < s.batcher.size {
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

func (s *SubscriberBatches) settle(ctx context.Context, batch []*message.Message) {
	items := make([]Delivery, len(batch))
	for i, msg := range batch {
		items[i] = Delivery{
			Payload:  msg.Payload,
			Metadata: msg.Metadata,
			Position: PositionFromMessage(msg, s.topic),
		}
	}
	if _, err := s.batcher.Settle(ctx, items); err != nil {
		s.batcher.logger.Error("Batch not acknowledged", err, logging.LogFields{"size": len(batch)})
		nackAll(batch)
		return
	}
	for _, msg := range batch {
		msg.Ack()
	}
}

func nackAll(batch []*message.Message) {
	for _, msg := range batch {
		msg.Nack()
	}
}
