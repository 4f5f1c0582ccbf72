// Package consumer turns activity messages into store writes for a consumer
// group and decides whether each message may be acknowledged.
package consumer

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/activityflow/internal/activity"
	"github.com/drblury/activityflow/internal/routing"
	errspkg "github.com/drblury/activityflow/internal/runtime/errors"
	"github.com/drblury/activityflow/internal/runtime/logging"
	"github.com/drblury/activityflow/internal/runtime/metrics"
)

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Topic is reported in positions and log lines.
	Topic   string
	Logger  logging.ServiceLogger
	Metrics *metrics.Pipeline
	// PoisonParseFailures makes HandleMessage return parse failures as
	// *UnprocessableError instead of acknowledging them silently, so a
	// poison queue middleware can keep a copy.
	PoisonParseFailures bool
}

// Handler runs the per-message lifecycle for one consumer group.
type Handler struct {
	processor Processor
	topic     string
	logger    logging.ServiceLogger
	metrics   *metrics.Pipeline
	poison    bool
}

func NewHandler(processor Processor, opts HandlerOptions) (*Handler, error) {
	if processor == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{
		processor: processor,
		topic:     opts.Topic,
		logger:    logger.With(logging.LogFields{"consumer": processor.Name()}),
		metrics:   opts.Metrics,
		poison:    opts.PoisonParseFailures,
	}, nil
}

// Name is the processor name, used as the metrics label.
func (h *Handler) Name() string {
	return h.processor.Name()
}

// Process parses, routes and applies one raw payload. It never panics on bad
// input; the returned Result says whether the message may be acknowledged.
func (h *Handler) Process(ctx context.Context, payload []byte, pos Position) Result {
	r := Result{Position: pos}
	r.enter(StateReceived)

	e, err := activity.Decode(payload)
	if err == nil {
		err = activity.ValidateDelivered(e)
	}
	if err != nil {
		r.enter(StateParseFailed)
		r.enter(StateAcknowledged)
		r.Outcome = OutcomeSkipped
		r.Err = fmt.Errorf("%w: %w", ErrParseFailed, err)
		if e != nil {
			r.EventID, r.CorrelationID = e.EventID, e.CorrelationID
		}
		h.logger.Error("Dropping unparseable activity", r.Err, h.fields(r))
		h.record(r)
		return r
	}
	r.EventID, r.CorrelationID = e.EventID, e.CorrelationID
	r.enter(StateParsed)

	decision := routing.Evaluate(e)
	r.enter(StateRouted)

	applied, err := h.processor.Process(ctx, e, decision)
	if err != nil {
		r.enter(StatePersistFailed)
		r.enter(StateNotAcknowledged)
		r.Outcome = OutcomeFailed
		r.Err = fmt.Errorf("%w: %w", ErrPersistFailed, err)
		h.logger.Error("Activity not acknowledged", r.Err, h.fields(r))
		h.record(r)
		return r
	}

	if applied {
		r.enter(StatePersisted)
		r.Outcome = OutcomeSucceeded
	} else {
		r.Outcome = OutcomeSkipped
	}
	r.enter(StateAcknowledged)

	fields := h.fields(r)
	fields["audit"] = decision.Audit
	fields["notify"] = decision.Notify
	fields["friend_activity"] = decision.FriendActivity
	h.logger.Debug("Activity handled", fields)
	h.record(r)
	return r
}

// HandleMessage adapts Process to a Watermill no-publisher handler. A nil
// return acks the message; an error nacks it for redelivery.
func (h *Handler) HandleMessage(msg *message.Message) error {
	r := h.Process(msg.Context(), msg.Payload, PositionFromMessage(msg, h.topic))
	switch {
	case r.Acknowledged() && r.Err != nil && h.poison:
		return &UnprocessableError{Err: r.Err}
	case r.Acknowledged():
		return nil
	default:
		return r.Err
	}
}

// PositionFromMessage reads the Kafka partition and offset from the message
// context when the subscriber provides them.
func PositionFromMessage(msg *message.Message, topic string) Position {
	pos := Position{Topic: topic}
	ctx := msg.Context()
	partition, okPartition := kafka.MessagePartitionFromCtx(ctx)
	offset, okOffset := kafka.MessagePartitionOffsetFromCtx(ctx)
	if okPartition && okOffset {
		pos.Partition, pos.Offset, pos.Known = partition, offset, true
	}
	return pos
}

func (h *Handler) fields(r Result) logging.LogFields {
	fields := logging.LogFields(r.Position.logFields())
	if r.EventID != "" {
		fields["event_id"] = r.EventID
	}
	if r.CorrelationID != "" {
		fields["correlation_id"] = r.CorrelationID
	}
	fields["state"] = string(r.State())
	return fields
}

// record counts the state that decided the outcome, which is the one before
// the final ack or nack.
func (h *Handler) record(r Result) {
	if len(r.Path) < 2 {
		return
	}
	h.metrics.RecordResult(h.processor.Name(), string(r.Path[len(r.Path)-2]))
}
