package consumer

import (
	"errors"
	"fmt"
)

var (
	// ErrParseFailed marks a payload that is not a valid envelope. Such
	// messages are acknowledged, never retried.
	ErrParseFailed = errors.New("activityflow: unparseable activity payload")
	// ErrPersistFailed marks a downstream store or dispatch failure. Such
	// messages are left unacknowledged for redelivery.
	ErrPersistFailed = errors.New("activityflow: persisting activity failed")
	// ErrBatchInterrupted is returned by Settle when its context ended before
	// the batch was settled. No item of such a batch may be acknowledged.
	ErrBatchInterrupted = errors.New("activityflow: batch interrupted before settling")
)

// State is a step in the per-message lifecycle.
type State string

const (
	StateReceived        State = "RECEIVED"
	StateParsed          State = "PARSED"
	StateRouted          State = "ROUTED"
	StatePersisted       State = "PERSISTED"
	StateAcknowledged    State = "ACKNOWLEDGED"
	StateParseFailed     State = "PARSE_FAILED"
	StatePersistFailed   State = "PERSIST_FAILED"
	StateNotAcknowledged State = "NOT_ACKNOWLEDGED"
)

// Outcome classifies a finished message for batch accounting.
type Outcome string

const (
	// OutcomeSucceeded means at least one store write happened.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeSkipped means nothing applied to this consumer, or the payload
	// could not be parsed.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means a store write failed and the message must be
	// redelivered.
	OutcomeFailed Outcome = "failed"
)

// Position locates a message in the log, for log context only.
type Position struct {
	Topic     string
	Partition int32
	Offset    int64
	// Known is false when the transport does not expose partition offsets.
	Known bool
}

func (p Position) String() string {
	if !p.Known {
		return p.Topic
	}
	return fmt.Sprintf("%s[%d]@%d", p.Topic, p.Partition, p.Offset)
}

func (p Position) logFields() map[string]any {
	fields := map[string]any{"topic": p.Topic}
	if p.Known {
		fields["partition"] = p.Partition
		fields["offset"] = p.Offset
	}
	return fields
}

// Result records how one message moved through the lifecycle.
type Result struct {
	EventID       string
	CorrelationID string
	Position      Position
	// Path lists every state visited, starting with RECEIVED.
	Path    []State
	Outcome Outcome
	Err     error
}

// State returns the final state.
func (r Result) State() State {
	if len(r.Path) == 0 {
		return ""
	}
	return r.Path[len(r.Path)-1]
}

// Acknowledged reports whether the message may be committed.
func (r Result) Acknowledged() bool {
	return r.State() == StateAcknowledged
}

func (r *Result) enter(s State) {
	r.Path = append(r.Path, s)
}

// UnprocessableError carries a parse failure to the poison queue middleware.
type UnprocessableError struct {
	Err error
}

func (e *UnprocessableError) Error() string {
	return e.Err.Error()
}

func (e *UnprocessableError) Unwrap() error {
	return e.Err
}
