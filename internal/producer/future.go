package producer

import (
	"context"
	"sync"
	"time"
)

// Receipt confirms that the broker accepted an envelope.
type Receipt struct {
	EventID      string
	PartitionKey string
	Topic        string
	PublishedAt  time.Time
}

// Outcome is the final result of an asynchronous publish. Err is a
// *PublishError when the broker send failed.
type Outcome struct {
	Receipt
	Err error
}

// Future resolves once the background send for one envelope completes.
type Future struct {
	eventID string
	done    chan struct{}
	once    sync.Once
	outcome Outcome
}

func newFuture(eventID string) *Future {
	return &Future{eventID: eventID, done: make(chan struct{})}
}

func (f *Future) EventID() string { return f.eventID }

// Done is closed when the outcome is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Outcome returns the result and true once the send has completed.
func (f *Future) Outcome() (Outcome, bool) {
	select {
	case <-f.done:
		return f.outcome, true
	default:
		return Outcome{}, false
	}
}

// Wait blocks until the send completes or ctx is done. Cancelling ctx only
// stops waiting; the message may still reach the broker.
func (f *Future) Wait(ctx context.Context) (Receipt, error) {
	select {
	case <-f.done:
		return f.outcome.Receipt, f.outcome.Err
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

func (f *Future) complete(o Outcome) {
	f.once.Do(func() {
		f.outcome = o
		close(f.done)
	})
}
