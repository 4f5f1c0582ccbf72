package producer

import (
	"errors"
	"fmt"
)

var (
	// ErrPublishFailed matches every broker-side publish failure.
	ErrPublishFailed = errors.New("activityflow: publish failed")
	// ErrProducerClosed is returned by publishes attempted after Close.
	ErrProducerClosed = errors.New("activityflow: producer closed")
)

// PublishError reports a failed broker send for one envelope.
type PublishError struct {
	EventID string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("activityflow: publish event %s: %v", e.EventID, e.Err)
}

// Unwrap exposes both ErrPublishFailed and the underlying cause.
func (e *PublishError) Unwrap() []error {
	return []error{ErrPublishFailed, e.Err}
}
