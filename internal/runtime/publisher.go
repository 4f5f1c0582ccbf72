package runtime

import (
	"context"

	"github.com/drblury/activityflow/internal/activity"
	"github.com/drblury/activityflow/internal/producer"
	errspkg "github.com/drblury/activityflow/internal/runtime/errors"
)

// Producer returns the service's producer for the activity topic.
func (s *Service) Producer() *producer.Producer {
	return s.producer
}

// Publish validates, enriches and sends e in the background. See
// producer.Producer.Publish.
func (s *Service) Publish(ctx context.Context, e *activity.Envelope) (*producer.Future, error) {
	if s == nil || s.producer == nil {
		return nil, errspkg.ErrServiceRequired
	}
	return s.producer.Publish(ctx, e)
}

// PublishSync sends e and waits for the broker to confirm.
func (s *Service) PublishSync(ctx context.Context, e *activity.Envelope) (producer.Receipt, error) {
	if s == nil || s.producer == nil {
		return producer.Receipt{}, errspkg.ErrServiceRequired
	}
	return s.producer.PublishSync(ctx, e)
}
