package consumer

import (
	"context"
	"fmt"

	"github.com/drblury/activityflow/internal/activity"
	"github.com/drblury/activityflow/internal/routing"
	errspkg "github.com/drblury/activityflow/internal/runtime/errors"
	"github.com/drblury/activityflow/internal/store"
)

// Processor applies a routed envelope to a consumer group's stores.
// It reports applied=false when the decision selects nothing for this group.
// Implementations must be safe to call twice with the same envelope.
type Processor interface {
	Name() string
	Process(ctx context.Context, e *activity.Envelope, d routing.Decision) (applied bool, err error)
}

type auditProcessor struct {
	store store.AuditStore
}

// AuditProcessor persists audit-worthy events.
func AuditProcessor(s store.AuditStore) (Processor, error) {
	if s == nil {
		return nil, fmt.Errorf("audit processor: %w", errspkg.ErrStoreRequired)
	}
	return &auditProcessor{store: s}, nil
}

func (p *auditProcessor) Name() string { return "audit" }

func (p *auditProcessor) Process(ctx context.Context, e *activity.Envelope, d routing.Decision) (bool, error) {
	if !d.Audit {
		return false, nil
	}
	if err := p.store.Persist(ctx, AuditRecordFrom(e)); err != nil {
		return false, fmt.Errorf("persist audit record: %w", err)
	}
	return true, nil
}

type notificationProcessor struct {
	notifications store.NotificationStore
	feed          store.FriendActivityStore
	dispatcher    store.Dispatcher
}

// NotificationProcessor persists personal notifications and friend-activity
// entries, then pushes each to the target user's real-time channel. The
// dispatcher may be nil, in which case nothing is pushed.
//
// Steps run in order and stop at the first failure. A redelivery repeats
// every step, so stores must ignore duplicate event ids.
func NotificationProcessor(notifications store.NotificationStore, feed store.FriendActivityStore, dispatcher store.Dispatcher) (Processor, error) {
	if notifications == nil || feed == nil {
		return nil, fmt.Errorf("notification processor: %w", errspkg.ErrStoreRequired)
	}
	return &notificationProcessor{notifications: notifications, feed: feed, dispatcher: dispatcher}, nil
}

func (p *notificationProcessor) Name() string { return "notification" }

func (p *notificationProcessor) Process(ctx context.Context, e *activity.Envelope, d routing.Decision) (bool, error) {
	applied := false
	if d.Notify {
		n, err := NotificationFrom(e)
		if err != nil {
			return applied, err
		}
		if err := p.notifications.Persist(ctx, n); err != nil {
			return applied, fmt.Errorf("persist notification: %w", err)
		}
		if err := p.dispatch(ctx, store.UserChannel(n.UserID), n.Payload); err != nil {
			return applied, err
		}
		applied = true
	}
	if d.FriendActivity {
		rec, err := ActivityRecordFrom(e)
		if err != nil {
			return applied, err
		}
		if err := p.feed.Persist(ctx, rec); err != nil {
			return applied, fmt.Errorf("persist friend activity: %w", err)
		}
		if err := p.dispatch(ctx, store.FriendFeedChannel(rec.TargetUserID), rec.Payload); err != nil {
			return applied, err
		}
		applied = true
	}
	return applied, nil
}

func (p *notificationProcessor) dispatch(ctx context.Context, channel string, payload []byte) error {
	if p.dispatcher == nil {
		return nil
	}
	if err := p.dispatcher.Dispatch(ctx, channel, payload); err != nil {
		return fmt.Errorf("dispatch to %s: %w", channel, err)
	}
	return nil
}
