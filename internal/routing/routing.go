// Package routing decides, per envelope, which downstream consumers act on
// an event. The predicates are pure and independent: one event may be
// audited, notified and treated as friend activity at the same time.
package routing

import "github.com/drblury/activityflow/internal/activity"

// ShouldAudit reports whether the event belongs in the audit log.
// requiresAudit defaults to true.
func ShouldAudit(e *activity.Envelope) bool {
	if e == nil {
		return false
	}
	return e.AuditRequired()
}

// ShouldNotify reports whether the target user gets a personal notification.
// Only the acting user's own actions notify; isOwnAction is taken as stamped
// by the producer and never recomputed here.
func ShouldNotify(e *activity.Envelope) bool {
	if e == nil {
		return false
	}
	return e.NotificationRequired() && e.OwnAction()
}

// ShouldTreatAsFriendActivity reports whether the event goes to the target's
// friend feed: either flagged explicitly or performed by someone else.
func ShouldTreatAsFriendActivity(e *activity.Envelope) bool {
	if e == nil {
		return false
	}
	if e.FriendActivityFlag() {
		return true
	}
	return e.ActorUserID != nil && e.TargetUserID != nil && *e.ActorUserID != *e.TargetUserID
}

// Decision bundles the outcome of all predicates for one envelope.
type Decision struct {
	Audit          bool
	Notify         bool
	FriendActivity bool
}

// Any reports whether at least one consumer acts on the event.
func (d Decision) Any() bool {
	return d.Audit || d.Notify || d.FriendActivity
}

func Evaluate(e *activity.Envelope) Decision {
	return Decision{
		Audit:          ShouldAudit(e),
		Notify:         ShouldNotify(e),
		FriendActivity: ShouldTreatAsFriendActivity(e),
	}
}
