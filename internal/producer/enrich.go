package producer

import (
	"strconv"
	"time"

	"github.com/drblury/activityflow/internal/activity"
	idspkg "github.com/drblury/activityflow/internal/runtime/ids"
)

// Identity describes the local service stamped on envelopes that do not
// already carry provenance.
type Identity struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

var (
	nowFunc    = time.Now
	newEventID = idspkg.NewEventID
)

// Enrich fills producer-owned fields on e in place. Provenance, eventId,
// timestamp, status and correlationId are only set when empty, so relayed
// envelopes keep their origin. isOwnAction is always recomputed from the
// actor and target ids and is false unless both are present and equal.
func Enrich(e *activity.Envelope, id Identity) {
	if e == nil {
		return
	}
	if e.SourceService == "" {
		e.SourceService = id.ServiceName
	}
	if e.ServiceVersion == "" {
		e.ServiceVersion = id.ServiceVersion
	}
	if e.Environment == "" {
		e.Environment = id.Environment
	}
	if e.EventID == "" {
		e.EventID = newEventID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = nowFunc().UTC()
	}
	if e.Status == "" {
		e.Status = activity.StatusSuccess
	}
	if e.CorrelationID == "" {
		e.CorrelationID = e.EventID
	}

	own := e.ActorUserID != nil && e.TargetUserID != nil && *e.ActorUserID == *e.TargetUserID
	e.IsOwnAction = activity.Bool(own)
}

// PartitionKey returns the broker key for e: the decimal targetUserId. All
// events affecting one user share a key and therefore a partition. It returns
// "" when the target is unset.
func PartitionKey(e *activity.Envelope) string {
	if e == nil || e.TargetUserID == nil {
		return ""
	}
	return strconv.FormatInt(*e.TargetUserID, 10)
}
