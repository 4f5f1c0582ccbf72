package activity

import "time"

// Builder assembles an envelope in a domain service before it is handed to
// the producer.
//
//	env := activity.New(activity.EntityExpense, activity.ActionCreate).
//		Target(9).
//		Actor(5, "maria").
//		Entity(42, "Groceries").
//		Build()
type Builder struct {
	e Envelope
}

// New starts an envelope for the given entity type and action.
func New(entityType EntityType, action Action) *Builder {
	return &Builder{e: Envelope{EntityType: entityType, Action: action}}
}

func (b *Builder) Target(userID int64) *Builder {
	b.e.TargetUserID = Int64(userID)
	return b
}

func (b *Builder) TargetUser(u UserSnapshot) *Builder {
	b.e.TargetUser = &u
	if b.e.TargetUserID == nil && u.ID != nil {
		b.e.TargetUserID = cloneInt64(u.ID)
	}
	return b
}

func (b *Builder) Actor(userID int64, name string) *Builder {
	b.e.ActorUserID = Int64(userID)
	b.e.ActorUserName = name
	return b
}

func (b *Builder) ActorRole(role string) *Builder {
	b.e.ActorRole = role
	return b
}

func (b *Builder) ActorUser(u UserSnapshot) *Builder {
	b.e.ActorUser = &u
	if b.e.ActorUserID == nil && u.ID != nil {
		b.e.ActorUserID = cloneInt64(u.ID)
	}
	return b
}

func (b *Builder) Entity(id int64, name string) *Builder {
	b.e.EntityID = Int64(id)
	b.e.EntityName = name
	return b
}

func (b *Builder) OldValues(v *Values) *Builder {
	b.e.OldValues = v
	return b
}

func (b *Builder) NewValues(v *Values) *Builder {
	b.e.NewValues = v
	return b
}

func (b *Builder) Payload(v *Values) *Builder {
	b.e.EntityPayload = v
	return b
}

// Request copies request context fields.
func (b *Builder) Request(method, endpoint, ip, userAgent string) *Builder {
	b.e.HTTPMethod = method
	b.e.Endpoint = endpoint
	b.e.IPAddress = ip
	b.e.UserAgent = userAgent
	return b
}

func (b *Builder) Correlation(correlationID, requestID, sessionID string) *Builder {
	b.e.CorrelationID = correlationID
	b.e.RequestID = requestID
	b.e.SessionID = sessionID
	return b
}

func (b *Builder) ExecutionTime(d time.Duration) *Builder {
	b.e.ExecutionTimeMs = Int64(d.Milliseconds())
	return b
}

// Failed marks the action as failed with the given message and response code.
func (b *Builder) Failed(message string, responseCode int) *Builder {
	b.e.Status = StatusFailure
	b.e.ErrorMessage = message
	b.e.ResponseCode = &responseCode
	return b
}

func (b *Builder) RequiresAudit(v bool) *Builder {
	b.e.RequiresAudit = Bool(v)
	return b
}

func (b *Builder) RequiresNotification(v bool) *Builder {
	b.e.RequiresNotification = Bool(v)
	return b
}

func (b *Builder) FriendActivity(v bool) *Builder {
	b.e.IsFriendActivity = Bool(v)
	return b
}

func (b *Builder) At(t time.Time) *Builder {
	b.e.Timestamp = t
	return b
}

// Build returns a copy of the assembled envelope; the builder can be reused.
func (b *Builder) Build() *Envelope {
	return b.e.Clone()
}
