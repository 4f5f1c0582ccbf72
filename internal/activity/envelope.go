// Package activity defines the envelope every domain service emits for a
// user-visible action, together with its validation and wire encoding.
package activity

import (
	"time"
)

// EntityType names the domain noun an event is about. It is an open set; the
// constants below are the recognized values.
type EntityType string

const (
	EntityExpense       EntityType = "EXPENSE"
	EntityBudget        EntityType = "BUDGET"
	EntityCategory      EntityType = "CATEGORY"
	EntityPaymentMethod EntityType = "PAYMENT_METHOD"
	EntityBill          EntityType = "BILL"
	EntityUser          EntityType = "USER"
	EntityFriendship    EntityType = "FRIENDSHIP"
)

// Action is the verb applied to the entity.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionView   Action = "VIEW"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// UserSnapshot is a denormalized copy of a user profile at event time.
type UserSnapshot struct {
	ID        *int64 `json:"id,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	FullName  string `json:"fullName,omitempty"`
	Image     string `json:"image,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Envelope is the single record carried on the activity topic. Pointer fields
// distinguish "unset" from the zero value.
type Envelope struct {
	EventID   string    `json:"eventId,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	ActorUserID   *int64        `json:"actorUserId,omitempty"`
	ActorUserName string        `json:"actorUserName,omitempty"`
	ActorRole     string        `json:"actorRole,omitempty"`
	ActorUser     *UserSnapshot `json:"actorUser,omitempty"`

	TargetUserID *int64        `json:"targetUserId,omitempty"`
	TargetUser   *UserSnapshot `json:"targetUser,omitempty"`

	EntityType EntityType `json:"entityType,omitempty"`
	EntityID   *int64     `json:"entityId,omitempty"`
	EntityName string     `json:"entityName,omitempty"`

	Action Action `json:"action,omitempty"`

	OldValues     *Values `json:"oldValues,omitempty"`
	NewValues     *Values `json:"newValues,omitempty"`
	EntityPayload *Values `json:"entityPayload,omitempty"`

	SourceService  string `json:"sourceService,omitempty"`
	ServiceVersion string `json:"serviceVersion,omitempty"`
	Environment    string `json:"environment,omitempty"`

	IPAddress       string `json:"ipAddress,omitempty"`
	UserAgent       string `json:"userAgent,omitempty"`
	SessionID       string `json:"sessionId,omitempty"`
	CorrelationID   string `json:"correlationId,omitempty"`
	RequestID       string `json:"requestId,omitempty"`
	HTTPMethod      string `json:"httpMethod,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	ExecutionTimeMs *int64 `json:"executionTimeMs,omitempty"`

	Status       Status `json:"status,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	ResponseCode *int   `json:"responseCode,omitempty"`

	IsOwnAction          *bool `json:"isOwnAction,omitempty"`
	RequiresAudit        *bool `json:"requiresAudit,omitempty"`
	RequiresNotification *bool `json:"requiresNotification,omitempty"`
	IsFriendActivity     *bool `json:"isFriendActivity,omitempty"`
}

// AuditRequired reports requiresAudit, which defaults to true when unset.
func (e *Envelope) AuditRequired() bool {
	return boolOr(e.RequiresAudit, true)
}

// NotificationRequired reports requiresNotification, which defaults to true
// when unset.
func (e *Envelope) NotificationRequired() bool {
	return boolOr(e.RequiresNotification, true)
}

// OwnAction reports the isOwnAction flag as stamped by the producer.
func (e *Envelope) OwnAction() bool {
	return boolOr(e.IsOwnAction, false)
}

// FriendActivityFlag reports the explicit isFriendActivity flag.
func (e *Envelope) FriendActivityFlag() bool {
	return boolOr(e.IsFriendActivity, false)
}

// Clone returns a deep copy.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	out := *e
	out.ActorUserID = cloneInt64(e.ActorUserID)
	out.TargetUserID = cloneInt64(e.TargetUserID)
	out.EntityID = cloneInt64(e.EntityID)
	out.ExecutionTimeMs = cloneInt64(e.ExecutionTimeMs)
	if e.ResponseCode != nil {
		code := *e.ResponseCode
		out.ResponseCode = &code
	}
	out.ActorUser = e.ActorUser.clone()
	out.TargetUser = e.TargetUser.clone()
	out.OldValues = e.OldValues.Clone()
	out.NewValues = e.NewValues.Clone()
	out.EntityPayload = e.EntityPayload.Clone()
	out.IsOwnAction = cloneBool(e.IsOwnAction)
	out.RequiresAudit = cloneBool(e.RequiresAudit)
	out.RequiresNotification = cloneBool(e.RequiresNotification)
	out.IsFriendActivity = cloneBool(e.IsFriendActivity)
	return &out
}

func (u *UserSnapshot) clone() *UserSnapshot {
	if u == nil {
		return nil
	}
	out := *u
	out.ID = cloneInt64(u.ID)
	return &out
}

// Int64 returns a pointer to n, for populating optional id fields.
func Int64(n int64) *int64 { return &n }

// Bool returns a pointer to b, for populating optional flags.
func Bool(b bool) *bool { return &b }

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
