package consumer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/drblury/activityflow/internal/activity"
	"github.com/drblury/activityflow/internal/runtime/jsoncodec"
	"github.com/drblury/activityflow/internal/store"
)

var pastTense = map[activity.Action]string{
	activity.ActionCreate: "created",
	activity.ActionUpdate: "updated",
	activity.ActionDelete: "deleted",
	activity.ActionView:   "viewed",
}

func verb(a activity.Action) string {
	if v, ok := pastTense[a]; ok {
		return v
	}
	return strings.ToLower(string(a))
}

func noun(t activity.EntityType) string {
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", " ")
}

func actorName(e *activity.Envelope) string {
	switch {
	case e.ActorUserName != "":
		return e.ActorUserName
	case e.ActorUser != nil && e.ActorUser.FullName != "":
		return e.ActorUser.FullName
	case e.ActorUser != nil && e.ActorUser.Username != "":
		return e.ActorUser.Username
	case e.ActorUserID != nil:
		return "User " + strconv.FormatInt(*e.ActorUserID, 10)
	default:
		return "Someone"
	}
}

// Describe renders a one-line summary such as
// `maria created expense "Groceries"`.
func Describe(e *activity.Envelope) string {
	var b strings.Builder
	b.WriteString(actorName(e))
	b.WriteByte(' ')
	b.WriteString(verb(e.Action))
	b.WriteByte(' ')
	b.WriteString(noun(e.EntityType))
	if e.EntityName != "" {
		fmt.Fprintf(&b, " %q", e.EntityName)
	} else if e.EntityID != nil {
		fmt.Fprintf(&b, " #%d", *e.EntityID)
	}
	if e.Status == activity.StatusFailure {
		b.WriteString(" (failed)")
	}
	return b.String()
}

// NotificationType derives the notification kind, e.g. EXPENSE_CREATED.
func NotificationType(e *activity.Envelope) string {
	return string(e.EntityType) + "_" + strings.ToUpper(verb(e.Action))
}

// NotificationTitle is the short heading shown to the user, e.g.
// "Expense created".
func NotificationTitle(e *activity.Envelope) string {
	n := noun(e.EntityType)
	if n == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(n)
	return string(unicode.ToUpper(first)) + n[size:] + " " + verb(e.Action)
}

// AuditRecordFrom maps an envelope to its audit row.
func AuditRecordFrom(e *activity.Envelope) store.AuditRecord {
	rec := store.AuditRecord{
		EventID:         e.EventID,
		CorrelationID:   e.CorrelationID,
		RequestID:       e.RequestID,
		ActorUserID:     e.ActorUserID,
		ActorUserName:   e.ActorUserName,
		ActorRole:       e.ActorRole,
		EntityType:      string(e.EntityType),
		EntityID:        e.EntityID,
		EntityName:      e.EntityName,
		Action:          string(e.Action),
		Description:     Describe(e),
		OldValues:       valuesJSON(e.OldValues),
		NewValues:       valuesJSON(e.NewValues),
		IPAddress:       e.IPAddress,
		UserAgent:       e.UserAgent,
		SessionID:       e.SessionID,
		HTTPMethod:      e.HTTPMethod,
		Endpoint:        e.Endpoint,
		ExecutionTimeMs: e.ExecutionTimeMs,
		Status:          string(e.Status),
		ErrorMessage:    e.ErrorMessage,
		ResponseCode:    e.ResponseCode,
		SourceService:   e.SourceService,
		ServiceVersion:  e.ServiceVersion,
		Environment:     e.Environment,
		OccurredAt:      occurredAt(e),
	}
	if e.TargetUserID != nil {
		rec.UserID = *e.TargetUserID
	}
	if rec.CorrelationID == "" {
		rec.CorrelationID = e.EventID
	}
	return rec
}

// pushMessage is the JSON pushed to real-time channels.
type pushMessage struct {
	EventID     string           `json:"eventId"`
	Type        string           `json:"type"`
	Title       string           `json:"title,omitempty"`
	Message     string           `json:"message"`
	EntityType  string           `json:"entityType"`
	EntityID    *int64           `json:"entityId,omitempty"`
	EntityName  string           `json:"entityName,omitempty"`
	Action      string           `json:"action"`
	ActorUserID *int64           `json:"actorUserId,omitempty"`
	ActorName   string           `json:"actorName,omitempty"`
	Values      *activity.Values `json:"values,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

func newPushMessage(e *activity.Envelope) pushMessage {
	values := e.NewValues
	if values == nil {
		values = e.EntityPayload
	}
	return pushMessage{
		EventID:     e.EventID,
		Type:        NotificationType(e),
		Title:       NotificationTitle(e),
		Message:     Describe(e),
		EntityType:  string(e.EntityType),
		EntityID:    e.EntityID,
		EntityName:  e.EntityName,
		Action:      string(e.Action),
		ActorUserID: e.ActorUserID,
		ActorName:   actorName(e),
		Values:      values,
		Timestamp:   occurredAt(e),
	}
}

// NotificationFrom maps an envelope to a personal notification for its
// target user.
func NotificationFrom(e *activity.Envelope) (store.Notification, error) {
	msg := newPushMessage(e)
	payload, err := jsoncodec.Marshal(msg)
	if err != nil {
		return store.Notification{}, fmt.Errorf("encode notification payload: %w", err)
	}
	n := store.Notification{
		EventID:     e.EventID,
		Type:        msg.Type,
		Title:       msg.Title,
		Message:     msg.Message,
		EntityType:  msg.EntityType,
		EntityID:    e.EntityID,
		ActorUserID: e.ActorUserID,
		Payload:     payload,
		CreatedAt:   msg.Timestamp,
	}
	if e.TargetUserID != nil {
		n.UserID = *e.TargetUserID
	}
	return n, nil
}

// ActivityRecordFrom maps an envelope to a friend-feed entry for its target
// user.
func ActivityRecordFrom(e *activity.Envelope) (store.ActivityRecord, error) {
	msg := newPushMessage(e)
	payload, err := jsoncodec.Marshal(msg)
	if err != nil {
		return store.ActivityRecord{}, fmt.Errorf("encode activity payload: %w", err)
	}
	rec := store.ActivityRecord{
		EventID:       e.EventID,
		ActorUserID:   e.ActorUserID,
		ActorUserName: msg.ActorName,
		EntityType:    msg.EntityType,
		EntityID:      e.EntityID,
		EntityName:    e.EntityName,
		Action:        msg.Action,
		Description:   msg.Message,
		Payload:       payload,
		OccurredAt:    msg.Timestamp,
	}
	if e.TargetUserID != nil {
		rec.TargetUserID = *e.TargetUserID
	}
	return rec, nil
}

func valuesJSON(v *activity.Values) []byte {
	if v == nil {
		return nil
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil
	}
	return raw
}

func occurredAt(e *activity.Envelope) time.Time {
	if e.Timestamp.IsZero() {
		return time.Now().UTC()
	}
	return e.Timestamp.UTC()
}
