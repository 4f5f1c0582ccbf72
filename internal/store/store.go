// Package store defines the downstream collaborators the consumer groups
// write to. Every Persist must be idempotent on EventID: the pipeline
// delivers at least once and replays whole batches after a crash.
package store

import (
	"context"
	"strconv"
	"time"
)

// AuditRecord is one row of the audit trail.
type AuditRecord struct {
	EventID       string
	CorrelationID string
	RequestID     string

	UserID        int64
	ActorUserID   *int64
	ActorUserName string
	ActorRole     string

	EntityType  string
	EntityID    *int64
	EntityName  string
	Action      string
	Description string

	// OldValues and NewValues are JSON objects, nil when absent.
	OldValues []byte
	NewValues []byte

	IPAddress       string
	UserAgent       string
	SessionID       string
	HTTPMethod      string
	Endpoint        string
	ExecutionTimeMs *int64

	Status       string
	ErrorMessage string
	ResponseCode *int

	SourceService  string
	ServiceVersion string
	Environment    string

	OccurredAt time.Time
}

// Notification is a personal notification for UserID.
type Notification struct {
	EventID     string
	UserID      int64
	Type        string
	Title       string
	Message     string
	EntityType  string
	EntityID    *int64
	ActorUserID *int64
	// Payload is the JSON body pushed to the user's real-time channel.
	Payload   []byte
	CreatedAt time.Time
}

// ActivityRecord is an entry in a user's friend-activity feed.
type ActivityRecord struct {
	EventID       string
	TargetUserID  int64
	ActorUserID   *int64
	ActorUserName string
	EntityType    string
	EntityID      *int64
	EntityName    string
	Action        string
	Description   string
	Payload       []byte
	OccurredAt    time.Time
}

type AuditStore interface {
	Persist(ctx context.Context, rec AuditRecord) error
}

type NotificationStore interface {
	Persist(ctx context.Context, n Notification) error
}

type FriendActivityStore interface {
	Persist(ctx context.Context, rec ActivityRecord) error
}

// Dispatcher pushes a payload to a real-time delivery channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, channel string, payload []byte) error
}

// UserChannel is the real-time channel of a user's personal notifications.
func UserChannel(userID int64) string {
	return "notifications:user:" + strconv.FormatInt(userID, 10)
}

// FriendFeedChannel is the real-time channel of a user's friend-activity feed.
func FriendFeedChannel(userID int64) string {
	return "activity:friends:" + strconv.FormatInt(userID, 10)
}
