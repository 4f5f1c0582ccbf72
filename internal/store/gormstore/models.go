package gormstore

import (
	"time"

	"github.com/drblury/activityflow/internal/store"
)

type NotificationRow struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	EventID     string    `gorm:"column:event_id;type:varchar(64);uniqueIndex"`
	UserID      int64     `gorm:"column:user_id;index:idx_notifications_user_created,priority:1"`
	Type        string    `gorm:"column:type;type:varchar(64)"`
	Title       string    `gorm:"column:title;type:varchar(255)"`
	Message     string    `gorm:"column:message;type:text"`
	EntityType  string    `gorm:"column:entity_type;type:varchar(32)"`
	EntityID    *int64    `gorm:"column:entity_id"`
	ActorUserID *int64    `gorm:"column:actor_user_id"`
	Payload     string    `gorm:"column:payload;type:jsonb"`
	IsRead      bool      `gorm:"column:is_read;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;index:idx_notifications_user_created,priority:2"`
}

func (NotificationRow) TableName() string {
	return "notifications"
}

type FriendActivityRow struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string    `gorm:"column:event_id;type:varchar(64);uniqueIndex"`
	TargetUserID  int64     `gorm:"column:target_user_id;index:idx_friend_activity_target_occurred,priority:1"`
	ActorUserID   *int64    `gorm:"column:actor_user_id"`
	ActorUserName string    `gorm:"column:actor_user_name;type:varchar(255)"`
	EntityType    string    `gorm:"column:entity_type;type:varchar(32)"`
	EntityID      *int64    `gorm:"column:entity_id"`
	EntityName    string    `gorm:"column:entity_name;type:varchar(255)"`
	Action        string    `gorm:"column:action;type:varchar(16)"`
	Description   string    `gorm:"column:description;type:text"`
	Payload       string    `gorm:"column:payload;type:jsonb"`
	IsRead        bool      `gorm:"column:is_read;default:false"`
	OccurredAt    time.Time `gorm:"column:occurred_at;index:idx_friend_activity_target_occurred,priority:2"`
}

func (FriendActivityRow) TableName() string {
	return "friend_activities"
}

func notificationRow(n store.Notification) NotificationRow {
	return NotificationRow{
		EventID:     n.EventID,
		UserID:      n.UserID,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		EntityType:  n.EntityType,
		EntityID:    n.EntityID,
		ActorUserID: n.ActorUserID,
		Payload:     jsonOrEmpty(n.Payload),
		CreatedAt:   n.CreatedAt.UTC(),
	}
}

func friendActivityRow(rec store.ActivityRecord) FriendActivityRow {
	return FriendActivityRow{
		EventID:       rec.EventID,
		TargetUserID:  rec.TargetUserID,
		ActorUserID:   rec.ActorUserID,
		ActorUserName: rec.ActorUserName,
		EntityType:    rec.EntityType,
		EntityID:      rec.EntityID,
		EntityName:    rec.EntityName,
		Action:        rec.Action,
		Description:   rec.Description,
		Payload:       jsonOrEmpty(rec.Payload),
		OccurredAt:    rec.OccurredAt.UTC(),
	}
}

func jsonOrEmpty(b []byte) string {
	if len(b) == 0 {
		return "{}"
	}
	return string(b)
}
