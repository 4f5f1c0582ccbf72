// Package gormstore persists notifications and friend-activity entries with
// GORM on PostgreSQL.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/drblury/activityflow/internal/store"
)

var errMissingEventID = errors.New("gormstore: record without event id")

// Open connects to PostgreSQL and configures the pool.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Migrate creates or updates both tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&NotificationRow{}, &FriendActivityRow{}); err != nil {
		return fmt.Errorf("gormstore: migrate: %w", err)
	}
	return nil
}

// ignoreDuplicates turns a redelivered insert into a no-op.
var ignoreDuplicates = clause.OnConflict{
	Columns:   []clause.Column{{Name: "event_id"}},
	DoNothing: true,
}

type NotificationStore struct {
	db *gorm.DB
}

func NewNotificationStore(db *gorm.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Persist(ctx context.Context, n store.Notification) error {
	if n.EventID == "" {
		return errMissingEventID
	}
	row := notificationRow(n)
	if err := s.db.WithContext(ctx).Clauses(ignoreDuplicates).Create(&row).Error; err != nil {
		return fmt.Errorf("gormstore: persist notification: %w", err)
	}
	return nil
}

type FriendActivityStore struct {
	db *gorm.DB
}

func NewFriendActivityStore(db *gorm.DB) *FriendActivityStore {
	return &FriendActivityStore{db: db}
}

func (s *FriendActivityStore) Persist(ctx context.Context, rec store.ActivityRecord) error {
	if rec.EventID == "" {
		return errMissingEventID
	}
	row := friendActivityRow(rec)
	if err := s.db.WithContext(ctx).Clauses(ignoreDuplicates).Create(&row).Error; err != nil {
		return fmt.Errorf("gormstore: persist friend activity: %w", err)
	}
	return nil
}

var (
	_ store.NotificationStore   = (*NotificationStore)(nil)
	_ store.FriendActivityStore = (*FriendActivityStore)(nil)
)
