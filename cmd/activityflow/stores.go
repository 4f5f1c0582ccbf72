package main

import (
	"context"

	"github.com/drblury/activityflow/internal/runtime/logging"
	"github.com/drblury/activityflow/internal/store"
	"github.com/drblury/activityflow/internal/store/gormstore"
	"github.com/drblury/activityflow/internal/store/memory"
	"github.com/drblury/activityflow/internal/store/postgres"
	"github.com/drblury/activityflow/internal/store/redisdispatch"
)

func noRelease() {}

// openAuditStore opens the Postgres audit table when AUDIT_DATABASE_URL is
// set and falls back to an in-memory store otherwise.
func openAuditStore(ctx context.Context, e *env) (store.AuditStore, func(), error) {
	if e.cfg.AuditDatabaseURL == "" {
		e.log.Info("Using in-memory audit store", nil)
		return memory.NewAuditStore(), noRelease, nil
	}

	audit, err := postgres.Open(e.cfg.AuditDatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := audit.Migrate(ctx); err != nil {
		_ = audit.Close()
		return nil, nil, err
	}
	return audit, func() { _ = audit.Close() }, nil
}

type notificationStores struct {
	notifications store.NotificationStore
	feed          store.FriendActivityStore
	dispatcher    store.Dispatcher
	release       func()
}

// openNotificationStores opens the GORM tables when NOTIFICATION_DATABASE_URL
// is set and the Redis dispatcher when REDIS_ADDR is set. Missing settings
// fall back to in-memory implementations.
func openNotificationStores(ctx context.Context, e *env) (*notificationStores, error) {
	s := &notificationStores{release: noRelease}
	var closers []func()
	release := func() {
		for _, c := range closers {
			c()
		}
	}

	if e.cfg.NotificationDatabaseURL == "" {
		e.log.Info("Using in-memory notification stores", nil)
		s.notifications = memory.NewNotificationStore()
		s.feed = memory.NewFriendActivityStore()
	} else {
		db, err := gormstore.Open(e.cfg.NotificationDatabaseURL)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, func() { _ = sqlDB.Close() })
		}
		if err := gormstore.Migrate(ctx, db); err != nil {
			release()
			return nil, err
		}
		s.notifications = gormstore.NewNotificationStore(db)
		s.feed = gormstore.NewFriendActivityStore(db)
	}

	if e.cfg.RedisAddr == "" {
		e.log.Info("Using in-memory dispatcher", nil)
		s.dispatcher = memory.NewDispatcher()
	} else {
		client, err := redisdispatch.Dial(ctx, e.cfg.RedisAddr)
		if err != nil {
			release()
			return nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		s.dispatcher = redisdispatch.New(client, e.cfg.DispatchRatePerSecond, e.cfg.DispatchBurst)
		e.log.Info("Dispatching notifications through Redis", logging.LogFields{
			"address":         e.cfg.RedisAddr,
			"rate_per_second": e.cfg.DispatchRatePerSecond,
			"burst":           e.cfg.DispatchBurst,
		})
	}

	s.release = release
	return s, nil
}
