// Package memory provides in-process stores for tests and the single-binary
// channel transport. Duplicate event ids are ignored.
package memory

import (
	"context"
	"sync"

	"github.com/drblury/activityflow/internal/store"
)

// keyed keeps the first record written for each event id, in arrival order.
type keyed[T any] struct {
	mu    sync.RWMutex
	order []string
	rows  map[string]T
}

func (k *keyed[T]) put(id string, v T) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.rows == nil {
		k.rows = make(map[string]T)
	}
	if _, exists := k.rows[id]; exists {
		return false
	}
	k.rows[id] = v
	k.order = append(k.order, id)
	return true
}

func (k *keyed[T]) get(id string) (T, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.rows[id]
	return v, ok
}

func (k *keyed[T]) all() []T {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]T, 0, len(k.order))
	for _, id := range k.order {
		out = append(out, k.rows[id])
	}
	return out
}

func (k *keyed[T]) len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.order)
}

type AuditStore struct {
	rows keyed[store.AuditRecord]
}

func NewAuditStore() *AuditStore { return &AuditStore{} }

func (s *AuditStore) Persist(ctx context.Context, rec store.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.rows.put(rec.EventID, rec)
	return nil
}

func (s *AuditStore) Get(eventID string) (store.AuditRecord, bool) { return s.rows.get(eventID) }
func (s *AuditStore) Records() []store.AuditRecord                 { return s.rows.all() }
func (s *AuditStore) Len() int                                     { return s.rows.len() }

type NotificationStore struct {
	rows keyed[store.Notification]
}

func NewNotificationStore() *NotificationStore { return &NotificationStore{} }

func (s *NotificationStore) Persist(ctx context.Context, n store.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.rows.put(n.EventID, n)
	return nil
}

func (s *NotificationStore) Get(eventID string) (store.Notification, bool) {
	return s.rows.get(eventID)
}
func (s *NotificationStore) Notifications() []store.Notification { return s.rows.all() }
func (s *NotificationStore) Len() int                            { return s.rows.len() }

type FriendActivityStore struct {
	rows keyed[store.ActivityRecord]
}

func NewFriendActivityStore() *FriendActivityStore { return &FriendActivityStore{} }

func (s *FriendActivityStore) Persist(ctx context.Context, rec store.ActivityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.rows.put(rec.EventID, rec)
	return nil
}

func (s *FriendActivityStore) Get(eventID string) (store.ActivityRecord, bool) {
	return s.rows.get(eventID)
}
func (s *FriendActivityStore) Records() []store.ActivityRecord { return s.rows.all() }
func (s *FriendActivityStore) Len() int                        { return s.rows.len() }

// Dispatch is one payload pushed through Dispatcher.
type Dispatch struct {
	Channel string
	Payload []byte
}

// Dispatcher records dispatches instead of delivering them.
type Dispatcher struct {
	mu         sync.Mutex
	dispatches []Dispatch
}

func NewDispatcher() *Dispatcher { return &Dispatcher{} }

func (d *Dispatcher) Dispatch(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatches = append(d.dispatches, Dispatch{Channel: channel, Payload: append([]byte(nil), payload...)})
	return nil
}

func (d *Dispatcher) Dispatches() []Dispatch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Dispatch(nil), d.dispatches...)
}

var (
	_ store.AuditStore          = (*AuditStore)(nil)
	_ store.NotificationStore   = (*NotificationStore)(nil)
	_ store.FriendActivityStore = (*FriendActivityStore)(nil)
	_ store.Dispatcher          = (*Dispatcher)(nil)
)
