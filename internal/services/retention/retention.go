// Package retention prunes old read notifications so the notifications table
// does not grow without bound.
package retention

import (
	"context"
	"sync"
	"time"

	"billwatch/pkg/logx"
)

// Store is the slice of the persistence layer the cleaner needs.
type Store interface {
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Cleaner struct {
	log   logx.Logger
	store Store
	now   func() time.Time

	mu  sync.Mutex
	age time.Duration
}

// New builds a Cleaner that removes read notifications older than age.
func New(log logx.Logger, store Store, age time.Duration) *Cleaner {
	return &Cleaner{log: log, store: store, age: age, now: time.Now}
}

func (c *Cleaner) Apply(age time.Duration) {
	c.mu.Lock()
	c.age = age
	c.mu.Unlock()
}

// Cleanup deletes read notifications past the retention age and returns the
// number removed. Unread notifications are never touched.
func (c *Cleaner) Cleanup(ctx context.Context) (int64, error) {
	return c.cleanupAt(ctx, c.now())
}

func (c *Cleaner) cleanupAt(ctx context.Context, now time.Time) (int64, error) {
	c.mu.Lock()
	age := c.age
	c.mu.Unlock()

	cutoff := now.Add(-age)
	n, err := c.store.DeleteReadNotificationsBefore(ctx, cutoff)
	if err != nil {
		c.log.Error("notification cleanup failed", logx.Err(err))
		return 0, err
	}
	c.log.Info("notification cleanup finished",
		logx.Int64("deleted", n), logx.Time("cutoff", cutoff))
	return n, nil
}
