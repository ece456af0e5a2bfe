package storage

import (
	"context"
	"errors"
	"time"

	"billwatch/internal/domain"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrClosed is returned when the store has already been closed.
	ErrClosed = errors.New("storage: closed")
)

// Store is the durable home of obligations, users and in-app notifications.
//
// The reminder pipeline relies on per-row atomic reads/writes only; there are
// no multi-row transactions here. Consumers that need a narrower surface
// should accept their own small interfaces and take a *SQLite.
type Store interface {
	// FindActiveDueBetween returns active obligations whose effective due
	// time (next_due_at when set, due_at otherwise) falls in [start, end].
	FindActiveDueBetween(ctx context.Context, start, end time.Time) ([]domain.Obligation, error)
	PutObligation(ctx context.Context, o *domain.Obligation) error
	GetObligation(ctx context.Context, id string) (*domain.Obligation, error)

	PutUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)

	CreateNotification(ctx context.Context, n *domain.Notification) error
	GetNotification(ctx context.Context, id string) (*domain.Notification, error)
	// MarkNotificationRead flips the read flag and records the read time.
	// It belongs to the UI/API layer but lives here so retention is testable
	// end to end.
	MarkNotificationRead(ctx context.Context, id string, at time.Time) error
	// DeleteReadNotificationsBefore removes notifications that are read and
	// were read strictly before cutoff. Returns the number deleted.
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// Config controls the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}
