package domain

import "time"

// Priority of an in-app notification record.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is the in-app channel's persisted artifact. Read/unread
// transitions belong to the UI/API layer; deletion happens only through the
// retention cleanup task.
type Notification struct {
	ID     string
	UserID string

	Kind    string
	Title   string
	Message string

	// ObligationID references the obligation this notification was produced
	// for, used by clients for deep-linking.
	ObligationID string

	Priority Priority

	Read   bool
	ReadAt *time.Time

	CreatedAt time.Time
}
