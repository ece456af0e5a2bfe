package domain

import "time"

// User is the owning account of one or more obligations. The reminder
// pipeline only reads it; creation and edits happen elsewhere.
type User struct {
	ID    string
	Name  string
	Email string

	// TelegramChatID is the push-gateway routing tag. Zero means the user
	// never linked a push destination.
	TelegramChatID int64

	CreatedAt time.Time
}
