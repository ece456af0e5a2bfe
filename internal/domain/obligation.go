package domain

import (
	"math"
	"strings"
	"time"
)

// Status is the lifecycle state of an obligation. Only active obligations are
// ever picked up by the reminder scan; the other transitions belong to the
// CRUD layer.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Channel is one independent delivery mechanism for a reminder.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "inapp"
)

// Obligation is a one-time or recurring financial due-date record (bill, EMI,
// subscription) the user wants to be reminded about.
type Obligation struct {
	ID     string
	UserID string

	Title    string
	Amount   float64
	Category string
	Notes    string

	Recurring      bool
	RecurrenceRule string
	Status         Status

	// DueDate is the originally scheduled time. NextDueDate, when set,
	// overrides it (recurring obligations that already fired once).
	DueDate     time.Time
	NextDueDate *time.Time

	// ReminderLeadMinutes is how many minutes before the effective due time
	// notification should begin firing.
	ReminderLeadMinutes int

	Channels []Channel
	// NotifyEmail overrides the owning user's registered email when set.
	NotifyEmail string

	// LastNotifiedAt is updated only after a dispatch attempt reports overall
	// success. It is the only field the reminder pipeline itself mutates.
	LastNotifiedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveDueDate returns NextDueDate when present, DueDate otherwise.
func (o *Obligation) EffectiveDueDate() time.Time {
	if o.NextDueDate != nil && !o.NextDueDate.IsZero() {
		return *o.NextDueDate
	}
	return o.DueDate
}

// MinutesUntilDue returns floor((effectiveDue - now) / 1m). Negative when the
// obligation is already overdue.
func (o *Obligation) MinutesUntilDue(now time.Time) int {
	d := o.EffectiveDueDate().Sub(now)
	return int(math.Floor(d.Minutes()))
}

// OverdueAt reports whether the effective due time has already passed.
func (o *Obligation) OverdueAt(now time.Time) bool {
	return o.EffectiveDueDate().Before(now)
}

// HasChannel reports whether delivery on c is enabled for this obligation.
func (o *Obligation) HasChannel(c Channel) bool {
	for _, have := range o.Channels {
		if have == c {
			return true
		}
	}
	return false
}

// ParseChannels decodes a comma-separated channel list (the storage encoding).
// Unknown names are dropped.
func ParseChannels(s string) []Channel {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]Channel, 0, len(parts))
	for _, p := range parts {
		switch c := Channel(strings.TrimSpace(p)); c {
		case ChannelEmail, ChannelPush, ChannelInApp:
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// JoinChannels is the inverse of ParseChannels.
func JoinChannels(cs []Channel) string {
	if len(cs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, string(c))
	}
	return strings.Join(parts, ",")
}
