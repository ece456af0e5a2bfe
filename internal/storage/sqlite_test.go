package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"billwatch/internal/domain"
	"billwatch/pkg/logx"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	st, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "billwatch.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func msRound(t time.Time) time.Time { return time.UnixMilli(t.UnixMilli()) }

func TestObligationRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	due := msRound(time.Now().Add(5 * time.Hour).UTC())
	next := msRound(due.Add(30 * 24 * time.Hour))
	notified := msRound(time.Now().Add(-13 * time.Hour).UTC())
	ob := &domain.Obligation{
		ID:                  "ob-1",
		UserID:              "u-1",
		Title:               "Internet Bill",
		Amount:              999.5,
		Category:            "utilities",
		Notes:               "autopay disabled",
		Recurring:           true,
		RecurrenceRule:      "monthly",
		Status:              domain.StatusActive,
		DueDate:             due,
		NextDueDate:         &next,
		ReminderLeadMinutes: 120,
		Channels:            []domain.Channel{domain.ChannelEmail, domain.ChannelInApp},
		NotifyEmail:         "bills@example.com",
		LastNotifiedAt:      &notified,
	}
	if err := st.PutObligation(ctx, ob); err != nil {
		t.Fatalf("PutObligation: %v", err)
	}

	got, err := st.GetObligation(ctx, "ob-1")
	if err != nil {
		t.Fatalf("GetObligation: %v", err)
	}
	if got.Title != ob.Title || got.Amount != ob.Amount || !got.Recurring {
		t.Fatalf("core fields differ: %+v", got)
	}
	if !got.EffectiveDueDate().Equal(next) {
		t.Fatalf("effective due = %v, want %v", got.EffectiveDueDate(), next)
	}
	if got.LastNotifiedAt == nil || !got.LastNotifiedAt.Equal(notified) {
		t.Fatalf("lastNotifiedAt = %v, want %v", got.LastNotifiedAt, notified)
	}
	if len(got.Channels) != 2 {
		t.Fatalf("channels = %v", got.Channels)
	}

	// Upsert: clearing next due must stick.
	got.NextDueDate = nil
	got.Status = domain.StatusPaused
	if err := st.PutObligation(ctx, got); err != nil {
		t.Fatalf("PutObligation update: %v", err)
	}
	again, err := st.GetObligation(ctx, "ob-1")
	if err != nil {
		t.Fatalf("GetObligation: %v", err)
	}
	if again.NextDueDate != nil || again.Status != domain.StatusPaused {
		t.Fatalf("update did not stick: %+v", again)
	}
}

func TestGetObligationNotFound(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	if _, err := st.GetObligation(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFindActiveDueBetween(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := msRound(time.Now().UTC())

	put := func(id string, status domain.Status, due time.Time, next *time.Time) {
		t.Helper()
		if err := st.PutObligation(ctx, &domain.Obligation{
			ID: id, UserID: "u-1", Title: id, Status: status,
			DueDate: due, NextDueDate: next,
			Channels: []domain.Channel{domain.ChannelEmail},
		}); err != nil {
			t.Fatalf("PutObligation(%s): %v", id, err)
		}
	}

	inWindow := msRound(now.Add(time.Hour))
	put("in-window", domain.StatusActive, now.Add(time.Hour), nil)
	put("too-late", domain.StatusActive, now.Add(5*time.Hour), nil)
	put("already-past", domain.StatusActive, now.Add(-time.Hour), nil)
	put("paused", domain.StatusPaused, now.Add(time.Hour), nil)
	// Effective due comes from next_due_at when set.
	put("next-due-wins", domain.StatusActive, now.Add(10*time.Hour), &inWindow)

	got, err := st.FindActiveDueBetween(ctx, now, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("FindActiveDueBetween: %v", err)
	}
	ids := make(map[string]bool, len(got))
	for _, ob := range got {
		ids[ob.ID] = true
	}
	if len(got) != 2 || !ids["in-window"] || !ids["next-due-wins"] {
		t.Fatalf("got %v", ids)
	}
}

func TestUserRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	u := &domain.User{ID: "u-1", Name: "Asha", Email: "asha@example.com", TelegramChatID: 42}
	if err := st.PutUser(ctx, u); err != nil {
		t.Fatalf("PutUser: %v", err)
	}
	got, err := st.GetUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Email != u.Email || got.TelegramChatID != 42 {
		t.Fatalf("user = %+v", got)
	}
	if _, err := st.GetUser(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestNotificationLifecycle(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	n := &domain.Notification{
		ID: "n-1", UserID: "u-1", Kind: "payment_reminder",
		Title: "Payment due", Message: "Internet Bill is due",
		ObligationID: "ob-1", Priority: domain.PriorityHigh,
	}
	if err := st.CreateNotification(ctx, n); err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}

	got, err := st.GetNotification(ctx, "n-1")
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if got.Read || got.ReadAt != nil || got.Priority != domain.PriorityHigh {
		t.Fatalf("notification = %+v", got)
	}

	readAt := msRound(time.Now().UTC())
	if err := st.MarkNotificationRead(ctx, "n-1", readAt); err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	got, err = st.GetNotification(ctx, "n-1")
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if !got.Read || got.ReadAt == nil || !got.ReadAt.Equal(readAt) {
		t.Fatalf("read state = %+v", got)
	}

	if err := st.MarkNotificationRead(ctx, "missing", readAt); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteReadNotificationsBefore(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := msRound(time.Now().UTC())

	create := func(id string, read bool, readAt time.Time) {
		t.Helper()
		n := &domain.Notification{ID: id, UserID: "u-1", Kind: "payment_reminder", Priority: domain.PriorityNormal}
		if err := st.CreateNotification(ctx, n); err != nil {
			t.Fatalf("CreateNotification(%s): %v", id, err)
		}
		if read {
			if err := st.MarkNotificationRead(ctx, id, readAt); err != nil {
				t.Fatalf("MarkNotificationRead(%s): %v", id, err)
			}
		}
	}

	create("old-read", true, now.Add(-31*24*time.Hour))
	create("recent-read", true, now.Add(-29*24*time.Hour))
	create("old-unread", false, time.Time{})

	deleted, err := st.DeleteReadNotificationsBefore(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteReadNotificationsBefore: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if _, err := st.GetNotification(ctx, "old-read"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old-read should be gone, err = %v", err)
	}
	if _, err := st.GetNotification(ctx, "recent-read"); err != nil {
		t.Fatalf("recent-read must survive: %v", err)
	}
	if _, err := st.GetNotification(ctx, "old-unread"); err != nil {
		t.Fatalf("old-unread must survive: %v", err)
	}
}

func TestClosedStore(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	_ = st.Close()
	var nilStore *SQLite
	if err := nilStore.PutObligation(context.Background(), &domain.Obligation{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
