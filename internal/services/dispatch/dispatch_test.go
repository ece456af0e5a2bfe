package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"billwatch/internal/domain"
	"billwatch/pkg/logx"
)

func testFormatter(t *testing.T) *Formatter {
	t.Helper()
	f, err := NewFormatter("en-IN", "INR", time.UTC)
	if err != nil {
		t.Fatalf("NewFormatter: %v", err)
	}
	return f
}

func testObligation(channels ...domain.Channel) *domain.Obligation {
	due := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	return &domain.Obligation{
		ID:       "ob-1",
		UserID:   "u-1",
		Title:    "Electricity Bill",
		Amount:   1500,
		Status:   domain.StatusActive,
		DueDate:  due,
		Channels: channels,
	}
}

type fakeEmailGW struct {
	to, subject, body string
	err               error
}

func (f *fakeEmailGW) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	f.to, f.subject, f.body = to, subject, htmlBody
	if f.err != nil {
		return "", f.err
	}
	return "msg-123", nil
}

type fakeNotifStore struct {
	created []*domain.Notification
	err     error
}

func (f *fakeNotifStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, n)
	return nil
}

func TestDispatchOnlyRequestedChannels(t *testing.T) {
	t.Parallel()
	f := testFormatter(t)
	gw := &fakeEmailGW{}
	store := &fakeNotifStore{}
	d := New(logx.Nop(),
		NewEmailSender(logx.Nop(), gw, f, 0),
		NewInAppSender(logx.Nop(), store, f),
	)

	ob := testObligation(domain.ChannelEmail)
	u := &domain.User{ID: "u-1", Email: "a@example.com"}
	agg := d.Dispatch(context.Background(), ob, u)

	if !agg.OverallSuccess {
		t.Fatal("expected overall success")
	}
	if agg.Email == nil || !agg.Email.OK {
		t.Fatalf("email result = %+v, want ok", agg.Email)
	}
	if agg.Push != nil || agg.InApp != nil {
		t.Fatal("unrequested channels must stay nil")
	}
	if gw.to != "a@example.com" {
		t.Fatalf("sent to %q", gw.to)
	}
}

func TestEmailNotifyAddressWins(t *testing.T) {
	t.Parallel()
	gw := &fakeEmailGW{}
	s := NewEmailSender(logx.Nop(), gw, testFormatter(t), 0)

	ob := testObligation(domain.ChannelEmail)
	ob.NotifyEmail = "bills@example.com"
	res := s.Send(context.Background(), ob, &domain.User{Email: "a@example.com"})
	if !res.OK {
		t.Fatalf("send failed: %s", res.Detail)
	}
	if gw.to != "bills@example.com" {
		t.Fatalf("sent to %q, want obligation address", gw.to)
	}
}

func TestEmailBodyEscapesUserFields(t *testing.T) {
	t.Parallel()
	gw := &fakeEmailGW{}
	s := NewEmailSender(logx.Nop(), gw, testFormatter(t), 0)

	ob := testObligation(domain.ChannelEmail)
	ob.Title = `Rent <b>"big"</b>`
	ob.Category = "bills & rent"
	ob.Notes = "<script>alert(1)</script>"

	res := s.Send(context.Background(), ob, &domain.User{Email: "a@example.com"})
	if !res.OK {
		t.Fatalf("send failed: %s", res.Detail)
	}
	for _, raw := range []string{"<script>", "<b>"} {
		if strings.Contains(gw.body, raw) {
			t.Fatalf("body contains unescaped %q:\n%s", raw, gw.body)
		}
	}
	for _, escaped := range []string{"&lt;script&gt;", "bills &amp; rent", "&lt;b&gt;"} {
		if !strings.Contains(gw.body, escaped) {
			t.Fatalf("body missing %q:\n%s", escaped, gw.body)
		}
	}
}

func TestEmailNoAddress(t *testing.T) {
	t.Parallel()
	s := NewEmailSender(logx.Nop(), &fakeEmailGW{}, testFormatter(t), 0)
	res := s.Send(context.Background(), testObligation(domain.ChannelEmail), &domain.User{})
	if res.OK {
		t.Fatal("expected failure without any address")
	}
}

func TestDispatchMixedChannelOutcomes(t *testing.T) {
	t.Parallel()
	f := testFormatter(t)
	gw := &fakeEmailGW{}
	store := &fakeNotifStore{err: errors.New("disk full")}
	d := New(logx.Nop(),
		NewEmailSender(logx.Nop(), gw, f, 0),
		NewInAppSender(logx.Nop(), store, f),
	)

	ob := testObligation(domain.ChannelEmail, domain.ChannelInApp)
	u := &domain.User{ID: "u-1", Email: "a@example.com"}
	agg := d.Dispatch(context.Background(), ob, u)

	// One broken channel must neither block the other nor fail the dispatch.
	if agg.Email == nil || !agg.Email.OK {
		t.Fatalf("email result = %+v, want ok", agg.Email)
	}
	if agg.InApp == nil || agg.InApp.OK {
		t.Fatalf("inapp result = %+v, want failure", agg.InApp)
	}
	if !agg.OverallSuccess {
		t.Fatal("expected overall success with mixed channel outcomes")
	}
	if gw.to != "a@example.com" {
		t.Fatalf("email sent to %q", gw.to)
	}
}

func TestInAppStoreFailureIsAbsorbed(t *testing.T) {
	t.Parallel()
	f := testFormatter(t)
	store := &fakeNotifStore{err: errors.New("disk full")}
	d := New(logx.Nop(), NewInAppSender(logx.Nop(), store, f))

	agg := d.Dispatch(context.Background(), testObligation(domain.ChannelInApp), &domain.User{})
	if !agg.OverallSuccess {
		t.Fatal("overall success must not depend on channel outcome")
	}
	if agg.InApp == nil || agg.InApp.OK {
		t.Fatalf("inapp result = %+v, want failure", agg.InApp)
	}
}

func TestInAppOverdueHighPriority(t *testing.T) {
	t.Parallel()
	store := &fakeNotifStore{}
	s := NewInAppSender(logx.Nop(), store, testFormatter(t))
	s.now = func() time.Time { return time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC) }

	res := s.Send(context.Background(), testObligation(domain.ChannelInApp), nil)
	if !res.OK {
		t.Fatalf("send failed: %s", res.Detail)
	}
	if len(store.created) != 1 {
		t.Fatalf("created = %d notifications", len(store.created))
	}
	if store.created[0].Priority != domain.PriorityHigh {
		t.Fatalf("priority = %s, want high", store.created[0].Priority)
	}
}

type fakePushGW struct {
	chatID       int64
	obligationID string
}

func (f *fakePushGW) Push(ctx context.Context, chatID int64, text string, obligationID string) (string, error) {
	f.chatID = chatID
	f.obligationID = obligationID
	return "778899", nil
}

func TestPushCarriesMessageID(t *testing.T) {
	t.Parallel()
	gw := &fakePushGW{}
	s := NewPushSender(logx.Nop(), gw, testFormatter(t), 0)

	res := s.Send(context.Background(), testObligation(domain.ChannelPush), &domain.User{TelegramChatID: 42})
	if !res.OK {
		t.Fatalf("send failed: %s", res.Detail)
	}
	if res.Detail != "778899" {
		t.Fatalf("detail = %q, want gateway message id", res.Detail)
	}
	if gw.chatID != 42 || gw.obligationID != "ob-1" {
		t.Fatalf("gateway got chat=%d obligation=%q", gw.chatID, gw.obligationID)
	}
}

func TestPushNotConfigured(t *testing.T) {
	t.Parallel()
	s := NewPushSender(logx.Nop(), nil, testFormatter(t), 0)
	res := s.Send(context.Background(), testObligation(domain.ChannelPush), &domain.User{TelegramChatID: 42})
	if res.OK || res.Detail != "not configured" {
		t.Fatalf("result = %+v, want not configured failure", res)
	}
}

type panickySender struct{}

func (panickySender) Channel() domain.Channel { return domain.ChannelPush }
func (panickySender) Send(ctx context.Context, ob *domain.Obligation, u *domain.User) Result {
	panic("wire fault")
}

func TestDispatchRecoversSenderPanic(t *testing.T) {
	t.Parallel()
	d := New(logx.Nop(), panickySender{})
	agg := d.Dispatch(context.Background(), testObligation(domain.ChannelPush), &domain.User{})
	if !agg.OverallSuccess {
		t.Fatal("panic must not abort dispatch")
	}
	if agg.Push == nil || agg.Push.OK {
		t.Fatalf("push result = %+v, want failure", agg.Push)
	}
	if !strings.Contains(agg.Push.Detail, "panic") {
		t.Fatalf("detail = %q", agg.Push.Detail)
	}
}

func TestFormatterAmountGrouping(t *testing.T) {
	t.Parallel()
	f := testFormatter(t)
	got := f.Amount(1500)
	if !strings.Contains(got, "1,500") {
		t.Fatalf("Amount(1500) = %q, want grouped digits", got)
	}
}

func TestFormatterOverdueSubject(t *testing.T) {
	t.Parallel()
	f := testFormatter(t)
	ob := testObligation()
	after := ob.DueDate.Add(24 * time.Hour)
	if got := f.Subject(ob, after); !strings.HasPrefix(got, "Overdue:") {
		t.Fatalf("subject = %q", got)
	}
	before := ob.DueDate.Add(-time.Hour)
	if got := f.Subject(ob, before); !strings.HasPrefix(got, "Payment due:") {
		t.Fatalf("subject = %q", got)
	}
}
