package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"billwatch/internal/domain"
	"billwatch/pkg/logx"
)

// NotificationCreator persists in-app notification records.
type NotificationCreator interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
}

// InAppSender writes the reminder into the notifications store so clients
// can list it. Overdue obligations are stored with high priority.
type InAppSender struct {
	log   logx.Logger
	store NotificationCreator
	fmt   *Formatter
	now   func() time.Time
}

func NewInAppSender(log logx.Logger, store NotificationCreator, f *Formatter) *InAppSender {
	return &InAppSender{log: log, store: store, fmt: f, now: time.Now}
}

func (s *InAppSender) Channel() domain.Channel { return domain.ChannelInApp }

func (s *InAppSender) Send(ctx context.Context, ob *domain.Obligation, u *domain.User) Result {
	now := s.now()
	prio := domain.PriorityNormal
	if ob.OverdueAt(now) {
		prio = domain.PriorityHigh
	}
	n := &domain.Notification{
		ID:           uuid.NewString(),
		UserID:       ob.UserID,
		Kind:         "payment_reminder",
		Title:        s.fmt.Subject(ob, now),
		Message:      s.fmt.Body(ob, now),
		ObligationID: ob.ID,
		Priority:     prio,
		CreatedAt:    now,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return failure(err.Error())
	}
	s.log.Debug("in-app reminder stored",
		logx.String("obligation_id", ob.ID), logx.String("notification_id", n.ID))
	return ok(n.ID)
}
