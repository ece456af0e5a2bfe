// Package scanner finds obligations that are due soon and hands them to the
// dispatcher. It is the heart of the reminder pipeline: the scheduler runs
// Scan on a fixed cadence, and a manual trigger runs the same code path.
package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"billwatch/internal/domain"
	"billwatch/internal/services/dispatch"
	"billwatch/internal/storage"
	"billwatch/pkg/logx"
)

// Store is the slice of the persistence layer the scanner needs.
type Store interface {
	FindActiveDueBetween(ctx context.Context, start, end time.Time) ([]domain.Obligation, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	PutObligation(ctx context.Context, ob *domain.Obligation) error
}

// Notifier dispatches one reminder across the obligation's channels.
type Notifier interface {
	Dispatch(ctx context.Context, ob *domain.Obligation, u *domain.User) dispatch.Aggregate
}

type Config struct {
	// ScanWindow is how far ahead of now the scan looks for due dates.
	ScanWindow time.Duration
	// SuppressWindow is the minimum gap between two reminders for the same
	// obligation.
	SuppressWindow time.Duration
}

type Scanner struct {
	log      logx.Logger
	store    Store
	notifier Notifier
	now      func() time.Time

	mu  sync.Mutex
	cfg Config
}

func New(log logx.Logger, store Store, notifier Notifier, cfg Config) *Scanner {
	return &Scanner{log: log, store: store, notifier: notifier, cfg: cfg, now: time.Now}
}

// Apply swaps the window settings. The scanner itself is stateless between
// runs, so this takes effect on the next Scan.
func (s *Scanner) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Scan runs one pass over obligations due within the scan window. It never
// returns a per-obligation error: a bad record is logged and skipped so the
// rest of the batch still gets its reminders. The returned error is only for
// failures that abort the whole pass, like the store query.
func (s *Scanner) Scan(ctx context.Context) error {
	return s.scanAt(ctx, s.now())
}

func (s *Scanner) scanAt(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	end := now.Add(cfg.ScanWindow)
	obs, err := s.store.FindActiveDueBetween(ctx, now, end)
	if err != nil {
		s.log.Error("due-obligation query failed", logx.Err(err))
		return err
	}

	notified := 0
	for i := range obs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.processOne(ctx, &obs[i], now, cfg.SuppressWindow) {
			notified++
		}
	}
	s.log.Info("reminder scan finished",
		logx.Int("candidates", len(obs)), logx.Int("notified", notified),
		logx.Time("window_end", end))
	return nil
}

// processOne decides eligibility for a single obligation and dispatches if it
// qualifies. It reports whether a reminder went out.
func (s *Scanner) processOne(ctx context.Context, ob *domain.Obligation, now time.Time, suppressWindow time.Duration) bool {
	// Lead time gate: remind only once the due date is within the user's
	// configured lead. Negative minutes (overdue) always qualify.
	if ob.MinutesUntilDue(now) > ob.ReminderLeadMinutes {
		return false
	}
	// Suppression gate: one reminder per obligation per suppress window.
	if ob.LastNotifiedAt != nil && now.Sub(*ob.LastNotifiedAt) < suppressWindow {
		return false
	}
	if len(ob.Channels) == 0 {
		return false
	}

	u, err := s.store.GetUser(ctx, ob.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("obligation references missing user",
				logx.String("obligation_id", ob.ID), logx.String("user_id", ob.UserID))
		} else {
			s.log.Error("user lookup failed",
				logx.String("obligation_id", ob.ID), logx.Err(err))
		}
		return false
	}

	agg := s.notifier.Dispatch(ctx, ob, u)
	if !agg.OverallSuccess {
		return false
	}

	ts := now
	ob.LastNotifiedAt = &ts
	if err := s.store.PutObligation(ctx, ob); err != nil {
		// Next scan may re-send this reminder; better a duplicate than a
		// missed bill.
		s.log.Error("failed to record notification time",
			logx.String("obligation_id", ob.ID), logx.Err(err))
	}
	return true
}
