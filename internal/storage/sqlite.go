package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"billwatch/internal/domain"
	"billwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// SQLite implements Store on a single sqlite database file.
type SQLite struct {
	db  *sql.DB
	log logx.Logger
}

var _ Store = (*SQLite)(nil)

func Open(cfg Config, log logx.Logger) (*SQLite, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &SQLite{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- obligations ----

const obligationCols = `id, user_id, title, amount, category, notes, recurring, recurrence_rule,
	status, due_at, next_due_at, lead_minutes, channels, notify_email, last_notified_at,
	created_at, updated_at`

func (s *SQLite) PutObligation(ctx context.Context, o *domain.Obligation) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO obligations(`+obligationCols+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   user_id=excluded.user_id, title=excluded.title, amount=excluded.amount,
		   category=excluded.category, notes=excluded.notes, recurring=excluded.recurring,
		   recurrence_rule=excluded.recurrence_rule, status=excluded.status,
		   due_at=excluded.due_at, next_due_at=excluded.next_due_at,
		   lead_minutes=excluded.lead_minutes, channels=excluded.channels,
		   notify_email=excluded.notify_email, last_notified_at=excluded.last_notified_at,
		   updated_at=excluded.updated_at`,
		o.ID, o.UserID, o.Title, o.Amount, o.Category, o.Notes, boolInt(o.Recurring),
		o.RecurrenceRule, string(o.Status), unixMS(o.DueDate), nullMS(o.NextDueDate),
		o.ReminderLeadMinutes, domain.JoinChannels(o.Channels), o.NotifyEmail,
		nullMS(o.LastNotifiedAt), unixMS(o.CreatedAt), unixMS(o.UpdatedAt),
	)
	return err
}

func (s *SQLite) GetObligation(ctx context.Context, id string) (*domain.Obligation, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+obligationCols+` FROM obligations WHERE id = ?`, id)
	o, err := scanObligation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("obligation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *SQLite) FindActiveDueBetween(ctx context.Context, start, end time.Time) ([]domain.Obligation, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+obligationCols+` FROM obligations
		 WHERE status = ? AND COALESCE(next_due_at, due_at) BETWEEN ? AND ?
		 ORDER BY COALESCE(next_due_at, due_at)`,
		string(domain.StatusActive), unixMS(start), unixMS(end),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObligation(r rowScanner) (*domain.Obligation, error) {
	var (
		o          domain.Obligation
		recurring  int64
		status     string
		dueAt      int64
		nextDueAt  sql.NullInt64
		channels   string
		notifiedAt sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	err := r.Scan(&o.ID, &o.UserID, &o.Title, &o.Amount, &o.Category, &o.Notes,
		&recurring, &o.RecurrenceRule, &status, &dueAt, &nextDueAt, &o.ReminderLeadMinutes,
		&channels, &o.NotifyEmail, &notifiedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	o.Recurring = recurring != 0
	o.Status = domain.Status(status)
	o.DueDate = fromMS(dueAt)
	o.NextDueDate = ptrMS(nextDueAt)
	o.Channels = domain.ParseChannels(channels)
	o.LastNotifiedAt = ptrMS(notifiedAt)
	o.CreatedAt = fromMS(createdAt)
	o.UpdatedAt = fromMS(updatedAt)
	return &o, nil
}

// ---- users ----

func (s *SQLite) PutUser(ctx context.Context, u *domain.User) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, name, email, telegram_chat_id, created_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, email=excluded.email,
		   telegram_chat_id=excluded.telegram_chat_id`,
		u.ID, u.Name, u.Email, u.TelegramChatID, unixMS(u.CreatedAt),
	)
	return err
}

func (s *SQLite) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	var (
		u         domain.User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, telegram_chat_id, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.TelegramChatID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromMS(createdAt)
	return &u, nil
}

// ---- notifications ----

func (s *SQLite) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications(id, user_id, kind, title, message, obligation_id,
		   priority, read, read_at, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Kind, n.Title, n.Message, n.ObligationID,
		string(n.Priority), boolInt(n.Read), nullMS(n.ReadAt), unixMS(n.CreatedAt),
	)
	return err
}

func (s *SQLite) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	var (
		n         domain.Notification
		priority  string
		read      int64
		readAt    sql.NullInt64
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, kind, title, message, obligation_id, priority, read, read_at, created_at
		 FROM notifications WHERE id = ?`, id).
		Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &n.ObligationID,
			&priority, &read, &readAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	n.Priority = domain.Priority(priority)
	n.Read = read != 0
	n.ReadAt = ptrMS(readAt)
	n.CreatedAt = fromMS(createdAt)
	return &n, nil
}

func (s *SQLite) MarkNotificationRead(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1, read_at = ? WHERE id = ?`,
		unixMS(at), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return err
}

func (s *SQLite) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE read = 1 AND read_at IS NOT NULL AND read_at < ?`,
		unixMS(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- time/bool encoding ----

func unixMS(t time.Time) int64 { return t.UnixMilli() }

func fromMS(ms int64) time.Time { return time.UnixMilli(ms) }

func nullMS(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func ptrMS(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
