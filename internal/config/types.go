package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the whole billwatch.yaml. Unknown keys are rejected at load time
// so stale/misspelled settings are caught early.
//
// All duration-typed fields are Go duration strings (e.g. "10s", "15m", "2h").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Reminder  ReminderConfig  `json:"reminder"`
	Email     EmailConfig     `json:"email"`
	Push      PushConfig      `json:"push"`
	Format    FormatConfig    `json:"format"`
	Ops       OpsConfig       `json:"ops,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type SchedulerConfig struct {
	Workers int `json:"workers,omitempty"`
	// DefaultTimeout bounds a single task run. "0s" disables the bound.
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	Timezone       string `json:"timezone,omitempty"` // IANA TZ, e.g. "Asia/Kolkata"
}

// ReminderConfig tunes the due-date scan pipeline.
type ReminderConfig struct {
	// ScanInterval is the cadence of the due-obligation scan.
	ScanInterval string `json:"scan_interval,omitempty"` // default 15m
	// ScanWindow is the forward-looking notice window.
	ScanWindow string `json:"scan_window,omitempty"` // default 2h
	// SuppressWindow bounds notification frequency per obligation.
	SuppressWindow string `json:"suppress_window,omitempty"` // default 12h
	// CleanupSchedule is a cron spec (scheduler timezone) for the
	// notification retention sweep.
	CleanupSchedule string `json:"cleanup_schedule,omitempty"` // default "0 3 * * *"
	// RetentionDays keeps read in-app notifications this many days after
	// they were read.
	RetentionDays int `json:"retention_days,omitempty"` // default 30
}

type EmailConfig struct {
	Enabled    bool   `json:"enabled"`
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"` // do not log
	From       string `json:"from,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// PushConfig configures the Telegram-backed push gateway. An empty token is a
// normal runtime state (push channel degrades to "not configured").
type PushConfig struct {
	Enabled       bool   `json:"enabled"`
	TelegramToken string `json:"telegram_token,omitempty"` // do not log
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
}

// FormatConfig controls locale-sensitive rendering of amounts and due times
// in outgoing notifications.
type FormatConfig struct {
	Locale   string `json:"locale,omitempty"`   // BCP 47, default "en-IN"
	Currency string `json:"currency,omitempty"` // ISO 4217, default "INR"
}

type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address,omitempty"` // default "127.0.0.1:8686"
}

// Defaults for omitted fields.
const (
	DefaultScanInterval    = 15 * time.Minute
	DefaultScanWindow      = 2 * time.Hour
	DefaultSuppressWindow  = 12 * time.Hour
	DefaultCleanupSchedule = "0 3 * * *"
	DefaultRetentionDays   = 30
	DefaultOpsAddress      = "127.0.0.1:8686"
	DefaultLocale          = "en-IN"
	DefaultCurrency        = "INR"
)

// ParseDurationField parses a Go duration string coming from config,
// annotating errors with the config path of the offending field.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Validate rejects configs that cannot be applied. It is also the hook the
// watcher runs before publishing a reloaded config.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.default_timeout", c.Scheduler.DefaultTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("reminder.scan_interval", c.Reminder.ScanInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("reminder.scan_window", c.Reminder.ScanWindow); err != nil {
		return err
	}
	if _, err := ParseDurationField("reminder.suppress_window", c.Reminder.SuppressWindow); err != nil {
		return err
	}
	if c.Reminder.RetentionDays < 0 {
		return errors.New("reminder.retention_days must be >= 0")
	}
	if c.Email.Enabled {
		if strings.TrimSpace(c.Email.Host) == "" {
			return errors.New("email.host is required when email.enabled")
		}
		if strings.TrimSpace(c.Email.From) == "" {
			return errors.New("email.from is required when email.enabled")
		}
	}
	return nil
}

// ScanInterval returns the effective scan cadence.
func (c *Config) ScanInterval() time.Duration {
	d, err := ParseDurationOrDefault("reminder.scan_interval", c.Reminder.ScanInterval, DefaultScanInterval)
	if err != nil {
		return DefaultScanInterval
	}
	return d
}

// ScanWindow returns the effective forward-looking notice window.
func (c *Config) ScanWindow() time.Duration {
	d, err := ParseDurationOrDefault("reminder.scan_window", c.Reminder.ScanWindow, DefaultScanWindow)
	if err != nil {
		return DefaultScanWindow
	}
	return d
}

// SuppressWindow returns the effective per-obligation notification cooldown.
func (c *Config) SuppressWindow() time.Duration {
	d, err := ParseDurationOrDefault("reminder.suppress_window", c.Reminder.SuppressWindow, DefaultSuppressWindow)
	if err != nil {
		return DefaultSuppressWindow
	}
	return d
}

// CleanupSchedule returns the cron spec for the retention sweep.
func (c *Config) CleanupSchedule() string {
	if strings.TrimSpace(c.Reminder.CleanupSchedule) == "" {
		return DefaultCleanupSchedule
	}
	return strings.TrimSpace(c.Reminder.CleanupSchedule)
}

// RetentionAge returns how long read notifications are kept after reading.
func (c *Config) RetentionAge() time.Duration {
	days := c.Reminder.RetentionDays
	if days <= 0 {
		days = DefaultRetentionDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// OpsAddress returns the ops listener address with default applied.
func (c *Config) OpsAddress() string {
	if strings.TrimSpace(c.Ops.Address) == "" {
		return DefaultOpsAddress
	}
	return c.Ops.Address
}

// Locale returns the configured BCP 47 tag with default applied.
func (c *Config) Locale() string {
	if strings.TrimSpace(c.Format.Locale) == "" {
		return DefaultLocale
	}
	return strings.TrimSpace(c.Format.Locale)
}

// Currency returns the configured ISO 4217 code with default applied.
func (c *Config) Currency() string {
	if strings.TrimSpace(c.Format.Currency) == "" {
		return DefaultCurrency
	}
	return strings.ToUpper(strings.TrimSpace(c.Format.Currency))
}
