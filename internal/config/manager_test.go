package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "billwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

const minimalYAML = `
storage:
  path: ./data/billwatch.db
`

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, minimalYAML)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.ScanInterval(); got != DefaultScanInterval {
		t.Fatalf("ScanInterval = %v, want %v", got, DefaultScanInterval)
	}
	if got := cfg.ScanWindow(); got != DefaultScanWindow {
		t.Fatalf("ScanWindow = %v, want %v", got, DefaultScanWindow)
	}
	if got := cfg.SuppressWindow(); got != DefaultSuppressWindow {
		t.Fatalf("SuppressWindow = %v, want %v", got, DefaultSuppressWindow)
	}
	if got := cfg.CleanupSchedule(); got != DefaultCleanupSchedule {
		t.Fatalf("CleanupSchedule = %q", got)
	}
	if got := cfg.RetentionAge(); got != 30*24*time.Hour {
		t.Fatalf("RetentionAge = %v", got)
	}
	if got := cfg.Locale(); got != "en-IN" {
		t.Fatalf("Locale = %q", got)
	}
	if got := cfg.Currency(); got != "INR" {
		t.Fatalf("Currency = %q", got)
	}
}

func TestLoadParsesReminderSettings(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
storage:
  path: ./db.sqlite
reminder:
  scan_interval: 5m
  scan_window: 1h
  suppress_window: 6h
  retention_days: 10
format:
  locale: en-US
  currency: usd
`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ScanInterval() != 5*time.Minute || cfg.ScanWindow() != time.Hour || cfg.SuppressWindow() != 6*time.Hour {
		t.Fatalf("window settings not applied: %+v", cfg.Reminder)
	}
	if cfg.RetentionAge() != 10*24*time.Hour {
		t.Fatalf("RetentionAge = %v", cfg.RetentionAge())
	}
	if cfg.Currency() != "USD" {
		t.Fatalf("Currency = %q, want upper-cased", cfg.Currency())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
storage:
  path: ./db.sqlite
remidner:
  scan_interval: 5m
`)
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for misspelled section")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
storage:
  path: ./db.sqlite
reminder:
  scan_interval: every now and then
`)
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadRequiresStoragePath(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
logging:
  level: debug
`)
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for missing storage.path")
	}
}

func TestValidateEmailRequirements(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Storage: StorageConfig{Path: "./db.sqlite"},
		Email:   EmailConfig{Enabled: true},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled email without host")
	}
	cfg.Email.Host = "smtp.example.com"
	cfg.Email.From = "billwatch@example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, minimalYAML)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	next := &Config{Storage: StorageConfig{Path: "./other.db"}}
	m.Commit(next)
	m.publish(next)

	select {
	case got := <-ch:
		if got.Storage.Path != "./other.db" {
			t.Fatalf("published path = %q", got.Storage.Path)
		}
	case <-time.After(time.Second):
		t.Fatal("no config published")
	}
}
