// Package app wires configuration, storage, the scheduler and the reminder
// pipeline into one runnable unit for cmd/billwatch.
package app

import (
	"context"
	"fmt"
	"time"

	"billwatch/internal/config"
	"billwatch/internal/ops"
	"billwatch/internal/services/dispatch"
	"billwatch/internal/services/retention"
	"billwatch/internal/services/scanner"
	"billwatch/internal/services/scheduler"
	"billwatch/internal/storage"
	"billwatch/pkg/logx"
)

const (
	taskScan    = "reminder.scan"
	taskCleanup = "notification.cleanup"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store   *storage.SQLite
	sched   *scheduler.Service
	scan    *scanner.Scanner
	cleaner *retention.Cleaner
	opsSrv  *ops.Server

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	defaultTimeout, err := config.ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	schedSvc := scheduler.New(scheduler.Config{
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: defaultTimeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		Timezone:       cfg.Scheduler.Timezone,
	}, log.With(logx.String("comp", "scheduler")))

	dispatcher, err := buildDispatcher(log, store, cfg)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	scan := scanner.New(log.With(logx.String("comp", "scanner")), store, dispatcher, scanner.Config{
		ScanWindow:     cfg.ScanWindow(),
		SuppressWindow: cfg.SuppressWindow(),
	})
	cleaner := retention.New(log.With(logx.String("comp", "retention")), store, cfg.RetentionAge())

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		sched:   schedSvc,
		scan:    scan,
		cleaner: cleaner,
	}
	a.opsSrv = ops.NewServer(log, schedSvc.Snapshot, a.TriggerScanNow)
	return a, nil
}

// buildDispatcher assembles the channel senders from config. Disabled
// channels still get a sender so their obligations report "not configured"
// instead of silently vanishing from dispatch results.
func buildDispatcher(log logx.Logger, store *storage.SQLite, cfg *config.Config) (*dispatch.Dispatcher, error) {
	f, err := dispatch.NewFormatter(cfg.Locale(), cfg.Currency(), time.Local)
	if err != nil {
		return nil, err
	}

	var emailGW dispatch.EmailGateway
	if cfg.Email.Enabled {
		emailGW = dispatch.NewSMTPGateway(dispatch.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		})
	}

	var pushGW dispatch.PushGateway
	if cfg.Push.Enabled && cfg.Push.TelegramToken != "" {
		gw, err := dispatch.NewTelegramGateway(cfg.Push.TelegramToken)
		if err != nil {
			return nil, fmt.Errorf("push gateway: %w", err)
		}
		pushGW = gw
	}

	return dispatch.New(log.With(logx.String("comp", "dispatch")),
		dispatch.NewEmailSender(log.With(logx.String("comp", "email")), emailGW, f, float64(cfg.Email.RatePerSec)),
		dispatch.NewPushSender(log.With(logx.String("comp", "push")), pushGW, f, float64(cfg.Push.RatePerSec)),
		dispatch.NewInAppSender(log.With(logx.String("comp", "inapp")), store, f),
	), nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	a.sched.Start(ctx)
	if err := a.registerTasks(cfg); err != nil {
		return err
	}

	a.opsSrv.Apply(ctx, ops.Config{Enabled: cfg.Ops.Enabled, Address: cfg.OpsAddress()})

	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.watchDone = make(chan struct{})
	updates := a.cfgm.Subscribe(1)
	go func() {
		defer close(a.watchDone)
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-watchCtx.Done():
				return
			case cfg := <-updates:
				if cfg == nil {
					return
				}
				a.applyConfig(watchCtx, cfg)
			}
		}
	}()
	go func() {
		if err := a.cfgm.Watch(watchCtx); err != nil && watchCtx.Err() == nil {
			a.log.Warn("config watcher exited", logx.Err(err))
		}
	}()

	a.log.Info("billwatch started",
		logx.Duration("scan_interval", cfg.ScanInterval()),
		logx.Duration("scan_window", cfg.ScanWindow()),
		logx.Duration("suppress_window", cfg.SuppressWindow()))
	return nil
}

func (a *App) registerTasks(cfg *config.Config) error {
	if _, err := a.sched.AddInterval(taskScan, cfg.ScanInterval(), 0, a.scan.Scan); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	if _, err := a.sched.AddCron(taskCleanup, cfg.CleanupSchedule(), 0, func(ctx context.Context) error {
		_, err := a.cleaner.Cleanup(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("register cleanup task: %w", err)
	}
	return nil
}

// applyConfig pushes a hot-reloaded config into the running services.
// Gateway credentials are intentionally not hot-swapped; those changes need
// a restart.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	defaultTimeout, err := config.ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout)
	if err == nil {
		a.sched.Apply(scheduler.Config{
			Workers:        cfg.Scheduler.Workers,
			DefaultTimeout: defaultTimeout,
			HistorySize:    cfg.Scheduler.HistorySize,
			Timezone:       cfg.Scheduler.Timezone,
		})
	}

	a.scan.Apply(scanner.Config{
		ScanWindow:     cfg.ScanWindow(),
		SuppressWindow: cfg.SuppressWindow(),
	})
	a.cleaner.Apply(cfg.RetentionAge())

	// Re-registering upserts by name, so cadence changes take effect without
	// duplicating schedules.
	if err := a.registerTasks(cfg); err != nil {
		a.log.Error("failed to re-register tasks after reload", logx.Err(err))
	}

	a.opsSrv.Apply(ctx, ops.Config{Enabled: cfg.Ops.Enabled, Address: cfg.OpsAddress()})
	a.log.Info("configuration reloaded")
}

// TriggerScanNow runs one immediate scan out of cadence.
func (a *App) TriggerScanNow() error {
	return a.sched.TriggerNow(taskScan)
}

func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
		select {
		case <-a.watchDone:
		case <-ctx.Done():
		}
		a.watchCancel = nil
	}

	a.opsSrv.Stop(ctx)
	a.sched.Stop(ctx)

	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = err
	}
	a.log.Info("billwatch stopped")
	if err := a.logs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
