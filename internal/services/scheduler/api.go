package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"billwatch/pkg/logx"
)

var ErrUnknownTask = errors.New("scheduler: unknown task")

// AddSchedule parses schedule and registers either a cron or interval task.
// Registration upserts by name, so repeated registrations (e.g. after a
// config hot reload) never produce duplicate schedules.
//
// Supported schedule formats:
//   - Cron: "*/5 * * * *", "0 3 * * *", "@daily", "@every 15m"
//   - Interval duration: "15m", "2h30m"
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCron(name, ps.Cron, timeout, job)
	case SpecInterval:
		return s.AddInterval(name, ps.Every, timeout, job)
	default:
		return "", fmt.Errorf("unsupported schedule kind")
	}
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		return "", errors.New("name required")
	}
	_ = s.removeScheduleLocked(name)
	id := fmt.Sprintf("cron:%d", time.Now().UnixNano())
	d := scheduleDef{
		id:      id,
		name:    name,
		spec:    spec,
		timeout: s.resolveTimeout(timeout),
		job:     job,
	}
	s.defs = append(s.defs, d)
	if s.c != nil {
		err := s.addCronLocked(&s.defs[len(s.defs)-1])
		if err != nil {
			s.log.Error("schedule register failed",
				logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		} else {
			s.log.Debug("schedule registered",
				logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", d.timeout))
		}
		return id, err
	}
	// Scheduler not started yet: keep definition and register when Start() runs.
	return id, nil
}

func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	if every <= 0 {
		return "", errors.New("interval must be > 0")
	}
	return s.AddCron(name, fmt.Sprintf("@every %s", every.String()), timeout, job)
}

// AddDaily registers a daily task at HH:MM (scheduler timezone).
func (s *Service) AddDaily(name string, atHHMM string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return "", err
	}
	return s.AddCron(name, fmt.Sprintf("%d %d * * *", m, h), timeout, job)
}

// TriggerNow enqueues a single out-of-cadence run of the named task.
func (s *Service) TriggerNow(name string) error {
	s.mu.Lock()
	var d *scheduleDef
	for i := range s.defs {
		if s.defs[i].name == name {
			d = &s.defs[i]
			break
		}
	}
	if d == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if s.queue == nil {
		s.mu.Unlock()
		return errors.New("scheduler not running")
	}
	t := task{id: d.id, name: d.name, timeout: d.timeout, run: d.job}
	s.mu.Unlock()

	s.log.Info("task triggered manually", logx.String("task", name))
	s.enqueue(t)
	return nil
}

// Remove unschedules the named task. It returns true if something was
// removed. Safe to call while stopped (it still removes the definition).
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// removeScheduleLocked removes all defs matching name and unregisters them
// from cron if running. Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	removed := false
	if s.c != nil {
		for i := range s.defs {
			if s.defs[i].name == name && s.defs[i].entryID != 0 {
				s.c.Remove(s.defs[i].entryID)
				s.defs[i].entryID = 0
				removed = true
			}
		}
	}
	// remove from persisted defs regardless of running state
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	if n < len(s.defs) {
		s.defs = s.defs[:n]
	}
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	// Capture by value: d points into s.defs, whose backing slots move when
	// definitions are removed and re-appended during hot reload.
	t := task{id: d.id, name: d.name, timeout: d.timeout, run: d.job}
	eid, err := s.c.AddFunc(d.spec, func() {
		s.enqueue(t)
	})
	if err == nil {
		d.entryID = eid
	}
	return err
}
