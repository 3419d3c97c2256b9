package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	logx "signalgen/pkg/logx"
)

var ErrUnknownSchedule = errors.New("unknown schedule")

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defs:   map[string]*schedule{},
	}
}

// AddSchedule registers job under name, replacing any schedule with the same
// name. A zero timeout uses Config.DefaultTimeout.
func (s *Service) AddSchedule(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("schedule name required")
	}
	if job == nil {
		return fmt.Errorf("schedule %s: job required", name)
	}
	ps, err := ParseSchedule(spec)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	if _, err := s.parser.Parse(ps.CronSpec()); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old := s.defs[name]; old != nil && s.c != nil {
		s.c.Remove(old.entryID)
	}
	def := &schedule{name: name, spec: ps, timeout: timeout, job: job}
	s.defs[name] = def
	if s.c != nil {
		if err := s.addCronLocked(def); err != nil {
			delete(s.defs, name)
			return err
		}
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", ps.CronSpec()))
	return nil
}

// Remove unregisters name. It reports whether the schedule existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	def := s.defs[name]
	if def == nil {
		return false
	}
	if s.c != nil {
		s.c.Remove(def.entryID)
	}
	delete(s.defs, name)
	return true
}

func (s *Service) addCronLocked(def *schedule) error {
	id, err := s.c.AddFunc(def.spec.CronSpec(), func() { s.run(def) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", def.name, err)
	}
	def.entryID = id
	return nil
}

// Start begins triggering registered schedules. Calling Start twice is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.base, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.cfg.Location))
	for _, def := range s.defs {
		if err := s.addCronLocked(def); err != nil {
			s.log.Warn("schedule not registered", logx.String("name", def.name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.cfg.Location.String()), logx.Int("schedules", len(s.defs)))
}

// Stop stops triggering, cancels running jobs and waits for them until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	start := time.Now()
	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// RunNow runs the named job synchronously outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	def := s.defs[name]
	s.mu.Unlock()
	if def == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
	}
	return s.runWith(ctx, def)
}

func (s *Service) run(def *schedule) {
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()
	if base == nil {
		return
	}
	_ = s.runWith(base, def)
}

// runWith executes def once unless it is already running. Panics become errors.
func (s *Service) runWith(ctx context.Context, def *schedule) (err error) {
	if !def.running.CompareAndSwap(false, true) {
		def.skipped.Add(1)
		s.log.Debug("schedule still running; skipped", logx.String("name", def.name))
		return nil
	}
	defer def.running.Store(false)

	timeout := def.timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("schedule panicked", logx.String("name", def.name), logx.Any("panic", r), logx.Stack(debug.Stack()))
		}
		took := time.Since(start)
		def.runs.Add(1)
		def.mu.Lock()
		def.lastRun, def.lastTook, def.lastErr = start, took, ""
		if err != nil {
			def.lastErr = err.Error()
		}
		def.mu.Unlock()
		if err != nil {
			def.failures.Add(1)
			s.log.Warn("schedule failed", logx.String("name", def.name), logx.Duration("took", took), logx.Err(err))
			return
		}
		s.log.Trace("schedule done", logx.String("name", def.name), logx.Duration("took", took))
	}()
	return def.job(ctx)
}

// Snapshot returns the registered schedules sorted by name.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Running: s.c != nil, Timezone: s.cfg.Location.String()}
	for _, def := range s.defs {
		info := ScheduleInfo{
			Name:     def.name,
			Spec:     def.spec.CronSpec(),
			Timeout:  def.timeout,
			Running:  def.running.Load(),
			Runs:     def.runs.Load(),
			Failures: def.failures.Load(),
			Skipped:  def.skipped.Load(),
		}
		if s.c != nil {
			e := s.c.Entry(def.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		def.mu.Lock()
		info.LastRun, info.LastTook, info.LastErr = def.lastRun, def.lastTook, def.lastErr
		def.mu.Unlock()
		snap.Schedules = append(snap.Schedules, info)
	}
	sort.Slice(snap.Schedules, func(i, j int) bool { return snap.Schedules[i].Name < snap.Schedules[j].Name })
	return snap
}
