package schedule

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"pitchbot/pkg/logx"
)

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:         cfg,
		log:         log,
		parser:      cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		timers:      map[string]*time.Timer{},
		onceAt:      map[string]time.Time{},
		onceTimeout: map[string]time.Duration{},
		onceJob:     map[string]func(ctx context.Context) error{},
		onceVer:     map[string]uint64{},
	}
	s.loc = s.loadLocation()
	return s
}

// Location returns the scheduler's timezone. All job times are interpreted in it.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	// Fresh queue per run to avoid executing stale enqueued tasks after a
	// stop/start toggle.
	s.queue = make(chan task, 256)

	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))

	// re-register existing defs (if any)
	for i := range s.defs {
		s.addCronLocked(&s.defs[i])
	}

	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer s.workerWG.Done()
			s.worker(runCtx, stopCh, queue)
		}()
	}
	s.c.Start()
	s.rebuildOnceTimersLocked()
	s.log.Info("scheduler started",
		logx.Int("workers", workers),
		logx.String("tz", s.loc.String()),
		logx.Int("schedules", len(s.defs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.runCancel
	c := s.c
	s.stopCh = nil
	s.runCancel = nil
	s.c = nil
	s.queue = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}

	// stop all runtime one-time timers (keep definitions so they can resume
	// on a later Start)
	s.tmu.Lock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.tmu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) addCronLocked(d *scheduleDef) {
	// Capture by value: the defs slice may be reallocated by later appends.
	name, timeout, job := d.name, d.timeout, d.job
	notBefore, notAfter := d.notBefore, d.notAfter
	eid, err := s.c.AddFunc(d.spec, func() {
		now := time.Now().In(s.Location())
		if !notBefore.IsZero() && now.Before(notBefore) {
			return
		}
		if !notAfter.IsZero() && now.After(notAfter) {
			// The window is over; the definition unregisters itself.
			go s.Remove(name)
			return
		}
		s.enqueue(task{name: name, timeout: timeout, run: job})
	})
	if err != nil {
		s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		return
	}
	d.entryID = eid
}

// rebuildOnceTimersLocked recreates runtime timers from the persisted once
// definitions. Call with s.mu held.
func (s *Service) rebuildOnceTimersLocked() {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	for name, runAt := range s.onceAt {
		job := s.onceJob[name]
		if job == nil {
			delete(s.onceAt, name)
			delete(s.onceTimeout, name)
			delete(s.onceJob, name)
			delete(s.onceVer, name)
			continue
		}
		ver := s.onceVer[name]
		if ver == 0 {
			ver = 1
			s.onceVer[name] = ver
		}
		s.armOnceTimerLocked(name, runAt, ver)
	}
}

func (s *Service) loadLocation() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) resolveTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return s.cfg.DefaultTimeout
}
