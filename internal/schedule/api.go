package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pitchbot/internal/poll"
	"pitchbot/pkg/logx"
)

// AddWeekly registers a cron job firing every week on the given weekday at
// HH:MM (scheduler timezone). Upserts by name.
func (s *Service) AddWeekly(name string, weekday time.Weekday, atHHMM string, timeout time.Duration, job func(ctx context.Context) error) error {
	h, m, err := poll.ParseHHMM(atHHMM)
	if err != nil {
		return err
	}
	spec := fmt.Sprintf("%d %d * * %d", m, h, int(weekday)) // Sunday=0
	return s.addDef(name, spec, timeout, time.Time{}, time.Time{}, job)
}

// AddInterval registers a job firing every `every`. Upserts by name.
func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, job func(ctx context.Context) error) error {
	return s.AddIntervalWindow(name, every, time.Time{}, time.Time{}, timeout, job)
}

// AddIntervalWindow registers an interval job active only inside
// [notBefore, notAfter]. Firings before the window are skipped; the first
// firing past notAfter removes the job. Zero bounds mean unbounded.
func (s *Service) AddIntervalWindow(name string, every time.Duration, notBefore, notAfter time.Time, timeout time.Duration, job func(ctx context.Context) error) error {
	if every <= 0 {
		return errors.New("interval must be positive")
	}
	spec := fmt.Sprintf("@every %s", every.String())
	return s.addDef(name, spec, timeout, notBefore, notAfter, job)
}

func (s *Service) addDef(name, spec string, timeout time.Duration, notBefore, notAfter time.Time, job func(ctx context.Context) error) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Upsert by name: remove any previous schedule with the same name so
	// repeated registrations (admin reload, restart recovery) never duplicate
	// a firing job.
	s.removeScheduleLocked(name)
	d := scheduleDef{
		name:      name,
		spec:      spec,
		timeout:   s.resolveTimeout(timeout),
		job:       job,
		notBefore: notBefore,
		notAfter:  notAfter,
	}
	s.defs = append(s.defs, d)
	if s.c != nil {
		s.addCronLocked(&s.defs[len(s.defs)-1])
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec))
	return nil
}

// AddOnce registers a one-shot job at the given time. Upserts by name. A
// target time already in the past fires immediately (restart recovery relies
// on this).
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job func(ctx context.Context) error) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	if at.IsZero() {
		return errors.New("at required")
	}
	if job == nil {
		return errors.New("job required")
	}
	runAt := at.In(s.Location())
	resolved := s.resolveTimeout(timeout)

	s.tmu.Lock()
	if t, ok := s.timers[name]; ok {
		_ = t.Stop()
		delete(s.timers, name)
	}
	// bump version so stale callbacks from a replaced timer are ignored
	ver := s.onceVer[name] + 1
	s.onceVer[name] = ver
	s.onceAt[name] = runAt
	s.onceTimeout[name] = resolved
	s.onceJob[name] = job
	s.armOnceTimerLocked(name, runAt, ver)
	s.tmu.Unlock()

	s.log.Debug("one-shot registered", logx.String("name", name), logx.Time("at", runAt))
	return nil
}

// armOnceTimerLocked creates the runtime timer for a once definition.
// Call with s.tmu held.
func (s *Service) armOnceTimerLocked(name string, runAt time.Time, ver uint64) {
	delay := time.Until(runAt)
	if delay < 0 {
		delay = 0
	}
	timer := time.AfterFunc(delay, func() {
		// Keep the definition when the service is stopped: Start re-arms it.
		if !s.isRunning() {
			return
		}
		s.tmu.Lock()
		curVer := s.onceVer[name]
		job := s.onceJob[name]
		timeout := s.onceTimeout[name]
		_, okAt := s.onceAt[name]
		if curVer != ver || job == nil || !okAt {
			s.tmu.Unlock()
			return
		}
		// cleanup the definition first (prevents double-exec on restart)
		delete(s.timers, name)
		delete(s.onceAt, name)
		delete(s.onceTimeout, name)
		delete(s.onceJob, name)
		delete(s.onceVer, name)
		s.tmu.Unlock()

		s.enqueue(task{name: name, timeout: timeout, run: job})
	})
	s.timers[name] = timer
}

// Remove unschedules everything registered under name. Removing an unknown
// name is a silent no-op; it returns whether something was removed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()

	s.tmu.Lock()
	if t, ok := s.timers[name]; ok {
		_ = t.Stop()
		delete(s.timers, name)
		removed = true
	}
	if _, ok := s.onceAt[name]; ok {
		delete(s.onceAt, name)
		delete(s.onceTimeout, name)
		delete(s.onceJob, name)
		delete(s.onceVer, name)
		removed = true
	}
	s.tmu.Unlock()

	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// removeScheduleLocked removes all defs matching name and unregisters them
// from cron if running. Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// Has reports whether a job (cron/interval or one-shot) is registered under name.
func (s *Service) Has(name string) bool {
	s.mu.Lock()
	for _, d := range s.defs {
		if d.name == name {
			s.mu.Unlock()
			return true
		}
	}
	s.mu.Unlock()

	s.tmu.Lock()
	defer s.tmu.Unlock()
	_, ok := s.onceAt[name]
	return ok
}

// Jobs lists all registered jobs.
func (s *Service) Jobs() []JobInfo {
	var out []JobInfo
	s.mu.Lock()
	for _, d := range s.defs {
		out = append(out, JobInfo{Name: d.name, Spec: d.spec, NotBefore: d.notBefore, NotAfter: d.notAfter})
	}
	s.mu.Unlock()
	s.tmu.Lock()
	for name, at := range s.onceAt {
		out = append(out, JobInfo{Name: name, Once: true, At: at})
	}
	s.tmu.Unlock()
	return out
}
