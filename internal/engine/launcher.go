package engine

import (
	"context"
	"fmt"
	"time"

	"pitchbot/internal/poll"
	"pitchbot/pkg/logx"
)

// RebuildSchedule re-registers the weekly launcher jobs from the current
// template set, plus the periodic autosave. Safe to call again after a config
// reload: previous launcher jobs are removed first and job names are stable,
// so nothing ever fires twice.
func (e *Engine) RebuildSchedule() {
	e.mu.Lock()
	tpls := append([]poll.Template(nil), e.cfg.Templates...)
	prev := e.launcherJobs
	autosaveEvery := e.cfg.AutosaveEvery
	e.mu.Unlock()

	for _, name := range prev {
		e.sched.Remove(name)
	}
	var jobs []string

	for i, tpl := range tpls {
		if tpl.Manual() {
			continue
		}
		wd, ok := tpl.Weekday()
		if !ok {
			e.log.Warn("template with unknown day skipped", logx.String("day", tpl.Day))
			continue
		}
		tpl := tpl
		day := tpl.Day

		openName := fmt.Sprintf("launch:open:%s:%d", day, i)
		err := e.sched.AddWeekly(openName, wd, tpl.PollAt, 0, func(ctx context.Context) error {
			// The disabled set is checked at fire time so /disablepoll works
			// without a schedule rebuild.
			if e.reg.IsDisabled(day) {
				e.log.Info("weekly open skipped, day disabled", logx.String("day", day))
				return nil
			}
			if _, exists := e.reg.FindLatestActive(day); exists {
				e.log.Info("weekly open skipped, poll already active", logx.String("day", day))
				return nil
			}
			_, err := e.OpenFromTemplate(ctx, tpl)
			return err
		})
		if err != nil {
			e.log.Error("register weekly open failed", logx.String("name", openName), logx.Err(err))
			continue
		}
		jobs = append(jobs, openName)

		// Fallback summary: closes the day's poll if the per-instance timer
		// was lost (long downtime, wiped snapshot). Harmless otherwise, the
		// close is idempotent.
		if sumDow, sumAt, ok := summarySlot(tpl, wd); ok {
			sumName := fmt.Sprintf("launch:summary:%s:%d", day, i)
			err := e.sched.AddWeekly(sumName, sumDow, sumAt, 0, func(ctx context.Context) error {
				e.CloseByDay(ctx, day)
				return nil
			})
			if err != nil {
				e.log.Error("register weekly summary failed", logx.String("name", sumName), logx.Err(err))
			} else {
				jobs = append(jobs, sumName)
			}
		}
	}

	if e.fl != nil {
		if err := e.sched.AddInterval("autosave", autosaveEvery, 0, func(ctx context.Context) error {
			e.fl.FlushNow(ctx)
			return nil
		}); err != nil {
			e.log.Error("register autosave failed", logx.Err(err))
		} else {
			jobs = append(jobs, "autosave")
		}
	}

	e.mu.Lock()
	e.launcherJobs = jobs
	e.mu.Unlock()
	e.log.Info("weekly schedule rebuilt", logx.Int("jobs", len(jobs)))
}

// summarySlot places the weekly fallback summary: one hour before game time
// on the event day for governed templates, the morning after the open day
// otherwise.
func summarySlot(tpl poll.Template, openDow time.Weekday) (time.Weekday, string, bool) {
	h, m, err := poll.ParseHHMM(tpl.EventAt)
	if err != nil {
		return 0, "", false
	}
	dow := openDow
	if !tpl.Governed {
		dow = (openDow + 1) % 7
	}
	h--
	if h < 0 {
		h = 0
	}
	return dow, fmt.Sprintf("%02d:%02d", h, m), true
}

// NextLaunch reports the next weekly poll opening across enabled templates.
func (e *Engine) NextLaunch(now time.Time) (poll.Template, time.Time, bool) {
	now = now.In(e.sched.Location())
	var (
		bestTpl poll.Template
		bestAt  time.Time
		found   bool
	)
	for _, tpl := range e.Templates() {
		if tpl.Manual() {
			continue
		}
		wd, ok := tpl.Weekday()
		if !ok || e.reg.IsDisabled(tpl.Day) {
			continue
		}
		h, m, err := poll.ParseHHMM(tpl.PollAt)
		if err != nil {
			continue
		}
		at := nextWeekdayAt(now, wd, h, m)
		if !found || at.Before(bestAt) {
			bestTpl, bestAt, found = tpl, at, true
		}
	}
	return bestTpl, bestAt, found
}

func nextWeekdayAt(now time.Time, wd time.Weekday, hour, minute int) time.Time {
	daysAhead := (int(wd) - int(now.Weekday()) + 7) % 7
	y, mo, d := now.AddDate(0, 0, daysAhead).Date()
	at := time.Date(y, mo, d, hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 7)
	}
	return at
}
