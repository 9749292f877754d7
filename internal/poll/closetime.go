package poll

import "time"

const (
	// DefaultLifetime is how long manual/ungoverned polls stay open.
	DefaultLifetime = 24 * time.Hour

	// governedLead closes governed polls one hour before game time, so the
	// final headcount is known before people leave for the pitch.
	governedLead = time.Hour

	// minOpenWindow guards against a misconfigured template closing a poll
	// before anyone can vote.
	minOpenWindow = 5 * time.Minute
)

// ComputeClose returns the moment the poll opened at openedAt must close.
//
// Rules, in order:
//   - explicit close_day/close_time override: next occurrence strictly after
//     openedAt (plus 7 days when it would not be after);
//   - governed weekday template: game time minus one hour on the template's
//     weekday, hour floored at 00;
//   - anything else (manual polls, ungoverned weekdays, malformed times):
//     openedAt + 24h.
//
// The result is never less than 5 minutes after openedAt; when it would be,
// the 24h default applies instead. All arithmetic happens in openedAt's
// location, so callers pass a localized timestamp.
func ComputeClose(tpl Template, openedAt time.Time) time.Time {
	if at, ok := overrideClose(tpl, openedAt); ok {
		return clampClose(at, openedAt)
	}
	if at, ok := governedClose(tpl, openedAt); ok {
		return clampClose(at, openedAt)
	}
	return openedAt.Add(DefaultLifetime)
}

func overrideClose(tpl Template, openedAt time.Time) (time.Time, bool) {
	if tpl.CloseDay == "" {
		return time.Time{}, false
	}
	wd, ok := WeekdayFromKey(tpl.CloseDay)
	if !ok {
		return time.Time{}, false
	}
	h, m, err := ParseHHMM(tpl.CloseTime)
	if err != nil {
		return time.Time{}, false
	}
	at := onWeekdayAt(openedAt, wd, h, m)
	if !at.After(openedAt) {
		at = at.AddDate(0, 0, 7)
	}
	return at, true
}

func governedClose(tpl Template, openedAt time.Time) (time.Time, bool) {
	if !tpl.Governed {
		return time.Time{}, false
	}
	wd, ok := tpl.Weekday()
	if !ok {
		return time.Time{}, false
	}
	h, m, err := ParseHHMM(tpl.EventAt)
	if err != nil {
		return time.Time{}, false
	}
	h -= int(governedLead.Hours())
	if h < 0 {
		h = 0
	}
	at := onWeekdayAt(openedAt, wd, h, m)
	if !at.After(openedAt) {
		at = at.AddDate(0, 0, 7)
	}
	return at, true
}

// onWeekdayAt resolves hour:min on the next occurrence of wd on/after the
// weekday of ref (same day counts).
func onWeekdayAt(ref time.Time, wd time.Weekday, hour, minute int) time.Time {
	daysAhead := (int(wd) - int(ref.Weekday()) + 7) % 7
	y, mo, d := ref.AddDate(0, 0, daysAhead).Date()
	return time.Date(y, mo, d, hour, minute, 0, 0, ref.Location())
}

func clampClose(at, openedAt time.Time) time.Time {
	if at.Before(openedAt.Add(minOpenWindow)) {
		return openedAt.Add(DefaultLifetime)
	}
	return at
}
