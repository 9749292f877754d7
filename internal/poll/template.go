package poll

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DayManual marks ad-hoc polls that are not bound to a weekday schedule.
const DayManual = "manual"

// Day keys follow the config convention: "mon".."sun".
var weekdayByKey = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

var keyByWeekday = map[time.Weekday]string{
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
	time.Sunday:    "sun",
}

// WeekdayFromKey resolves a config day key to a time.Weekday.
func WeekdayFromKey(day string) (time.Weekday, bool) {
	wd, ok := weekdayByKey[strings.ToLower(strings.TrimSpace(day))]
	return wd, ok
}

// KeyFromWeekday is the inverse of WeekdayFromKey.
func KeyFromWeekday(wd time.Weekday) string { return keyByWeekday[wd] }

// NormalizeDayKey maps user input (English short keys or Russian day names,
// as typed in chat commands) to a canonical day key. Empty result means the
// input is not a recognizable weekday.
func NormalizeDayKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if _, ok := weekdayByKey[s]; ok {
		return s
	}
	ru := map[string]string{
		"пн": "mon", "пон": "mon", "понедельник": "mon",
		"вт": "tue", "втор": "tue", "вторник": "tue",
		"ср": "wed", "среда": "wed",
		"чт": "thu", "чет": "thu", "четверг": "thu",
		"пт": "fri", "пят": "fri", "пятница": "fri",
		"сб": "sat", "суб": "sat", "суббота": "sat",
		"вс": "sun", "вос": "sun", "воскресенье": "sun",
	}
	return ru[s]
}

// ParseHHMM parses a "HH:MM" time-of-day string.
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// OptionKind tags what an answer option means for the tally, so quorum and
// undecided detection do not depend on option wording.
type OptionKind string

const (
	KindYes   OptionKind = "yes"
	KindNo    OptionKind = "no"
	KindMaybe OptionKind = "maybe"
)

// Option is a single poll answer option.
type Option struct {
	Text string     `json:"text"`
	Kind OptionKind `json:"kind,omitempty"`
}

// GuessKind classifies free-form answer text by the patterns the chat
// historically used. Only a fallback: tagged template options take precedence.
func GuessKind(answer string) OptionKind {
	low := strings.ToLower(answer)
	switch {
	case strings.HasPrefix(answer, "Да") || strings.HasPrefix(low, "yes"):
		return KindYes
	case strings.HasPrefix(answer, "Нет") || strings.HasPrefix(low, "no"):
		return KindNo
	default:
		return KindMaybe
	}
}

// Template is the static configuration a recurring poll is opened from.
// Immutable once defined; admin reconfiguration replaces the whole value.
type Template struct {
	Day      string   `json:"day"` // "mon".."sun" or "manual"
	Governed bool     `json:"governed,omitempty"`
	PollAt   string   `json:"time_poll"` // HH:MM, when the poll opens
	EventAt  string   `json:"time_game"` // HH:MM, when the game starts
	Question string   `json:"question"`
	Options  []Option `json:"options"`

	// Optional explicit close override.
	CloseDay  string `json:"close_day,omitempty"`
	CloseTime string `json:"close_time,omitempty"`
}

// Manual reports whether the template is an ad-hoc one.
func (t Template) Manual() bool { return t.Day == DayManual }

// Weekday resolves the template day key.
func (t Template) Weekday() (time.Weekday, bool) { return WeekdayFromKey(t.Day) }

// OptionTexts returns the option texts in order, capped at Telegram's limit
// of 10 options per poll.
func (t Template) OptionTexts() []string {
	opts := t.Options
	if len(opts) > 10 {
		opts = opts[:10]
	}
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.Text)
	}
	return out
}

// ClassifyAnswer maps recorded answer text to an option kind. Exact matches
// against tagged template options win; anything else (manually added entries,
// options edited after votes were cast) falls back to pattern matching.
func (t Template) ClassifyAnswer(answer string) OptionKind {
	for _, o := range t.Options {
		if o.Text == answer && o.Kind != "" {
			return o.Kind
		}
	}
	return GuessKind(answer)
}

// Validate checks a template the way the launcher will use it.
func (t Template) Validate() error {
	if !t.Manual() {
		if _, ok := t.Weekday(); !ok {
			return fmt.Errorf("unknown day %q", t.Day)
		}
		if _, _, err := ParseHHMM(t.PollAt); err != nil {
			return fmt.Errorf("time_poll: %w", err)
		}
		if _, _, err := ParseHHMM(t.EventAt); err != nil {
			return fmt.Errorf("time_game: %w", err)
		}
	}
	if strings.TrimSpace(t.Question) == "" {
		return fmt.Errorf("question is empty")
	}
	if len(t.Options) < 2 || len(t.Options) > 10 {
		return fmt.Errorf("need 2..10 options, got %d", len(t.Options))
	}
	if t.CloseDay != "" {
		if _, ok := WeekdayFromKey(t.CloseDay); !ok {
			return fmt.Errorf("unknown close_day %q", t.CloseDay)
		}
		if _, _, err := ParseHHMM(t.CloseTime); err != nil {
			return fmt.Errorf("close_time: %w", err)
		}
	}
	return nil
}
