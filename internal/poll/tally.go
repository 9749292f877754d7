package poll

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"pitchbot/pkg/tgtext"
)

// Tally is the yes/no/maybe breakdown of one instance's votes at a moment in
// time. Name lists are sorted for stable output.
type Tally struct {
	Yes   []Vote
	No    []Vote
	Maybe []Vote
}

func (t Tally) Total() int { return len(t.Yes) + len(t.No) + len(t.Maybe) }

// ComputeTally partitions the instance's current votes by option kind.
func ComputeTally(in Instance) Tally {
	var t Tally
	for _, v := range in.Votes {
		switch in.Template.ClassifyAnswer(v.Answer) {
		case KindYes:
			t.Yes = append(t.Yes, v)
		case KindNo:
			t.No = append(t.No, v)
		default:
			t.Maybe = append(t.Maybe, v)
		}
	}
	for _, lst := range [][]Vote{t.Yes, t.No, t.Maybe} {
		sort.Slice(lst, func(i, j int) bool { return lst[i].Name < lst[j].Name })
	}
	return t
}

func names(votes []Vote) []string {
	out := make([]string, 0, len(votes))
	for _, v := range votes {
		out = append(out, tgtext.Esc(v.Name))
	}
	return out
}

func joinOrDash(ss []string) string {
	if len(ss) == 0 {
		return "—"
	}
	return strings.Join(ss, ", ")
}

// FormatSummary renders the close summary in Telegram HTML.
//
// Governed polls get a go/no-go verdict against the quorum and, when the game
// is on, the captains block. Everything else reports totals only: those polls
// are informational, plenty of people show up without voting.
func FormatSummary(in Instance, t Tally, quorum int, captains []string) string {
	yes := names(t.Yes)
	no := names(t.No)

	var status string
	switch {
	case in.Template.Governed && len(yes) < quorum:
		status = fmt.Sprintf("⚠️ Сегодня не собираемся — меньше %d участников.", quorum)
	case in.Template.Governed:
		status = "✅ Сегодня собираемся на песчанке! ⚽"
	default:
		status = fmt.Sprintf(
			"📊 Итог опроса:\n\n👥 Всего проголосовало: %d человек(а).\nОпрос информационный — решайте сами, многие приходят и без опроса ⚽",
			t.Total(),
		)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", tgtext.Esc(in.Template.Question))
	fmt.Fprintf(&b, "✅ Да (%d): %s\n", len(yes), joinOrDash(yes))
	fmt.Fprintf(&b, "❌ Нет (%d): %s\n\n", len(no), joinOrDash(no))
	b.WriteString(status)

	if len(captains) >= 2 {
		fmt.Fprintf(&b, "\n\n🏆 <b>КАПИТАНЫ ВЕЧЕРА:</b>\n1. %s\n2. %s", captains[0], captains[1])
	}
	return b.String()
}

// FormatVotes renders the live vote list for /status, one line per voter with
// a status icon, yes first.
func FormatVotes(in Instance) string {
	if len(in.Votes) == 0 {
		return "— Никто ещё не голосовал."
	}
	t := ComputeTally(in)
	var lines []string
	for _, v := range t.Yes {
		lines = append(lines, "✅ "+tgtext.Esc(v.Name))
	}
	for _, v := range t.Maybe {
		lines = append(lines, "❔ "+tgtext.Esc(v.Name))
	}
	for _, v := range t.No {
		lines = append(lines, "😞 "+tgtext.Esc(v.Name))
	}
	return strings.Join(lines, "\n")
}

// FormatOverview renders the one-line header with counts for /status.
func FormatOverview(t Tally) string {
	return fmt.Sprintf("✅ Да: %d    ❌ Нет: %d    ❔ Под вопросом: %d", len(t.Yes), len(t.No), len(t.Maybe))
}

// FormatReminder renders the quorum nag sent while affirmative votes are
// below the threshold.
func FormatReminder(in Instance, quorum int) string {
	return fmt.Sprintf(
		"🔔 Напоминание: <b>%s</b>\nПожалуйста, проголосуйте — нам нужно как минимум %d «Да» для подтверждения.",
		tgtext.Esc(in.Template.Question), quorum,
	)
}

// FormatUndecidedNag renders a single batched mention message for everyone
// currently undecided, with the minutes left until close.
func FormatUndecidedNag(undecided []Vote, closeAt, now time.Time) string {
	if len(undecided) == 0 {
		return ""
	}
	mentions := make([]string, 0, len(undecided))
	for _, v := range undecided {
		mentions = append(mentions, tgtext.Mention(v.UserID, v.Name))
	}
	minsLeft := int(closeAt.Sub(now).Minutes())
	if minsLeft < 0 {
		minsLeft = 0
	}
	return fmt.Sprintf(
		"%s, ⚠️ вы отметили «Под вопросом». Осталось %d минут до закрытия опроса. Пожалуйста, подтвердите участие.",
		strings.Join(mentions, ", "), minsLeft,
	)
}
