package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"pitchbot/internal/poll"
	"pitchbot/pkg/logx"
	"pitchbot/pkg/tgtext"
)

const (
	replyNoActivePoll = "Нет активного опроса."
	replyAdminOnly    = "Команда доступна только администратору."
	cmdTimeout        = 30 * time.Second
)

func (a *Adapter) registerCommands() {
	a.bot.Handle("/start", a.cmdHelp)
	a.bot.Handle("/commands", a.cmdHelp)
	a.bot.Handle("/status", a.cmdStatus)
	a.bot.Handle("/stats", a.cmdStats)
	a.bot.Handle("/nextpoll", a.cmdNextPoll)
	a.bot.Handle("/uptime", a.cmdUptime)

	a.bot.Handle("/startpoll", a.admin(a.cmdStartPoll))
	a.bot.Handle("/closepoll", a.admin(a.cmdClosePoll))
	a.bot.Handle("/summary", a.admin(a.cmdClosePoll))
	a.bot.Handle("/disablepoll", a.admin(a.cmdDisablePoll))
	a.bot.Handle("/enablepoll", a.admin(a.cmdEnablePoll))
	a.bot.Handle("/pollsstatus", a.admin(a.cmdPollsStatus))
	a.bot.Handle("/reload", a.admin(a.cmdReload))
	a.bot.Handle("/addplayer", a.admin(a.cmdAddPlayer))
	a.bot.Handle("/removeplayer", a.admin(a.cmdRemovePlayer))
}

// admin gates a handler on owner_user_ids membership.
func (a *Adapter) admin(h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil || !a.isOwner(sender.ID) {
			if sender != nil {
				a.log.Warn("admin command denied",
					logx.Int64("user", sender.ID),
					logx.String("text", c.Text()))
			}
			return c.Reply(replyAdminOnly)
		}
		return h(c)
	}
}

func cmdCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cmdTimeout)
}

func (a *Adapter) cmdHelp(c tele.Context) error {
	return c.Reply(strings.Join([]string{
		"⚽ Бот опросов песчанки.",
		"",
		"/status — текущий опрос и голоса",
		"/stats — статистика посещений",
		"/nextpoll — когда следующий опрос",
		"/uptime — аптайм бота",
		"",
		"Для администратора:",
		"/startpoll вопрос | вариант | вариант…",
		"/closepoll, /summary — закрыть текущий опрос",
		"/disablepoll <день>, /enablepoll <день>",
		"/pollsstatus — отключённые дни",
		"/addplayer <имя>, /removeplayer <имя>",
		"/reload — пересобрать расписание",
	}, "\n"))
}

func (a *Adapter) cmdStatus(c tele.Context) error {
	in, ok := a.eng.Registry().FindLatestActive("")
	if !ok {
		return c.Reply(replyNoActivePoll)
	}
	t := poll.ComputeTally(in)
	text := fmt.Sprintf("<b>%s</b>\n\n%s\n\n%s",
		tgtext.Esc(in.Template.Question),
		poll.FormatOverview(t),
		poll.FormatVotes(in),
	)
	return a.replyChunkedHTML(c, text)
}

func (a *Adapter) cmdStats(c tele.Context) error {
	entries := a.eng.Registry().Stats()
	if len(entries) == 0 {
		return c.Reply("Статистика пока пуста.")
	}
	var b strings.Builder
	b.WriteString("📊 <b>Статистика посещений:</b>\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s — %d\n", i+1, tgtext.Esc(e.Name), e.Count)
	}
	return a.replyChunkedHTML(c, b.String())
}

func (a *Adapter) cmdNextPoll(c tele.Context) error {
	tpl, at, ok := a.eng.NextLaunch(time.Now())
	if !ok {
		return c.Reply("Запланированных опросов нет.")
	}
	return c.Reply(fmt.Sprintf("Следующий опрос: <b>%s</b>\nКогда: %s",
		tgtext.Esc(tpl.Question), at.Format("Mon 02 Jan 15:04")),
		&tele.SendOptions{ParseMode: tele.ModeHTML})
}

func (a *Adapter) cmdUptime(c tele.Context) error {
	a.runMu.Lock()
	started := a.startedAt
	a.runMu.Unlock()
	if started.IsZero() {
		return c.Reply("Бот ещё запускается.")
	}
	return c.Reply(fmt.Sprintf("⏱ Аптайм: %s", time.Since(started).Round(time.Second)))
}

func (a *Adapter) cmdStartPoll(c tele.Context) error {
	parts := strings.Split(c.Message().Payload, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 3 || parts[0] == "" {
		return c.Reply("Формат: /startpoll вопрос | вариант 1 | вариант 2 …")
	}
	ctx, cancel := cmdCtx()
	defer cancel()
	in, err := a.eng.OpenManual(ctx, parts[0], parts[1:])
	if err != nil {
		a.log.Error("manual poll failed", logx.Err(err))
		return c.Reply("Не удалось создать опрос.")
	}
	return c.Reply(fmt.Sprintf("✅ Опрос создан, закроется %s.", in.CloseAt.Format("Mon 15:04")))
}

func (a *Adapter) cmdClosePoll(c tele.Context) error {
	ctx, cancel := cmdCtx()
	defer cancel()
	if _, ok := a.eng.CloseLatest(ctx); !ok {
		return c.Reply(replyNoActivePoll)
	}
	return nil // the summary message is the visible result
}

func (a *Adapter) cmdDisablePoll(c tele.Context) error {
	day := poll.NormalizeDayKey(c.Message().Payload)
	if day == "" {
		return c.Reply("Укажите день: /disablepoll вторник")
	}
	a.eng.Registry().DisableDay(day)
	return c.Reply(fmt.Sprintf("Опросы на «%s» отключены.", day))
}

func (a *Adapter) cmdEnablePoll(c tele.Context) error {
	day := poll.NormalizeDayKey(c.Message().Payload)
	if day == "" {
		return c.Reply("Укажите день: /enablepoll вторник")
	}
	a.eng.Registry().EnableDay(day)
	return c.Reply(fmt.Sprintf("Опросы на «%s» включены.", day))
}

func (a *Adapter) cmdPollsStatus(c tele.Context) error {
	disabled := a.eng.Registry().DisabledDays()
	if len(disabled) == 0 {
		return c.Reply("Все дни включены.")
	}
	return c.Reply("Отключены: " + strings.Join(disabled, ", "))
}

func (a *Adapter) cmdReload(c tele.Context) error {
	a.eng.RebuildSchedule()
	a.eng.Restore()
	return c.Reply("🔄 Расписание пересобрано.")
}

func (a *Adapter) cmdAddPlayer(c tele.Context) error {
	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		return c.Reply("Укажите имя: /addplayer Иван")
	}
	in, ok := a.eng.Registry().FindLatestActive("")
	if !ok {
		return c.Reply(replyNoActivePoll)
	}
	if err := a.eng.AddPlayer(in.ID, name); err != nil {
		return c.Reply(replyNoActivePoll)
	}
	return c.Reply(fmt.Sprintf("✅ %s добавлен(а) в список.", name))
}

func (a *Adapter) cmdRemovePlayer(c tele.Context) error {
	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		return c.Reply("Укажите имя: /removeplayer Иван")
	}
	in, ok := a.eng.Registry().FindLatestActive("")
	if !ok {
		return c.Reply(replyNoActivePoll)
	}
	if n := a.eng.RemovePlayer(in.ID, name); n == 0 {
		return c.Reply(fmt.Sprintf("«%s» в списке не найден(а).", name))
	}
	return c.Reply(fmt.Sprintf("➖ %s удалён(а) из списка.", name))
}

func (a *Adapter) replyChunkedHTML(c tele.Context, text string) error {
	for _, chunk := range tgtext.ChunkLines(text, tgtext.MessageLimit) {
		if err := c.Reply(chunk, &tele.SendOptions{ParseMode: tele.ModeHTML}); err != nil {
			return err
		}
	}
	return nil
}
