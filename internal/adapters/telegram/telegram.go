// Package telegram adapts the bot to Telegram via telebot: it implements the
// messenger transport for outbound traffic, feeds poll answers into the
// engine and exposes the chat command surface.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"pitchbot/internal/engine"
	"pitchbot/internal/messenger"
	"pitchbot/pkg/logx"
)

type Config struct {
	Token        string
	ChatID       int64
	OwnerUserIDs []int64
	PollTimeout  time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot  *tele.Bot
	chat *tele.Chat
	eng  *engine.Engine

	startedAt time.Time

	runMu   sync.Mutex
	running bool
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:  cfg,
		log:  log,
		bot:  b,
		chat: &tele.Chat{ID: cfg.ChatID},
	}, nil
}

// Attach wires the engine and registers all update handlers. Call once,
// before Start.
func (a *Adapter) Attach(eng *engine.Engine) {
	a.eng = eng

	a.bot.Handle(tele.OnPollAnswer, func(c tele.Context) error {
		pa := c.PollAnswer()
		if pa == nil || pa.Sender == nil {
			return nil
		}
		a.eng.HandlePollAnswer(pa.PollID, pa.Sender.ID, displayName(pa.Sender), pa.Options)
		return nil
	})

	a.registerCommands()
}

func (a *Adapter) Start() {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return
	}
	a.running = true
	a.startedAt = time.Now()
	a.runMu.Unlock()

	a.log.Info("telegram adapter started", logx.Int64("chat", a.cfg.ChatID))
	go a.bot.Start()
}

func (a *Adapter) Stop() {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return
	}
	a.running = false
	a.runMu.Unlock()

	a.bot.Stop()
	a.log.Info("telegram adapter stopped")
}

// CreatePoll posts a native non-anonymous poll to the group chat.
func (a *Adapter) CreatePoll(ctx context.Context, question string, options []string) (messenger.PollRef, error) {
	_ = ctx
	p := &tele.Poll{
		Type:      tele.PollRegular,
		Question:  question,
		Anonymous: false,
	}
	p.AddOptions(options...)
	msg, err := a.bot.Send(a.chat, p)
	if err != nil {
		return messenger.PollRef{}, err
	}
	if msg.Poll == nil {
		return messenger.PollRef{}, errors.New("telegram: sent message carries no poll")
	}
	return messenger.PollRef{PollID: msg.Poll.ID, MessageID: msg.ID}, nil
}

func (a *Adapter) Send(ctx context.Context, text string) (int, error) {
	_ = ctx
	msg, err := a.bot.Send(a.chat, text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (a *Adapter) Pin(ctx context.Context, messageID int) error {
	_ = ctx
	return a.bot.Pin(tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    a.cfg.ChatID,
	})
}

func (a *Adapter) Unpin(ctx context.Context, messageID int) error {
	_ = ctx
	return a.bot.Unpin(a.chat, messageID)
}

func (a *Adapter) isOwner(userID int64) bool {
	for _, id := range a.cfg.OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func displayName(u *tele.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return strconv.FormatInt(u.ID, 10)
}
