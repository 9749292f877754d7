// Package engine owns poll lifecycles: opening from weekly templates or by
// hand, collecting votes, the reminder cascade and the idempotent close with
// its summary. It glues the registry, the scheduler, the messenger and the
// snapshot flusher together; none of those know about each other.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"pitchbot/internal/messenger"
	"pitchbot/internal/poll"
	"pitchbot/internal/schedule"
	"pitchbot/internal/store"
	"pitchbot/pkg/logx"
	"pitchbot/pkg/tgtext"
)

// Config tunes lifecycle timing. Zero values fall back to the historical
// defaults.
type Config struct {
	Quorum        int           // affirmative votes needed for a governed game, default 10
	ReminderEvery time.Duration // quorum reminder interval, default 3h
	TagEvery      time.Duration // undecided nag interval, default 20m
	TagWindow     time.Duration // trailing window before close for nags, default 2h
	AutosaveEvery time.Duration // periodic safety flush, default 10m
	Templates     []poll.Template
}

func (c *Config) applyDefaults() {
	if c.Quorum <= 0 {
		c.Quorum = 10
	}
	if c.ReminderEvery <= 0 {
		c.ReminderEvery = 3 * time.Hour
	}
	if c.TagEvery <= 0 {
		c.TagEvery = 20 * time.Minute
	}
	if c.TagWindow <= 0 {
		c.TagWindow = 2 * time.Hour
	}
	if c.AutosaveEvery <= 0 {
		c.AutosaveEvery = 10 * time.Minute
	}
}

// Sender is the slice of messenger the engine needs. Satisfied by
// *messenger.Sender; tests plug in fakes.
type Sender interface {
	CreatePoll(ctx context.Context, question string, options []string) (messenger.PollRef, error)
	Send(ctx context.Context, text string) (int, error)
	SendBatch(ctx context.Context, chunks []string) (int, error)
	Pin(ctx context.Context, messageID int) error
	Unpin(ctx context.Context, messageID int) error
}

type Engine struct {
	log   logx.Logger
	reg   *poll.Registry
	sched *schedule.Service
	out   Sender
	fl    *store.Flusher

	mu  sync.Mutex
	cfg Config

	launcherJobs []string // names registered by the last RebuildSchedule
}

func New(cfg Config, reg *poll.Registry, sched *schedule.Service, out Sender, fl *store.Flusher, log logx.Logger) *Engine {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{log: log, reg: reg, sched: sched, out: out, fl: fl, cfg: cfg}
}

// Registry exposes poll state for the command surface.
func (e *Engine) Registry() *poll.Registry { return e.reg }

func (e *Engine) Quorum() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Quorum
}

func (e *Engine) Templates() []poll.Template {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]poll.Template(nil), e.cfg.Templates...)
}

// ApplyTemplates swaps the template set (config reload) and rebuilds the
// weekly launcher jobs. Open polls keep the template they were created with.
func (e *Engine) ApplyTemplates(tpls []poll.Template) {
	e.mu.Lock()
	e.cfg.Templates = append([]poll.Template(nil), tpls...)
	e.mu.Unlock()
	e.RebuildSchedule()
}

// OpenFromTemplate posts a native poll for the template, pins it, registers
// the instance and arms its reminder cascade and close timer.
func (e *Engine) OpenFromTemplate(ctx context.Context, tpl poll.Template) (poll.Instance, error) {
	if err := tpl.Validate(); err != nil {
		return poll.Instance{}, err
	}
	now := time.Now().In(e.sched.Location())

	ref, err := e.out.CreatePoll(ctx, tpl.Question, tpl.OptionTexts())
	if err != nil {
		return poll.Instance{}, fmt.Errorf("open poll: %w", err)
	}

	in := poll.Instance{
		ID:        ref.PollID,
		MessageID: ref.MessageID,
		Template:  tpl,
		Votes:     map[string]poll.Vote{},
		Active:    true,
		CreatedAt: now,
		CloseAt:   poll.ComputeClose(tpl, now),
	}
	if err := e.out.Pin(ctx, ref.MessageID); err != nil {
		e.log.Warn("pin failed", logx.String("poll", in.ID), logx.Err(err))
	} else {
		in.PinnedMessageID = ref.MessageID
	}

	e.reg.Register(in)
	e.armCascade(in)

	e.log.Info("poll opened",
		logx.String("poll", in.ID),
		logx.String("day", tpl.Day),
		logx.Time("close_at", in.CloseAt))
	return in, nil
}

// OpenManual opens an ad hoc poll outside the weekly templates. It lives 24h
// unless closed earlier by an admin.
func (e *Engine) OpenManual(ctx context.Context, question string, options []string) (poll.Instance, error) {
	opts := make([]poll.Option, 0, len(options))
	for _, o := range options {
		opts = append(opts, poll.Option{Text: o, Kind: poll.GuessKind(o)})
	}
	tpl := poll.Template{Day: poll.DayManual, Question: question, Options: opts}
	return e.OpenFromTemplate(ctx, tpl)
}

// HandlePollAnswer records a vote update from the chat platform. An empty
// option list is a retraction. Unknown or closed polls are ignored.
func (e *Engine) HandlePollAnswer(pollID string, userID int64, name string, optionIdxs []int) {
	key := strconv.FormatInt(userID, 10)
	if len(optionIdxs) == 0 {
		if e.reg.RetractVote(pollID, key) {
			e.log.Debug("vote retracted", logx.String("poll", pollID), logx.Int64("user", userID))
		}
		return
	}
	in, ok := e.reg.Get(pollID)
	if !ok {
		return
	}
	idx := optionIdxs[0]
	if idx < 0 || idx >= len(in.Template.Options) {
		e.log.Warn("vote for unknown option", logx.String("poll", pollID), logx.Int("idx", idx))
		return
	}
	v := poll.Vote{UserID: userID, Name: name, Answer: in.Template.Options[idx].Text}
	if e.reg.ApplyVote(pollID, key, v) {
		e.log.Debug("vote recorded",
			logx.String("poll", pollID),
			logx.Int64("user", userID),
			logx.String("answer", v.Answer))
	}
}

// AddPlayer appends an affirmative vote on behalf of someone outside the chat.
// Such entries carry no user id and never touch the stats ledger.
func (e *Engine) AddPlayer(pollID, name string) error {
	key := fmt.Sprintf("admin_%s_%d", name, time.Now().UnixNano())
	v := poll.Vote{Name: name, Answer: "Да ✅ (добавлен вручную)"}
	if !e.reg.ApplyVote(pollID, key, v) {
		return errors.New("нет активного опроса")
	}
	return nil
}

// RemovePlayer drops all votes under the given display name.
func (e *Engine) RemovePlayer(pollID, name string) int {
	return e.reg.RemoveVotesByName(pollID, name)
}

// Close finalizes the poll: exactly one caller wins the registry transition,
// cancels the cascade jobs, posts the summary (chunked to the message limit),
// unpins and forces a snapshot flush. Duplicate calls are silent no-ops.
func (e *Engine) Close(ctx context.Context, pollID string) (poll.Instance, bool) {
	in, ok := e.reg.CloseInstance(pollID)
	if !ok {
		return poll.Instance{}, false
	}
	e.dropCascade(pollID)

	t := poll.ComputeTally(in)
	quorum := e.Quorum()
	var captains []string
	if in.Template.Governed && len(t.Yes) >= quorum {
		captains = drawCaptains(t.Yes)
	}

	summary := poll.FormatSummary(in, t, quorum, captains)
	chunks := tgtext.ChunkLines(summary, tgtext.MessageLimit)
	if _, err := e.out.SendBatch(ctx, chunks); err != nil {
		// The close already happened; a lost summary is recoverable, a
		// re-opened poll is not.
		e.log.Error("summary send failed", logx.String("poll", pollID), logx.Err(err))
	}
	if in.PinnedMessageID != 0 {
		if err := e.out.Unpin(ctx, in.PinnedMessageID); err != nil {
			e.log.Warn("unpin failed", logx.String("poll", pollID), logx.Err(err))
		}
	}
	if e.fl != nil {
		e.fl.FlushNow(ctx)
	}
	e.log.Info("poll closed",
		logx.String("poll", pollID),
		logx.Int("yes", len(t.Yes)),
		logx.Int("no", len(t.No)),
		logx.Int("maybe", len(t.Maybe)))
	return in, true
}

// CloseLatest closes the most recently opened active poll.
func (e *Engine) CloseLatest(ctx context.Context) (poll.Instance, bool) {
	in, ok := e.reg.FindLatestActive("")
	if !ok {
		return poll.Instance{}, false
	}
	return e.Close(ctx, in.ID)
}

// CloseByDay closes the newest active poll for a template day. No-op when the
// day has no open poll.
func (e *Engine) CloseByDay(ctx context.Context, day string) (poll.Instance, bool) {
	in, ok := e.reg.FindLatestActive(day)
	if !ok {
		return poll.Instance{}, false
	}
	return e.Close(ctx, in.ID)
}

// Restore re-arms the cascade for every active instance loaded from a
// snapshot. Close timers already in the past fire immediately, so polls that
// expired while the bot was down still get their summary.
func (e *Engine) Restore() {
	for _, in := range e.reg.ActiveInstances() {
		e.armCascade(in)
		e.log.Info("poll restored",
			logx.String("poll", in.ID),
			logx.String("day", in.Template.Day),
			logx.Time("close_at", in.CloseAt))
	}
}

// drawCaptains picks two distinct random affirmative voters.
func drawCaptains(yes []poll.Vote) []string {
	if len(yes) < 2 {
		return nil
	}
	i := rand.Intn(len(yes))
	j := rand.Intn(len(yes) - 1)
	if j >= i {
		j++
	}
	return []string{tgtext.Esc(yes[i].Name), tgtext.Esc(yes[j].Name)}
}
