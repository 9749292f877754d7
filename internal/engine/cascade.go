package engine

import (
	"context"
	"fmt"
	"time"

	"pitchbot/internal/poll"
	"pitchbot/pkg/logx"
	"pitchbot/pkg/tgtext"
)

// Job names carry the poll id so a close can cancel exactly its own cascade.
func reminderJob(pollID string) string { return "poll:reminder:" + pollID }
func tagJob(pollID string) string      { return "poll:tag:" + pollID }
func closeJob(pollID string) string    { return "poll:close:" + pollID }

// armCascade schedules the per-poll jobs. Jobs hold only the poll id; state
// is re-read from the registry at fire time, so a job outliving its poll does
// nothing.
//
// Governed polls get the quorum reminder for their whole life and the
// undecided nag inside the trailing window before close. Every poll gets the
// one-shot close timer.
func (e *Engine) armCascade(in poll.Instance) {
	e.mu.Lock()
	reminderEvery := e.cfg.ReminderEvery
	tagEvery := e.cfg.TagEvery
	tagWindow := e.cfg.TagWindow
	e.mu.Unlock()

	id := in.ID
	if in.Template.Governed {
		if err := e.sched.AddIntervalWindow(reminderJob(id), reminderEvery, in.CreatedAt, in.CloseAt, 0,
			func(ctx context.Context) error { return e.quorumReminder(ctx, id) },
		); err != nil {
			e.log.Error("arm reminder failed", logx.String("poll", id), logx.Err(err))
		}

		tagFrom := in.CloseAt.Add(-tagWindow)
		if tagFrom.Before(in.CreatedAt) {
			tagFrom = in.CreatedAt
		}
		if err := e.sched.AddIntervalWindow(tagJob(id), tagEvery, tagFrom, in.CloseAt, 0,
			func(ctx context.Context) error { return e.tagUndecided(ctx, id) },
		); err != nil {
			e.log.Error("arm tag failed", logx.String("poll", id), logx.Err(err))
		}
	}

	if err := e.sched.AddOnce(closeJob(id), in.CloseAt, 0,
		func(ctx context.Context) error {
			e.Close(ctx, id)
			return nil
		},
	); err != nil {
		e.log.Error("arm close failed", logx.String("poll", id), logx.Err(err))
	}
}

func (e *Engine) dropCascade(pollID string) {
	e.sched.Remove(reminderJob(pollID))
	e.sched.Remove(tagJob(pollID))
	e.sched.Remove(closeJob(pollID))
}

// quorumReminder nags the chat while affirmative votes are below quorum.
// Quiet once the game is confirmed.
func (e *Engine) quorumReminder(ctx context.Context, pollID string) error {
	in, ok := e.reg.Get(pollID)
	if !ok || !in.Active {
		return nil
	}
	t := poll.ComputeTally(in)
	quorum := e.Quorum()
	if len(t.Yes) >= quorum {
		return nil
	}
	text := poll.FormatReminder(in, quorum)
	_, err := e.out.Send(ctx, text)
	if err != nil {
		return fmt.Errorf("quorum reminder: %w", err)
	}
	return nil
}

// tagUndecided mentions everyone still on a maybe option in one batched
// message. Nothing is sent when nobody is undecided.
func (e *Engine) tagUndecided(ctx context.Context, pollID string) error {
	in, ok := e.reg.Get(pollID)
	if !ok || !in.Active {
		return nil
	}
	t := poll.ComputeTally(in)
	if len(t.Maybe) == 0 {
		return nil
	}
	now := time.Now().In(e.sched.Location())
	text := poll.FormatUndecidedNag(t.Maybe, in.CloseAt, now)
	if text == "" {
		return nil
	}
	for _, chunk := range tgtext.ChunkLines(text, tgtext.MessageLimit) {
		if _, err := e.out.Send(ctx, chunk); err != nil {
			return fmt.Errorf("undecided nag: %w", err)
		}
	}
	return nil
}
