// Package messenger wraps the chat transport with rate limiting and retries.
// Everything the bot sends to the chat goes through a Sender, so one place
// owns pacing and the flood-control backoff.
package messenger

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"pitchbot/pkg/logx"
)

// PollRef identifies a native poll after it has been posted: the platform
// poll id (vote updates reference it) and the message carrying it.
type PollRef struct {
	PollID    string
	MessageID int
}

// Transport is the raw chat backend. Implementations return errors as-is;
// retry policy lives in Sender.
type Transport interface {
	CreatePoll(ctx context.Context, question string, options []string) (PollRef, error)
	Send(ctx context.Context, text string) (messageID int, err error)
	Pin(ctx context.Context, messageID int) error
	Unpin(ctx context.Context, messageID int) error
}

// Config tunes the sender.
type Config struct {
	RatePerSec int           // outbound messages per second, default 1
	Retries    int           // attempts after the first failure, default 3
	BaseDelay  time.Duration // first retry delay, default 500ms
	MaxDelay   time.Duration // backoff cap, default 15s
}

// Sender paces and retries calls to the transport. Failed sends back off
// exponentially with jitter; a context cancel aborts the wait.
type Sender struct {
	t   Transport
	log logx.Logger
	cfg Config
	lim *rate.Limiter
}

func NewSender(t Transport, cfg Config, log logx.Logger) *Sender {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{
		t:   t,
		log: log,
		cfg: cfg,
		lim: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func (s *Sender) CreatePoll(ctx context.Context, question string, options []string) (PollRef, error) {
	var ref PollRef
	err := s.do(ctx, "create_poll", func() error {
		var err error
		ref, err = s.t.CreatePoll(ctx, question, options)
		return err
	})
	return ref, err
}

func (s *Sender) Send(ctx context.Context, text string) (int, error) {
	var id int
	err := s.do(ctx, "send", func() error {
		var err error
		id, err = s.t.Send(ctx, text)
		return err
	})
	return id, err
}

// SendBatch sends chunks in order. It stops on the first chunk that exhausts
// its retries, returning how many went out and the error.
func (s *Sender) SendBatch(ctx context.Context, chunks []string) (sent int, err error) {
	for _, c := range chunks {
		if _, err = s.Send(ctx, c); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (s *Sender) Pin(ctx context.Context, messageID int) error {
	return s.do(ctx, "pin", func() error { return s.t.Pin(ctx, messageID) })
}

func (s *Sender) Unpin(ctx context.Context, messageID int) error {
	return s.do(ctx, "unpin", func() error { return s.t.Unpin(ctx, messageID) })
}

func (s *Sender) do(ctx context.Context, op string, call func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = s.lim.Wait(ctx); err != nil {
			return err
		}
		if err = call(); err == nil {
			return nil
		}
		if attempt >= s.cfg.Retries {
			s.log.Error("giving up", logx.String("op", op), logx.Int("attempts", attempt+1), logx.Err(err))
			return err
		}
		delay := s.backoff(attempt)
		s.log.Warn("retrying", logx.String("op", op), logx.Int("attempt", attempt+1), logx.Duration("in", delay), logx.Err(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoff doubles per attempt from BaseDelay up to MaxDelay, with ±20% jitter
// so simultaneous failures do not retry in lockstep.
func (s *Sender) backoff(attempt int) time.Duration {
	d := s.cfg.BaseDelay << uint(attempt)
	if d > s.cfg.MaxDelay || d <= 0 {
		d = s.cfg.MaxDelay
	}
	j := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(float64(d) * j)
}
