package messenger

import (
	"context"
	"errors"
	"testing"
	"time"

	"pitchbot/pkg/logx"
)

type flakyTransport struct {
	failSends int // sends that fail before the first success
	sent      []string
	nextMsgID int
	polls     []string
}

func (f *flakyTransport) CreatePoll(ctx context.Context, question string, options []string) (PollRef, error) {
	f.polls = append(f.polls, question)
	return PollRef{PollID: "p1", MessageID: 42}, nil
}

func (f *flakyTransport) Send(ctx context.Context, text string) (int, error) {
	if f.failSends > 0 {
		f.failSends--
		return 0, errors.New("flood control")
	}
	f.sent = append(f.sent, text)
	f.nextMsgID++
	return f.nextMsgID, nil
}

func (f *flakyTransport) Pin(ctx context.Context, id int) error   { return nil }
func (f *flakyTransport) Unpin(ctx context.Context, id int) error { return nil }

func fastSender(t *flakyTransport) *Sender {
	return NewSender(t, Config{
		RatePerSec: 1000,
		Retries:    3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}, logx.Nop())
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	tr := &flakyTransport{failSends: 2}
	s := fastSender(tr)

	id, err := s.Send(context.Background(), "привет")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != 1 || len(tr.sent) != 1 {
		t.Fatalf("unexpected result: id=%d sent=%v", id, tr.sent)
	}
}

func TestSendGivesUpAfterRetries(t *testing.T) {
	t.Parallel()
	tr := &flakyTransport{failSends: 100}
	s := fastSender(tr)

	if _, err := s.Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if len(tr.sent) != 0 {
		t.Fatalf("nothing should have been delivered, got %v", tr.sent)
	}
}

func TestSendBatchStopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	tr := &flakyTransport{}
	s := fastSender(tr)

	sent, err := s.SendBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil || sent != 3 {
		t.Fatalf("SendBatch = (%d, %v), want (3, nil)", sent, err)
	}

	// Second chunk permanently fails.
	tr2 := &flakyTransport{failSends: 1000}
	s2 := fastSender(tr2)
	tr2.failSends = 0
	if _, err := s2.Send(context.Background(), "first"); err != nil {
		t.Fatalf("warmup send: %v", err)
	}
	tr2.failSends = 1000
	sent, err = s2.SendBatch(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected batch error")
	}
	if sent != 0 {
		t.Fatalf("sent = %d, want 0", sent)
	}
}

func TestSendHonorsContextCancel(t *testing.T) {
	t.Parallel()
	tr := &flakyTransport{failSends: 1000}
	s := NewSender(tr, Config{
		RatePerSec: 1000,
		Retries:    5,
		BaseDelay:  time.Hour, // retries would block forever
		MaxDelay:   time.Hour,
	}, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Send(ctx, "x")
	if err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("cancel did not interrupt the retry wait")
	}
}
