package schedule

import (
	"context"
	"runtime/debug"
	"time"

	"pitchbot/pkg/logx"
)

func (s *Service) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue != nil
}

func (s *Service) enqueue(t task) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("scheduler not running; dropping task", logx.String("task", t.name))
		return
	}
	select {
	case q <- t:
	default:
		s.log.Warn("scheduler queue full; dropping task", logx.String("task", t.name))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduled task",
				logx.String("task", t.name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	start := time.Now()
	runCtx := ctx
	var cancel func()
	if t.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	err := t.run(runCtx)
	if err != nil {
		// simple retry once
		time.Sleep(500 * time.Millisecond)
		err = t.run(runCtx)
	}

	dur := time.Since(start)
	if err != nil {
		s.log.Warn("task failed", logx.String("task", t.name), logx.Err(err), logx.Duration("dur", dur))
	} else {
		s.log.Debug("task ok", logx.String("task", t.name), logx.Duration("dur", dur))
	}
}
