package store

import (
	"context"
	"sync"
	"time"

	"pitchbot/pkg/logx"
)

const defaultDebounce = 10 * time.Second

// Flusher debounces snapshot saves. Mutations call MarkDirty (cheap, safe
// from any goroutine); the run loop writes at most one snapshot per debounce
// interval no matter how many votes arrive in between.
type Flusher struct {
	log      logx.Logger
	st       Store
	source   func() Snapshot
	debounce time.Duration

	mu       sync.Mutex
	dirty    bool
	lastSave time.Time
}

func NewFlusher(st Store, source func() Snapshot, debounce time.Duration, log logx.Logger) *Flusher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Flusher{log: log, st: st, source: source, debounce: debounce}
}

// MarkDirty schedules a save. Never blocks.
func (f *Flusher) MarkDirty() {
	f.mu.Lock()
	f.dirty = true
	f.mu.Unlock()
}

// Run drives the debounce loop until ctx is done, then flushes one last time.
func (f *Flusher) Run(ctx context.Context) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			f.FlushNow(context.Background())
			return
		case <-tick.C:
			f.mu.Lock()
			due := f.dirty && time.Since(f.lastSave) >= f.debounce
			f.mu.Unlock()
			if due {
				f.flush(ctx)
			}
		}
	}
}

// FlushNow writes the current snapshot regardless of the debounce window.
// Used on close events and shutdown, where losing state would matter.
func (f *Flusher) FlushNow(ctx context.Context) {
	f.flush(ctx)
}

func (f *Flusher) flush(ctx context.Context) {
	snap := f.source()
	if err := f.st.Save(ctx, snap); err != nil {
		f.log.Error("snapshot save failed", logx.Err(err))
		return
	}
	f.mu.Lock()
	f.dirty = false
	f.lastSave = time.Now()
	f.mu.Unlock()
	f.log.Debug("snapshot saved",
		logx.Int("polls", len(snap.Instances)),
		logx.Int("stats", len(snap.Stats)))
}
