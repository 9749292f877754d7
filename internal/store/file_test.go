package store

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"pitchbot/internal/poll"
	"pitchbot/pkg/logx"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Instances: map[string]poll.Instance{
			"100:200": {
				MessageID: 200,
				Template:  poll.Template{Day: "tue", Question: "Играем?", Options: []poll.Option{{Text: "Да"}, {Text: "Нет"}}},
				Votes: map[string]poll.Vote{
					"1": {UserID: 1, Name: "Анна", Answer: "Да ✅"},
				},
				Active:    true,
				CreatedAt: time.Date(2024, 9, 3, 9, 0, 0, 0, time.UTC),
				CloseAt:   time.Date(2024, 9, 3, 19, 0, 0, 0, time.UTC),
			},
		},
		Stats: map[string]poll.StatsEntry{
			"1": {Name: "Анна", Count: 3},
		},
		DisabledDays: []string{"thu"},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	in, ok := got.Instances["100:200"]
	if !ok {
		t.Fatal("instance missing after reload")
	}
	if in.MessageID != 200 || !in.Active {
		t.Errorf("instance fields lost: %+v", in)
	}
	if v := in.Votes["1"]; v.Name != "Анна" || v.Answer != "Да ✅" {
		t.Errorf("vote lost: %+v", v)
	}
	if e := got.Stats["1"]; e.Count != 3 {
		t.Errorf("stats lost: %+v", e)
	}
	if len(got.DisabledDays) != 1 || got.DisabledDays[0] != "thu" {
		t.Errorf("disabled days lost: %v", got.DisabledDays)
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	snap, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !snap.Empty() {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestFileStoreCorruptFileFails(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	if _, err := st.Load(context.Background()); err == nil {
		t.Fatal("expected error for corrupt snapshot")
	}
}

func TestFlusherDebounces(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	var builds atomic.Int32
	f := NewFlusher(st, func() Snapshot {
		builds.Add(1)
		return testSnapshot()
	}, time.Hour, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	f.MarkDirty()
	f.MarkDirty()
	f.MarkDirty()

	// Debounce window is an hour, so the loop must not save yet.
	time.Sleep(1500 * time.Millisecond)
	if got := builds.Load(); got != 0 {
		t.Fatalf("saved %d times inside the debounce window, want 0", got)
	}

	f.FlushNow(context.Background())
	if got := builds.Load(); got != 1 {
		t.Fatalf("FlushNow saved %d times, want 1", got)
	}

	cancel()
	<-done

	// Shutdown flush runs once more.
	if got := builds.Load(); got != 2 {
		t.Fatalf("after shutdown saved %d times, want 2", got)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}
}
