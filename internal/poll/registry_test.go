package poll

import (
	"testing"
	"time"
)

func newTestInstance(id string, createdAt time.Time) Instance {
	return Instance{
		ID:        id,
		Template:  governedTue("20:00"),
		Votes:     map[string]Vote{},
		Active:    true,
		CreatedAt: createdAt,
		CloseAt:   createdAt.Add(10 * time.Hour),
	}
}

func TestApplyVoteIdempotent(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register(newTestInstance("p1", tuesday(9, 0)))

	v := Vote{UserID: 7, Name: "Петя", Answer: "Да ✅"}
	if !r.ApplyVote("p1", "7", v) {
		t.Fatal("first apply rejected")
	}
	if !r.ApplyVote("p1", "7", v) {
		t.Fatal("second apply rejected")
	}
	in, _ := r.Get("p1")
	if len(in.Votes) != 1 {
		t.Fatalf("votes = %d, want 1", len(in.Votes))
	}
}

func TestApplyVoteReplacesAndRetracts(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register(newTestInstance("p1", tuesday(9, 0)))

	r.ApplyVote("p1", "7", Vote{UserID: 7, Name: "Петя", Answer: "Под вопросом ❔ (отвечу позже)"})
	r.ApplyVote("p1", "7", Vote{UserID: 7, Name: "Петя", Answer: "Да ✅"})
	in, _ := r.Get("p1")
	if got := in.Votes["7"].Answer; got != "Да ✅" {
		t.Fatalf("answer = %q, want replacement to win", got)
	}

	if !r.RetractVote("p1", "7") {
		t.Fatal("retract rejected")
	}
	in, _ = r.Get("p1")
	if len(in.Votes) != 0 {
		t.Fatalf("votes = %d after retraction, want 0", len(in.Votes))
	}
}

func TestApplyVoteUnknownOrInactiveIsNoop(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if r.ApplyVote("nope", "7", Vote{Name: "x", Answer: "Да ✅"}) {
		t.Fatal("vote on unknown poll accepted")
	}
	in := newTestInstance("p1", tuesday(9, 0))
	r.Register(in)
	r.CloseInstance("p1")
	if r.ApplyVote("p1", "7", Vote{Name: "x", Answer: "Да ✅"}) {
		t.Fatal("vote on closed poll accepted")
	}
}

func TestFindLatestActiveTieBreak(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register(newTestInstance("old", tuesday(9, 0)))
	r.Register(newTestInstance("new", tuesday(10, 0)))

	in, ok := r.FindLatestActive("")
	if !ok || in.ID != "new" {
		t.Fatalf("latest = %+v, want id new", in)
	}

	// Scoped to a day with no active instance.
	if _, ok := r.FindLatestActive("fri"); ok {
		t.Fatal("expected no friday instance")
	}
}

func TestCloseInstanceIdempotentAndStatsOnce(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	in := newTestInstance("p1", tuesday(9, 0))
	r.Register(in)
	r.ApplyVote("p1", "7", Vote{UserID: 7, Name: "Петя", Answer: "Да ✅"})
	r.ApplyVote("p1", "8", Vote{UserID: 8, Name: "Вася", Answer: "Нет ❌"})
	r.ApplyVote("p1", "admin_Гость_1", Vote{Name: "Гость", Answer: "Да ✅ (добавлен вручную)"})

	final, ok := r.CloseInstance("p1")
	if !ok {
		t.Fatal("first close reported no-op")
	}
	if final.Active {
		t.Fatal("final state still active")
	}
	if len(final.Votes) != 3 {
		t.Fatalf("final votes = %d, want 3", len(final.Votes))
	}
	if _, ok := r.CloseInstance("p1"); ok {
		t.Fatal("second close not a no-op")
	}

	stats := r.Stats()
	if len(stats) != 2 {
		t.Fatalf("stats entries = %d, want 2 (manual entry excluded)", len(stats))
	}
	if stats[0].Name != "Петя" || stats[0].Count != 1 {
		t.Fatalf("top entry = %+v", stats[0])
	}
	// Вася voted no: ledger entry exists with zero count.
	if stats[1].Name != "Вася" || stats[1].Count != 0 {
		t.Fatalf("second entry = %+v", stats[1])
	}
}

func TestCloseInstanceUpdatesStoredName(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register(newTestInstance("p1", tuesday(9, 0)))
	r.ApplyVote("p1", "7", Vote{UserID: 7, Name: "Старое Имя", Answer: "Да ✅"})
	r.CloseInstance("p1")

	r.Register(newTestInstance("p2", tuesday(10, 0)))
	r.ApplyVote("p2", "7", Vote{UserID: 7, Name: "Новое Имя", Answer: "Да ✅"})
	r.CloseInstance("p2")

	stats := r.Stats()
	if len(stats) != 1 || stats[0].Name != "Новое Имя" || stats[0].Count != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRemoveVotesByName(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register(newTestInstance("p1", tuesday(9, 0)))
	r.ApplyVote("p1", "a1", Vote{Name: "Гость", Answer: "Да ✅"})
	r.ApplyVote("p1", "a2", Vote{Name: "Гость", Answer: "Да ✅"})
	r.ApplyVote("p1", "7", Vote{UserID: 7, Name: "Петя", Answer: "Да ✅"})

	if n := r.RemoveVotesByName("p1", "Гость"); n != 2 {
		t.Fatalf("removed = %d, want 2", n)
	}
	in, _ := r.Get("p1")
	if len(in.Votes) != 1 {
		t.Fatalf("votes left = %d, want 1", len(in.Votes))
	}
}

func TestExportRestoreRoundTrip(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register(newTestInstance("p1", tuesday(9, 0)))
	r.ApplyVote("p1", "7", Vote{UserID: 7, Name: "Петя", Answer: "Да ✅"})
	r.DisableDay("fri")

	ins, stats, disabled := r.Export()

	r2 := NewRegistry()
	r2.Restore(ins, stats, disabled)
	in, ok := r2.Get("p1")
	if !ok || len(in.Votes) != 1 || !in.Active {
		t.Fatalf("restored instance = %+v, ok=%v", in, ok)
	}
	if !r2.IsDisabled("fri") {
		t.Fatal("disabled day lost")
	}
}

func TestOnDirtyFiresOnMutation(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	n := 0
	r.SetOnDirty(func() { n++ })
	r.Register(newTestInstance("p1", tuesday(9, 0)))
	r.ApplyVote("p1", "7", Vote{UserID: 7, Name: "Петя", Answer: "Да ✅"})
	r.CloseInstance("p1")
	if n != 3 {
		t.Fatalf("dirty callbacks = %d, want 3", n)
	}
}
