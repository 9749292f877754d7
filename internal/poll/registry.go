package poll

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Vote is one participant's current answer in one poll.
// UserID is zero for entries added manually by an admin.
type Vote struct {
	UserID int64  `json:"user_id,omitempty"`
	Name   string `json:"name"`
	Answer string `json:"answer"`
}

// Instance is one running poll created from a template (or ad hoc).
type Instance struct {
	ID              string          `json:"-"` // map key in snapshots
	MessageID       int             `json:"message_id"`
	PinnedMessageID int             `json:"pinned_message_id,omitempty"`
	Template        Template        `json:"poll"`
	Votes           map[string]Vote `json:"votes"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
	CloseAt         time.Time       `json:"close_at"`
}

func (in Instance) clone() Instance {
	cp := in
	cp.Votes = make(map[string]Vote, len(in.Votes))
	for k, v := range in.Votes {
		cp.Votes[k] = v
	}
	cp.Template.Options = append([]Option(nil), in.Template.Options...)
	return cp
}

// StatsEntry is one voter's cumulative affirmative count.
type StatsEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Registry owns all mutable poll state: open instances, the stats ledger and
// the disabled-weekday set. Every access goes through its mutex; methods never
// hold the lock across I/O, and read results are deep copies.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*Instance
	stats     map[string]*StatsEntry
	disabled  map[string]bool

	// onDirty fires after every mutation so persistence can debounce saves.
	onDirty func()
}

func NewRegistry() *Registry {
	return &Registry{
		instances: map[string]*Instance{},
		stats:     map[string]*StatsEntry{},
		disabled:  map[string]bool{},
	}
}

// SetOnDirty installs the persistence hook. Call before concurrent use.
func (r *Registry) SetOnDirty(fn func()) { r.onDirty = fn }

func (r *Registry) markDirty() {
	if r.onDirty != nil {
		r.onDirty()
	}
}

// Register inserts a new instance. Must happen before any job referencing the
// id is scheduled.
func (r *Registry) Register(in Instance) {
	if in.Votes == nil {
		in.Votes = map[string]Vote{}
	}
	cp := in.clone()
	r.mu.Lock()
	r.instances[in.ID] = &cp
	r.mu.Unlock()
	r.markDirty()
}

// Get returns a deep copy of the instance.
func (r *Registry) Get(pollID string) (Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.instances[pollID]
	if !ok {
		return Instance{}, false
	}
	return in.clone(), true
}

// ApplyVote upserts voterKey's vote. Repeated identical calls are idempotent;
// a later vote by the same voter replaces the earlier one (last write wins).
// No-op when the poll is unknown or inactive.
func (r *Registry) ApplyVote(pollID, voterKey string, v Vote) bool {
	r.mu.Lock()
	in, ok := r.instances[pollID]
	if !ok || !in.Active {
		r.mu.Unlock()
		return false
	}
	in.Votes[voterKey] = v
	r.mu.Unlock()
	r.markDirty()
	return true
}

// RetractVote removes voterKey's vote entirely (the voter withdrew all
// selections). No-op when the poll is unknown or inactive.
func (r *Registry) RetractVote(pollID, voterKey string) bool {
	r.mu.Lock()
	in, ok := r.instances[pollID]
	if !ok || !in.Active {
		r.mu.Unlock()
		return false
	}
	delete(in.Votes, voterKey)
	r.mu.Unlock()
	r.markDirty()
	return true
}

// RemoveVotesByName deletes all votes whose display name matches, in the
// given poll. Used by the admin /removeplayer command.
func (r *Registry) RemoveVotesByName(pollID, name string) int {
	r.mu.Lock()
	in, ok := r.instances[pollID]
	if !ok {
		r.mu.Unlock()
		return 0
	}
	removed := 0
	for k, v := range in.Votes {
		if v.Name == name {
			delete(in.Votes, k)
			removed++
		}
	}
	r.mu.Unlock()
	if removed > 0 {
		r.markDirty()
	}
	return removed
}

// FindLatestActive returns the most recently created active instance,
// optionally scoped to a template day key. Highest creation timestamp wins.
func (r *Registry) FindLatestActive(day string) (Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *Instance
	for _, in := range r.instances {
		if !in.Active {
			continue
		}
		if day != "" && in.Template.Day != day {
			continue
		}
		if best == nil || in.CreatedAt.After(best.CreatedAt) {
			best = in
		}
	}
	if best == nil {
		return Instance{}, false
	}
	return best.clone(), true
}

// ActiveInstances returns copies of all active instances, newest first.
func (r *Registry) ActiveInstances() []Instance {
	r.mu.Lock()
	out := make([]Instance, 0, len(r.instances))
	for _, in := range r.instances {
		if in.Active {
			out = append(out, in.clone())
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// CloseInstance performs the atomic half of the close transition: the first
// call flips the instance inactive, applies the stats update and removes it
// from the registry, returning the final state. Any later call (a close race)
// reports false and changes nothing.
func (r *Registry) CloseInstance(pollID string) (Instance, bool) {
	r.mu.Lock()
	in, ok := r.instances[pollID]
	if !ok || !in.Active {
		r.mu.Unlock()
		return Instance{}, false
	}
	in.Active = false
	for _, v := range in.Votes {
		if v.UserID == 0 {
			continue // manual entries carry no durable identity
		}
		key := voterStatsKey(v.UserID)
		e, ok := r.stats[key]
		if !ok {
			e = &StatsEntry{Name: v.Name}
			r.stats[key] = e
		}
		if e.Name != v.Name {
			e.Name = v.Name
		}
		if in.Template.ClassifyAnswer(v.Answer) == KindYes {
			e.Count++
		}
	}
	final := in.clone()
	delete(r.instances, pollID)
	r.mu.Unlock()
	r.markDirty()
	return final, true
}

func voterStatsKey(userID int64) string {
	// Snapshot keys are strings; keep the historical decimal form.
	return strconv.FormatInt(userID, 10)
}

// Stats returns ledger entries sorted by count descending.
func (r *Registry) Stats() []StatsEntry {
	r.mu.Lock()
	out := make([]StatsEntry, 0, len(r.stats))
	for _, e := range r.stats {
		out = append(out, *e)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// DisableDay adds a weekday to the disabled set. Reports whether it changed.
func (r *Registry) DisableDay(day string) bool {
	r.mu.Lock()
	changed := !r.disabled[day]
	r.disabled[day] = true
	r.mu.Unlock()
	if changed {
		r.markDirty()
	}
	return changed
}

// EnableDay removes a weekday from the disabled set.
func (r *Registry) EnableDay(day string) bool {
	r.mu.Lock()
	changed := r.disabled[day]
	delete(r.disabled, day)
	r.mu.Unlock()
	if changed {
		r.markDirty()
	}
	return changed
}

func (r *Registry) IsDisabled(day string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled[day]
}

// DisabledDays returns the disabled set, sorted.
func (r *Registry) DisabledDays() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.disabled))
	for d := range r.disabled {
		out = append(out, d)
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}

// Export copies the full state for a snapshot save.
func (r *Registry) Export() (map[string]Instance, map[string]StatsEntry, []string) {
	r.mu.Lock()
	ins := make(map[string]Instance, len(r.instances))
	for id, in := range r.instances {
		ins[id] = in.clone()
	}
	st := make(map[string]StatsEntry, len(r.stats))
	for k, e := range r.stats {
		st[k] = *e
	}
	r.mu.Unlock()
	return ins, st, r.DisabledDays()
}

// Restore replaces the full state from a loaded snapshot. Called once at
// startup, before the scheduler runs.
func (r *Registry) Restore(instances map[string]Instance, stats map[string]StatsEntry, disabled []string) {
	r.mu.Lock()
	r.instances = make(map[string]*Instance, len(instances))
	for id, in := range instances {
		in.ID = id
		if in.Votes == nil {
			in.Votes = map[string]Vote{}
		}
		cp := in.clone()
		r.instances[id] = &cp
	}
	r.stats = make(map[string]*StatsEntry, len(stats))
	for k, e := range stats {
		cp := e
		r.stats[k] = &cp
	}
	r.disabled = make(map[string]bool, len(disabled))
	for _, d := range disabled {
		r.disabled[d] = true
	}
	r.mu.Unlock()
}
