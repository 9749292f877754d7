package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"pitchbot/internal/poll"
	"pitchbot/pkg/logx"
)

// Snapshot is the full persisted bot state. Field names match the historical
// on-disk format, so old snapshot files keep loading after upgrades.
type Snapshot struct {
	Instances    map[string]poll.Instance   `json:"active_polls"`
	Stats        map[string]poll.StatsEntry `json:"stats"`
	DisabledDays []string                   `json:"disabled_days"`
}

// Empty reports whether the snapshot carries no state at all.
func (s Snapshot) Empty() bool {
	return len(s.Instances) == 0 && len(s.Stats) == 0 && len(s.DisabledDays) == 0
}

// Store persists the whole snapshot in one shot. Writes replace the previous
// snapshot; partial updates are not supported.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}

// Config configures persistence.
//
// Driver values:
//   - "file": single JSON file, written atomically
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
