package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pitchbot/internal/poll"
	"pitchbot/pkg/logx"
)

// fileStore keeps the whole snapshot in a single JSON file. Saves write a
// temp file next to the target and rename it over, so a crash mid-write never
// leaves a torn snapshot behind.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

// Load reads the snapshot. A missing file is not an error and yields an empty
// snapshot; a file that exists but cannot be parsed is an error, so a corrupt
// snapshot stops startup instead of being silently wiped by the first save.
func (s *fileStore) Load(ctx context.Context) (Snapshot, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Debug("no snapshot file; starting fresh", logx.String("path", s.path))
		return emptySnapshot(), nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot %s: %w", s.path, err)
	}
	normalize(&snap)
	return snap, nil
}

func (s *fileStore) Save(ctx context.Context, snap Snapshot) error {
	_ = ctx
	normalize(&snap)
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *fileStore) Close() error { return nil }

func emptySnapshot() Snapshot {
	return Snapshot{
		Instances: map[string]poll.Instance{},
		Stats:     map[string]poll.StatsEntry{},
	}
}

func normalize(s *Snapshot) {
	if s.Instances == nil {
		s.Instances = map[string]poll.Instance{}
	}
	if s.Stats == nil {
		s.Stats = map[string]poll.StatsEntry{}
	}
}
