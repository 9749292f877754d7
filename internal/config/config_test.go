package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pitchbot/internal/poll"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const validJSON = `{
  "telegram": {"token": "123:abc", "chat_id": -100200300, "owner_user_ids": [42]},
  "logging": {"level": "debug", "console": true},
  "storage": {"driver": "file", "path": "./data/snapshot.json"},
  "schedule": {"timezone": "Europe/Kaliningrad", "quorum": 10, "reminder_every": "3h"},
  "polls": [
    {"day": "tue", "governed": true, "poll_at": "09:00", "event_at": "20:00",
     "question": "Сегодня собираемся на песчанке в 20:00?",
     "options": ["Да ✅", "Нет ❌", "Под вопросом ❔ (отвечу позже)"]}
  ]
}`

func TestLoadValidJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.json", validJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.ChatID != -100200300 {
		t.Errorf("chat_id = %d", cfg.Telegram.ChatID)
	}
	tpls := cfg.Templates()
	if len(tpls) != 1 || tpls[0].Day != "tue" || !tpls[0].Governed {
		t.Fatalf("templates: %+v", tpls)
	}
	if tpls[0].Options[0].Kind != poll.KindYes || tpls[0].Options[2].Kind != poll.KindMaybe {
		t.Errorf("option kinds not inferred: %+v", tpls[0].Options)
	}
	if m.Get() != cfg {
		t.Error("Get did not return committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	yml := `
telegram:
  token: "123:abc"
  chat_id: -1
logging:
  level: info
  console: true
storage:
  driver: file
  path: ./snap.json
schedule:
  timezone: UTC
polls:
  - day: fri
    poll_at: "21:00"
    event_at: "12:00"
    question: "Завтра в 12:00 собираемся на песчанке?"
    options: ["Да ✅", "Нет ❌"]
`
	m := NewManager(writeFile(t, "config.yaml", yml))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Polls) != 1 || cfg.Polls[0].Day != "fri" {
		t.Fatalf("polls: %+v", cfg.Polls)
	}
	if cfg.Polls[0].Template().Governed {
		t.Error("fri poll must not be governed")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	bad := strings.Replace(validJSON, `"logging"`, `"loging"`, 1)
	m := NewManager(writeFile(t, "config.json", bad))
	if _, err := m.Load(); err == nil {
		t.Fatal("unknown key accepted")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(string) string
	}{
		{"missing token", func(s string) string { return strings.Replace(s, `"123:abc"`, `""`, 1) }},
		{"bad duration", func(s string) string { return strings.Replace(s, `"3h"`, `"3 hours"`, 1) }},
		{"bad timezone", func(s string) string { return strings.Replace(s, `"Europe/Kaliningrad"`, `"Mars/Olympus"`, 1) }},
		{"bad poll time", func(s string) string { return strings.Replace(s, `"09:00"`, `"25:00"`, 1) }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewManager(writeFile(t, "config.json", tc.mutate(validJSON)))
			if _, err := m.Load(); err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}
}

func TestDefaultIsValidExceptCredentials(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.ChatID = -1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	tpls := cfg.Templates()
	if len(tpls) != 3 {
		t.Fatalf("want 3 default templates, got %d", len(tpls))
	}
	governed := 0
	for _, tpl := range tpls {
		if tpl.Governed {
			governed++
		}
	}
	if governed != 2 {
		t.Errorf("want 2 governed templates, got %d", governed)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("schedule.reminder_every", "", 3*time.Hour); err != nil || d != 3*time.Hour {
		t.Errorf("empty value: d=%v err=%v", d, err)
	}
	if d, err := ParseDurationOrDefault("schedule.reminder_every", "45m", 3*time.Hour); err != nil || d != 45*time.Minute {
		t.Errorf("explicit value: d=%v err=%v", d, err)
	}
	if _, err := ParseDurationOrDefault("schedule.reminder_every", "3 hours", time.Hour); err == nil {
		t.Error("malformed duration accepted")
	}
}

func TestOptionKindOverride(t *testing.T) {
	t.Parallel()
	text, kind := splitOption("Поиграем без меня|no")
	if text != "Поиграем без меня" || kind != poll.KindNo {
		t.Errorf("splitOption = %q, %q", text, kind)
	}
	text, kind = splitOption("Да ✅")
	if text != "Да ✅" || kind != poll.KindYes {
		t.Errorf("splitOption fallback = %q, %q", text, kind)
	}
}
