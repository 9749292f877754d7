package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pitchbot/internal/poll"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Schedule ScheduleConfig `json:"schedule"`
	Polls    []PollConfig   `json:"polls"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	ChatID       int64   `json:"chat_id"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// PollTimeout is the long-poll timeout, a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the snapshot store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/snapshot.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ScheduleConfig controls timing. All durations are Go duration strings.
type ScheduleConfig struct {
	Timezone      string `json:"timezone,omitempty"` // default Europe/Kaliningrad
	Workers       int    `json:"workers,omitempty"`
	Quorum        int    `json:"quorum,omitempty"`
	ReminderEvery string `json:"reminder_every,omitempty"`
	TagEvery      string `json:"tag_every,omitempty"`
	TagWindow     string `json:"tag_window,omitempty"`
	AutosaveEvery string `json:"autosave_every,omitempty"`
	SaveDebounce  string `json:"save_debounce,omitempty"`
}

// PollConfig is one weekly poll template as written in the config file.
// Options are plain strings; the answer kind is inferred from the text unless
// spelled out with the "text|kind" form (kind one of yes/no/maybe).
type PollConfig struct {
	Day       string   `json:"day"`
	Governed  bool     `json:"governed,omitempty"`
	PollAt    string   `json:"poll_at"`
	EventAt   string   `json:"event_at,omitempty"`
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	CloseDay  string   `json:"close_day,omitempty"`
	CloseTime string   `json:"close_time,omitempty"`
}

// Default returns the built-in weekly schedule: governed games Tuesday and
// Thursday plus the informational Saturday-noon poll opened Friday evening.
func Default() *Config {
	gameOptions := []string{"Да ✅", "Нет ❌", "Под вопросом ❔ (отвечу позже)"}
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Driver: "file", Path: "./data/snapshot.json"},
		Schedule: ScheduleConfig{
			Timezone: "Europe/Kaliningrad",
		},
		Polls: []PollConfig{
			{Day: "tue", Governed: true, PollAt: "09:00", EventAt: "20:00",
				Question: "Сегодня собираемся на песчанке в 20:00?", Options: gameOptions},
			{Day: "thu", Governed: true, PollAt: "09:00", EventAt: "20:00",
				Question: "Сегодня собираемся на песчанке в 20:00?", Options: gameOptions},
			{Day: "fri", PollAt: "21:00", EventAt: "12:00",
				Question: "Завтра в 12:00 собираемся на песчанке?", Options: []string{"Да ✅", "Нет ❌"}},
		},
	}
}

// Templates converts the poll sections to domain templates.
func (c *Config) Templates() []poll.Template {
	out := make([]poll.Template, 0, len(c.Polls))
	for _, p := range c.Polls {
		out = append(out, p.Template())
	}
	return out
}

func (p PollConfig) Template() poll.Template {
	opts := make([]poll.Option, 0, len(p.Options))
	for _, raw := range p.Options {
		text, kind := splitOption(raw)
		opts = append(opts, poll.Option{Text: text, Kind: kind})
	}
	return poll.Template{
		Day:       poll.NormalizeDayKey(p.Day),
		Governed:  p.Governed,
		PollAt:    p.PollAt,
		EventAt:   p.EventAt,
		Question:  p.Question,
		Options:   opts,
		CloseDay:  poll.NormalizeDayKey(p.CloseDay),
		CloseTime: p.CloseTime,
	}
}

func splitOption(raw string) (string, poll.OptionKind) {
	if i := strings.LastIndex(raw, "|"); i > 0 {
		text := strings.TrimSpace(raw[:i])
		switch strings.ToLower(strings.TrimSpace(raw[i+1:])) {
		case "yes":
			return text, poll.KindYes
		case "no":
			return text, poll.KindNo
		case "maybe":
			return text, poll.KindMaybe
		}
	}
	return raw, poll.GuessKind(raw)
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required")
	}
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	for _, field := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"schedule.reminder_every", c.Schedule.ReminderEvery},
		{"schedule.tag_every", c.Schedule.TagEvery},
		{"schedule.tag_window", c.Schedule.TagWindow},
		{"schedule.autosave_every", c.Schedule.AutosaveEvery},
		{"schedule.save_debounce", c.Schedule.SaveDebounce},
	} {
		if _, err := ParseDurationField(field.path, field.raw); err != nil {
			return err
		}
	}
	for i, p := range c.Polls {
		if err := p.Template().Validate(); err != nil {
			return fmt.Errorf("polls[%d]: %w", i, err)
		}
	}
	return nil
}
