package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	tgadapter "pitchbot/internal/adapters/telegram"
	"pitchbot/internal/config"
	"pitchbot/internal/engine"
	"pitchbot/internal/messenger"
	"pitchbot/internal/poll"
	"pitchbot/internal/schedule"
	"pitchbot/internal/store"
	"pitchbot/pkg/logx"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; deployments usually set the environment directly.
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Bootstrap logger, replaced once the config tells us how to log.
	mgr := config.NewManager(cfgPath)
	mgr.SetLogger(logx.NewConsole("info").With(logx.String("comp", "config")))
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if tok := os.Getenv("TELEGRAM_TOKEN"); tok != "" {
		cfg.Telegram.Token = tok
	}

	log := buildLogger(cfg.Logging)
	defer log.Close()
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	// Persistence.
	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	st, err := store.Open(store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	snap, err := st.Load(ctx)
	if err != nil {
		// A corrupt snapshot must stop startup; continuing would overwrite it.
		return fmt.Errorf("load snapshot: %w", err)
	}

	reg := poll.NewRegistry()
	reg.Restore(snap.Instances, snap.Stats, snap.DisabledDays)

	debounce, _ := config.ParseDurationField("schedule.save_debounce", cfg.Schedule.SaveDebounce)
	flusher := store.NewFlusher(st, func() store.Snapshot {
		ins, stats, disabled := reg.Export()
		return store.Snapshot{Instances: ins, Stats: stats, DisabledDays: disabled}
	}, debounce, log.With(logx.String("comp", "flusher")))
	reg.SetOnDirty(flusher.MarkDirty)

	// Scheduler.
	sched := schedule.New(schedule.Config{
		Workers:        cfg.Schedule.Workers,
		DefaultTimeout: time.Minute,
		Timezone:       cfg.Schedule.Timezone,
	}, log.With(logx.String("comp", "schedule")))
	sched.Start(ctx)

	// Transport.
	pollTimeout, _ := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	adapter, err := tgadapter.New(tgadapter.Config{
		Token:        cfg.Telegram.Token,
		ChatID:       cfg.Telegram.ChatID,
		OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
		PollTimeout:  pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("init telegram: %w", err)
	}

	out := buildSender(cfg, adapter, log)

	eng := engine.New(buildEngineConfig(cfg), reg, sched, out, flusher, log.With(logx.String("comp", "engine")))

	adapter.Attach(eng)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		flusher.Run(ctx)
	}()

	eng.Restore()
	eng.RebuildSchedule()
	adapter.Start()

	// Hot reload: template or timing edits rebuild the launcher jobs.
	sub := mgr.Subscribe(1)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = mgr.Watch(ctx)
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				log.Info("applying reloaded config")
				eng.ApplyTemplates(newCfg.Templates())
			}
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("bot is up", logx.String("config", cfgPath))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("shutting down")

	adapter.Stop()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	sched.Stop(stopCtx)
	stopCancel()

	flusher.FlushNow(context.Background())
	mgr.Unsubscribe(sub)
	wg.Wait()
	return nil
}

func buildLogger(cfg config.LoggingConfig) logx.Logger {
	return logx.New(logx.Config{
		Level:   cfg.Level,
		Console: cfg.Console,
		File:    logx.FileConfig{Enabled: cfg.File.Enabled, Path: cfg.File.Path},
	})
}

func buildSender(cfg *config.Config, adapter *tgadapter.Adapter, log logx.Logger) *messenger.Sender {
	return messenger.NewSender(adapter, messenger.Config{
		RatePerSec: cfg.Telegram.RatePerSec,
	}, log.With(logx.String("comp", "messenger")))
}

func buildEngineConfig(cfg *config.Config) engine.Config {
	reminder, _ := config.ParseDurationOrDefault("schedule.reminder_every", cfg.Schedule.ReminderEvery, 3*time.Hour)
	tagEvery, _ := config.ParseDurationOrDefault("schedule.tag_every", cfg.Schedule.TagEvery, 20*time.Minute)
	tagWindow, _ := config.ParseDurationOrDefault("schedule.tag_window", cfg.Schedule.TagWindow, 2*time.Hour)
	autosave, _ := config.ParseDurationOrDefault("schedule.autosave_every", cfg.Schedule.AutosaveEvery, 10*time.Minute)
	return engine.Config{
		Quorum:        cfg.Schedule.Quorum,
		ReminderEvery: reminder,
		TagEvery:      tagEvery,
		TagWindow:     tagWindow,
		AutosaveEvery: autosave,
		Templates:     cfg.Templates(),
	}
}
