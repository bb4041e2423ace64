package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"

	"owl_course/internal/config"
	"owl_course/internal/poster"
	"owl_course/internal/settings"
	"owl_course/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "post a single course and exit, ignoring auto_telegram_post")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if cfg.TelegramBotToken == "" {
		log.Error("TELEGRAM_BOT_TOKEN is required")
		os.Exit(1)
	}

	channels := make([]poster.Channel, 0, len(cfg.TelegramChannels))
	for _, raw := range cfg.TelegramChannels {
		ch, err := poster.ParseChannel(raw)
		if err != nil {
			log.Error("parse TELEGRAM_CHANNELS", "error", err)
			os.Exit(1)
		}
		channels = append(channels, ch)
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	p, err := poster.New(cfg.TelegramBotToken, store, channels, cfg.SiteURL, log)
	if err != nil {
		log.Error("create poster", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		if _, err := p.PostNext(ctx); err != nil {
			log.Error("post next course", "error", err)
			os.Exit(1)
		}
		return
	}

	st := settings.New(store, log)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})))
	if _, err := c.AddFunc(cfg.PosterSchedule, func() { post(ctx, st, p, log) }); err != nil {
		log.Error("schedule poster", "spec", cfg.PosterSchedule, "error", err)
		os.Exit(1)
	}

	c.Start()
	log.Info("poster running", "schedule", cfg.PosterSchedule, "channels", len(channels))

	<-ctx.Done()
	<-c.Stop().Done()
	log.Info("poster stopped")
}

// post publishes one course when auto posting is enabled.
func post(ctx context.Context, st *settings.Store, p *poster.Poster, log *slog.Logger) {
	if !st.Bool(ctx, settings.KeyAutoTelegramPost, false) {
		log.Debug("auto posting disabled, skipping")
		return
	}
	posted, err := p.PostNext(ctx)
	if err != nil {
		log.Error("post next course", "error", err)
		return
	}
	log.Debug("poster fired", "posted", posted)
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
