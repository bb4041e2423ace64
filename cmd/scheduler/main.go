package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"owl_course/internal/admin"
	"owl_course/internal/bot"
	"owl_course/internal/category"
	"owl_course/internal/config"
	"owl_course/internal/model"
	"owl_course/internal/poster"
	"owl_course/internal/scheduler"
	"owl_course/internal/scraper"
	"owl_course/internal/scraper/studybullet"
	"owl_course/internal/scraper/udemyfreebies"
	"owl_course/internal/settings"
	"owl_course/internal/storage"
)

const (
	httpTimeout     = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := settings.New(store, log)
	if err := st.Seed(ctx); err != nil {
		log.Error("seed settings", "error", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: httpTimeout}
	classifier := category.Default()
	invoker := scraper.NewInvoker(map[model.JobKind]scraper.Scraper{
		model.KindUdemy:       udemyfreebies.New(client, store, classifier, log.With("scraper", model.KindUdemy)),
		model.KindStudyBullet: studybullet.New(client, store, classifier, log.With("scraper", model.KindStudyBullet)),
	}, log)

	sched := scheduler.New(st, store, invoker, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if cfg.TelegramBotToken != "" {
		if p := newPoster(cfg, store, log); p != nil {
			sched.SetPoster(p)
		}

		b, err := bot.New(cfg.TelegramBotToken, sched, cfg, log)
		if err != nil {
			log.Error("create bot", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			b.Run(gctx)
			return nil
		})
	} else {
		log.Info("TELEGRAM_BOT_TOKEN not set, admin bot and posting disabled")
	}

	if cfg.AdminAddr != "" {
		srv := admin.New(sched, log)
		g.Go(func() error {
			return srv.Serve(gctx, cfg.AdminAddr)
		})
	}

	if cfg.SchedulerAutostart && st.Bool(ctx, settings.KeySystemActive, false) {
		res := sched.Start(ctx)
		log.Info("scheduler autostart", "message", res.Message)
	}

	log.Info("owl course scheduler running")

	if err := g.Wait(); err != nil {
		log.Error("service failed", "error", err)
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := sched.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", "error", err)
	}

	log.Info("owl course scheduler stopped")
}

func newPoster(cfg *config.Config, store storage.Storage, log *slog.Logger) *poster.Poster {
	if len(cfg.TelegramChannels) == 0 {
		log.Info("TELEGRAM_CHANNELS not set, posting disabled")
		return nil
	}
	channels := make([]poster.Channel, 0, len(cfg.TelegramChannels))
	for _, raw := range cfg.TelegramChannels {
		ch, err := poster.ParseChannel(raw)
		if err != nil {
			log.Warn("skip channel", "error", err)
			continue
		}
		channels = append(channels, ch)
	}

	p, err := poster.New(cfg.TelegramBotToken, store, channels, cfg.SiteURL, log)
	if err != nil {
		log.Error("create poster, posting disabled", "error", err)
		return nil
	}
	return p
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
