package bot

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"owl_course/internal/config"
	"owl_course/internal/model"
	"owl_course/internal/scheduler"
	"owl_course/internal/settings"
	"owl_course/internal/storage"
)

// --- mocks ---

type sentMsg struct {
	ChatID int64
	Text   string
}

type mockAPI struct {
	mu      sync.Mutex
	sent    []sentMsg
	markups []any
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text})
		m.markups = append(m.markups, msg.ReplyMarkup)
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

type stubInvoker struct{}

func (stubInvoker) Run(context.Context, model.JobKind, int, int) model.ScrapeResult {
	return model.ScrapeResult{Success: true, CoursesFound: 1, PagesProcessed: 1}
}

// --- helpers ---

func newTestBot(t *testing.T) (*Bot, *mockAPI, *scheduler.Scheduler, *storage.SQLite) {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := settings.New(store, log)
	if err := st.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	sched := scheduler.New(st, store, stubInvoker{}, log)
	t.Cleanup(func() {
		sched.Stop(ctx)
		sched.Wait()
	})

	api := &mockAPI{}
	b := &Bot{
		api: api,
		svc: sched,
		cfg: &config.Config{},
		log: log,
	}
	return b, api, sched, store
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

// --- handler tests ---

func TestHandleHelp(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	b.handleHelp(100)
	requireContains(t, api.lastText(), "/startscheduler")
	requireContains(t, api.lastText(), "/daily")
}

func TestHandleStatus(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	b.handleStatus(context.Background(), 100)

	reply := api.lastText()
	requireContains(t, reply, "Scheduler: 🔴 stopped")
	requireContains(t, reply, "[udemy] on")
	requireContains(t, reply, "Every 3 hour(s)")
	requireContains(t, reply, "Every 1 day(s) at 14:00")
	requireContains(t, reply, "Last result: not yet run")

	kb, ok := api.markups[0].(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatal("status sent without inline keyboard")
	}
	if diff := cmp.Diff("startscheduler:", *kb.InlineKeyboard[0][0].CallbackData); diff != "" {
		t.Errorf("toggle button mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleStartStopScheduler(t *testing.T) {
	ctx := context.Background()
	b, api, sched, _ := newTestBot(t)

	b.handleStartScheduler(ctx, 100)
	requireContains(t, api.lastText(), "Scheduler started.")
	if !sched.Running() {
		t.Error("scheduler not running after /startscheduler")
	}

	b.handleStartScheduler(ctx, 100)
	requireContains(t, api.lastText(), "Scheduler already running.")

	b.handleStopScheduler(ctx, 100)
	requireContains(t, api.lastText(), "Scheduler stopped.")
	if sched.Running() {
		t.Error("scheduler still running after /stopscheduler")
	}
}

func TestHandleHourly(t *testing.T) {
	ctx := context.Background()

	t.Run("bad args", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleHourly(ctx, 100, "3")
		requireContains(t, api.lastText(), "usage: /hourly")
	})

	t.Run("clamped update", func(t *testing.T) {
		b, api, sched, _ := newTestBot(t)
		b.handleHourly(ctx, 100, "0 off 500")
		requireContains(t, api.lastText(), "Hourly schedule updated")
		requireContains(t, api.lastText(), "Every 1 hour(s)")

		st := sched.Status(ctx).Hourly
		got := []any{st.IntervalHours, st.Enabled, st.MaxPages}
		if diff := cmp.Diff([]any{1, false, 200}, got); diff != "" {
			t.Errorf("hourly settings mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestHandleDaily(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid run time", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleDaily(ctx, 100, "1 24:61 50 on")
		requireContains(t, api.lastText(), "invalid run time")
	})

	t.Run("success", func(t *testing.T) {
		b, api, sched, _ := newTestBot(t)
		b.handleDaily(ctx, 100, "2 08:30 100 on 60")
		requireContains(t, api.lastText(), "Every 2 day(s) at 08:30")

		st := sched.Status(ctx).Daily
		got := []any{st.IntervalDays, st.RunTime, st.MaxPages, st.TimeoutMinutes, st.Enabled}
		if diff := cmp.Diff([]any{2, "08:30", 100, 60, true}, got); diff != "" {
			t.Errorf("daily settings mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestHandleLogs(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleLogs(ctx, 100, "")
		requireContains(t, api.lastText(), "No execution logs.")
	})

	t.Run("filtered", func(t *testing.T) {
		b, api, _, store := newTestBot(t)
		msg := "connection reset"
		_ = store.LogExecution(ctx, "udemy_1", "udemy", model.StatusFailed, map[string]any{"error": msg})
		_ = store.LogExecution(ctx, "studybullet_1", "studybullet", model.StatusCompleted, map[string]any{"courses_found": 4, "pages_processed": 2})

		b.handleLogs(ctx, 100, "udemy 5")
		reply := api.lastText()
		requireContains(t, reply, "udemy failed — connection reset")
		if strings.Contains(reply, "studybullet") {
			t.Errorf("filtered logs contain other kinds:\n%s", reply)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleLogs(ctx, 100, "coursera")
		requireContains(t, api.lastText(), "unknown job kind")
	})
}

func TestHandleClearLogs(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	b.handleClearLogs(context.Background(), 100, "")
	requireContains(t, api.lastText(), "Deleted 0 log entries older than 30 days.")

	b.handleClearLogs(context.Background(), 100, "abc")
	requireContains(t, api.lastText(), "usage: /clearlogs")
}

func TestHandleAutoPost(t *testing.T) {
	ctx := context.Background()
	b, api, sched, _ := newTestBot(t)

	b.handleAutoPost(ctx, 100, "on")
	requireContains(t, api.lastText(), "Auto posting on.")
	if !sched.Status(ctx).AutoTelegramPost {
		t.Error("auto posting not persisted")
	}

	b.handleAutoPost(ctx, 100, "sometimes")
	requireContains(t, api.lastText(), "Usage: /autopost")
}

func TestHandleCommandUnknown(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	msg := &tgbotapi.Message{
		Text:     "/frobnicate",
		Chat:     &tgbotapi.Chat{ID: 100},
		From:     &tgbotapi.User{ID: 1},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 11}},
	}
	b.handleCommand(context.Background(), msg)
	requireContains(t, api.lastText(), "Unknown command")
}

func TestHandleCallback(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	cb := &tgbotapi.CallbackQuery{
		ID:      "1",
		Data:    "logs:studybullet",
		From:    &tgbotapi.User{ID: 1},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
	}
	b.handleCallback(context.Background(), cb)
	requireContains(t, api.lastText(), "No execution logs.")
}
