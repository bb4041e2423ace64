// Package bot is the admin Telegram bot that drives the scheduler service.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"owl_course/internal/config"
	"owl_course/internal/model"
	"owl_course/internal/scheduler"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Service is the scheduler surface exposed to administrators.
type Service interface {
	Start(ctx context.Context) scheduler.Result
	Stop(ctx context.Context) scheduler.Result
	Status(ctx context.Context) scheduler.Status
	UpdateHourlySettings(ctx context.Context, u scheduler.HourlySettings) error
	UpdateDailySettings(ctx context.Context, u scheduler.DailySettings) error
	SetAutoPost(ctx context.Context, enabled bool) error
	ExecutionLogs(ctx context.Context, kind string, limit int) []model.ExecutionLogEntry
	ClearOldLogs(ctx context.Context, daysToKeep int) int
}

// Bot is the Telegram bot that handles admin commands.
type Bot struct {
	api telegramAPI
	svc Service
	cfg *config.Config
	log *slog.Logger
}

// New creates a Bot with the given Telegram token, scheduler service, and config.
func New(token string, svc Service, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api: api,
		svc: svc,
		cfg: cfg,
		log: log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID, "user_id", msg.From.ID)

	switch cmd {
	case "start", "help":
		b.handleHelp(chatID)
	case cmdStatus:
		b.handleStatus(ctx, chatID)
	case cmdStartScheduler:
		b.handleStartScheduler(ctx, chatID)
	case cmdStopScheduler:
		b.handleStopScheduler(ctx, chatID)
	case "hourly":
		b.handleHourly(ctx, chatID, args)
	case "daily":
		b.handleDaily(ctx, chatID, args)
	case cmdLogs:
		b.handleLogs(ctx, chatID, args)
	case "clearlogs":
		b.handleClearLogs(ctx, chatID, args)
	case "autopost":
		b.handleAutoPost(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
