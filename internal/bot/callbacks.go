package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdStatus         = "status"
	cmdStartScheduler = "startscheduler"
	cmdStopScheduler  = "stopscheduler"
	cmdLogs           = "logs"
)

func statusKeyboard(active bool) tgbotapi.InlineKeyboardMarkup {
	toggle := tgbotapi.NewInlineKeyboardButtonData("▶️ Start", cmdStartScheduler+":")
	if active {
		toggle = tgbotapi.NewInlineKeyboardButtonData("⏹ Stop", cmdStopScheduler+":")
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			toggle,
			tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", cmdStatus+":"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Udemy logs", cmdLogs+":udemy"),
			tgbotapi.NewInlineKeyboardButtonData("StudyBullet logs", cmdLogs+":studybullet"),
		),
	)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, arg, ok := strings.Cut(data, ":")
	if !ok {
		return
	}

	b.log.Info("callback",
		"action", action,
		"arg", arg,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cmdStatus:
		b.handleStatus(ctx, chatID)
	case cmdStartScheduler:
		b.handleStartScheduler(ctx, chatID)
	case cmdStopScheduler:
		b.handleStopScheduler(ctx, chatID)
	case cmdLogs:
		b.handleLogs(ctx, chatID, arg)
	}
}
