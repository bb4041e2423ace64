package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `OWL COURSE scheduler admin

Scheduler:
/status — scheduler and job status
/startscheduler — start the scheduler
/stopscheduler — stop the scheduler

Schedules:
/hourly <hours> <on|off> [pages] [timeout] — UdemyFreebies job (1-72 h)
/daily <days> <HH:MM> <pages> <on|off> [timeout] — StudyBullet job (1-30 days)

Logs:
/logs [udemy|studybullet|telegram_posting] [n] — recent executions
/clearlogs [days] — delete entries older than days (default 30)

Posting:
/autopost <on|off> — post courses to the Telegram channels`)
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	st := b.svc.Status(ctx)

	msg := tgbotapi.NewMessage(chatID, FormatStatus(st))
	msg.ReplyMarkup = statusKeyboard(st.SystemActive)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send status", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleStartScheduler(ctx context.Context, chatID int64) {
	res := b.svc.Start(ctx)
	b.log.Info("scheduler start requested", "chat_id", chatID, "message", res.Message)
	b.reply(chatID, formatResult(res))
}

func (b *Bot) handleStopScheduler(ctx context.Context, chatID int64) {
	res := b.svc.Stop(ctx)
	b.log.Info("scheduler stop requested", "chat_id", chatID, "message", res.Message)
	b.reply(chatID, formatResult(res))
}

func (b *Bot) handleHourly(ctx context.Context, chatID int64, args string) {
	u, err := ParseHourlyArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if err := b.svc.UpdateHourlySettings(ctx, u); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, "Hourly schedule updated.\n\n"+FormatKind(b.svc.Status(ctx).Hourly))
}

func (b *Bot) handleDaily(ctx context.Context, chatID int64, args string) {
	u, err := ParseDailyArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if err := b.svc.UpdateDailySettings(ctx, u); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, "Daily schedule updated.\n\n"+FormatKind(b.svc.Status(ctx).Daily))
}

func (b *Bot) handleLogs(ctx context.Context, chatID int64, args string) {
	kind, limit, err := ParseLogsArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.reply(chatID, FormatLogs(b.svc.ExecutionLogs(ctx, kind, limit)))
}

func (b *Bot) handleClearLogs(ctx context.Context, chatID int64, args string) {
	days, err := ParseDaysArg(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	n := b.svc.ClearOldLogs(ctx, days)
	b.reply(chatID, fmt.Sprintf("Deleted %d log entries older than %d days.", n, days))
}

func (b *Bot) handleAutoPost(ctx context.Context, chatID int64, args string) {
	on, err := ParseOnOff(args)
	if err != nil {
		b.reply(chatID, "Usage: /autopost <on|off>")
		return
	}
	if err := b.svc.SetAutoPost(ctx, on); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Auto posting %s.", onOff(on)))
}
