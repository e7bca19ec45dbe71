// Package bot implements the interactive Telegram command layer.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ride_bot/internal/lifecycle"
	"ride_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot handles user commands and callback buttons.
type Bot struct {
	api         telegramAPI
	store       storage.Storage
	ctrl        *lifecycle.Controller
	log         *slog.Logger
	ratingDelay time.Duration
}

// New creates a Bot. The api is typically *tgbotapi.BotAPI; tests substitute
// a fake.
func New(api telegramAPI, store storage.Storage, ctrl *lifecycle.Controller, log *slog.Logger, ratingDelay time.Duration) *Bot {
	return &Bot{api: api, store: store, ctrl: ctrl, log: log, ratingDelay: ratingDelay}
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
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send reply", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	if cmd == "start" {
		b.handleStart(ctx, msg)
		return
	}

	user, err := b.store.GetUserByTelegramID(ctx, msg.From.ID)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, "Сначала нажмите /start.")
		return
	}
	if err != nil {
		b.log.Error("load user", "telegram_id", msg.From.ID, "error", err)
		b.reply(chatID, "Что-то пошло не так, попробуйте ещё раз.")
		return
	}

	switch cmd {
	case "help":
		b.handleHelp(chatID)
	case "role":
		b.handleRole(ctx, chatID, user, args)
	case "phone":
		b.handlePhone(ctx, chatID, user, args)
	case "post":
		b.handlePost(ctx, chatID, user, args)
	case "my":
		b.handleMy(ctx, chatID, user)
	case "pause":
		b.handlePause(ctx, chatID, user, args)
	case "resume":
		b.handleResume(ctx, chatID, user, args)
	case "extend":
		b.handleExtend(ctx, chatID, user, args)
	case "delete":
		b.handleDelete(ctx, chatID, user, args)
	case "take":
		b.handleTake(ctx, chatID, user, args)
	case "subscribe":
		b.handleSubscribe(ctx, chatID, user, args)
	case "subs":
		b.handleSubs(ctx, chatID, user)
	case "unsubscribe":
		b.handleUnsubscribe(ctx, chatID, user, args)
	default:
		b.reply(chatID, "Неизвестная команда. /help — список команд.")
	}
}

// replyError maps lifecycle errors to user-facing feedback. Validation and
// conflict errors reach the user; anything else is logged and hidden.
func (b *Bot) replyError(chatID int64, err error, conflictText string) {
	switch {
	case errors.Is(err, lifecycle.ErrValidation):
		b.reply(chatID, "Маршрут должен содержать название места с обеих сторон, а цена — быть разумной.")
	case errors.Is(err, lifecycle.ErrConflict):
		b.reply(chatID, conflictText)
	case errors.Is(err, lifecycle.ErrNotFound):
		b.reply(chatID, "Не найдено. Проверьте номер в /my или /subs.")
	default:
		b.log.Error("command failed", "error", err)
		b.reply(chatID, "Что-то пошло не так, попробуйте ещё раз.")
	}
}
