package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ride_bot/internal/lifecycle"
	"ride_bot/internal/model"
	"ride_bot/internal/storage"
)

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	user, err := b.store.GetUserByTelegramID(ctx, msg.From.ID)
	if errors.Is(err, storage.ErrNotFound) {
		user = &model.User{
			TelegramID: msg.From.ID,
			Username:   msg.From.UserName,
			Role:       model.RolePassenger,
		}
		if err := b.store.CreateUser(ctx, user); err != nil {
			b.log.Error("create user", "telegram_id", msg.From.ID, "error", err)
			b.reply(chatID, "Что-то пошло не так, попробуйте ещё раз.")
			return
		}
	} else if err != nil {
		b.log.Error("load user", "telegram_id", msg.From.ID, "error", err)
		b.reply(chatID, "Что-то пошло не так, попробуйте ещё раз.")
		return
	}

	// Channel posts deep-link here with the listing ID as the payload.
	if payload, ok := strings.CutPrefix(strings.TrimSpace(msg.CommandArguments()), "post_"); ok {
		b.handleStartPayload(ctx, user, payload)
		return
	}

	b.reply(chatID, `Привет! Это бот поиска попутчиков.

Быстрый старт:
1. /role driver или /role passenger — кто вы
2. /phone +996... — телефон для связи
3. /post Откуда | Куда | Цена — разместить объявление
4. /subscribe Откуда | Куда — следить за маршрутом

Полный список команд: /help`)
}

// handleStartPayload resolves a channel deep link: the reader who followed
// the post's contact button gets the author's details, same as pressing the
// button on a match notification.
func (b *Bot) handleStartPayload(ctx context.Context, user *model.User, payload string) {
	listingID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || listingID <= 0 {
		b.reply(user.TelegramID, "Ссылка повреждена. Откройте объявление в канале ещё раз.")
		return
	}

	listing, err := b.store.GetListing(ctx, listingID)
	if err != nil || listing.Status != model.StatusActive {
		b.reply(user.TelegramID, "Объявление больше недоступно.")
		return
	}
	if listing.AuthorID == user.ID {
		b.reply(user.TelegramID, "Это ваше объявление.")
		return
	}
	author, err := b.store.GetUser(ctx, listing.AuthorID)
	if err != nil {
		b.log.Error("load listing author", "listing_id", listingID, "error", err)
		b.reply(user.TelegramID, "Автор объявления недоступен.")
		return
	}

	b.revealContact(ctx, user, listing, author)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Объявления:
/post <откуда> | <куда> | <цена> [| <мест>] — создать объявление
/my — мои объявления
/pause <id> — скрыть объявление
/resume <id> — вернуть объявление
/extend <id> — продлить на час
/delete <id> — удалить объявление
/take <id> — попутчик найден

Подписки:
/subscribe <откуда> | <куда> — следить за маршрутом
/subs — мои подписки
/unsubscribe <id> — удалить подписку

Профиль:
/role driver | passenger — сменить роль
/phone <номер> — телефон для связи`)
}

func (b *Bot) handleRole(ctx context.Context, chatID int64, user *model.User, args string) {
	role, err := ParseRoleArg(args)
	if err != nil {
		b.reply(chatID, "Использование: /role driver или /role passenger")
		return
	}
	user.Role = role
	if err := b.store.UpdateUser(ctx, user); err != nil {
		b.log.Error("update role", "user_id", user.ID, "error", err)
		b.reply(chatID, "Что-то пошло не так, попробуйте ещё раз.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Роль обновлена: %s.", roleName(role)))
}

func (b *Bot) handlePhone(ctx context.Context, chatID int64, user *model.User, args string) {
	phone, err := ParsePhoneArg(args)
	if err != nil {
		b.reply(chatID, "Использование: /phone +996700123456")
		return
	}
	user.Phone = phone
	if err := b.store.UpdateUser(ctx, user); err != nil {
		b.log.Error("update phone", "user_id", user.ID, "error", err)
		b.reply(chatID, "Что-то пошло не так, попробуйте ещё раз.")
		return
	}
	b.reply(chatID, "Телефон сохранён.")
}

func (b *Bot) handlePost(ctx context.Context, chatID int64, user *model.User, args string) {
	parsed, err := ParsePostArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if user.Phone == "" {
		b.reply(chatID, "Сначала укажите телефон: /phone +996...")
		return
	}

	l, err := b.ctrl.Create(ctx, user, lifecycle.CreateInput{
		FromPlace:     parsed.From,
		ToPlace:       parsed.To,
		DepartureTime: parsed.DepartureTime,
		Seats:         parsed.Seats,
		Price:         parsed.Price,
	})
	if err != nil {
		b.replyError(chatID, err, "У вас уже есть активное объявление. Завершите его через /my.")
		return
	}

	b.reply(chatID, fmt.Sprintf("Объявление #%d опубликовано!\n%s → %s, %d сом\nДействует до %s.",
		l.ID, l.FromPlace, l.ToPlace, l.Price, l.ExpiresAt.Format("15:04")))
}

func (b *Bot) handleMy(ctx context.Context, chatID int64, user *model.User) {
	listings, err := b.store.ListOwnListings(ctx, user.ID)
	if err != nil {
		b.log.Error("list own listings", "user_id", user.ID, "error", err)
		b.reply(chatID, "Что-то пошло не так, попробуйте ещё раз.")
		return
	}
	b.reply(chatID, FormatOwnListings(listings))
}

func (b *Bot) handlePause(ctx context.Context, chatID int64, user *model.User, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Использование: /pause <id>")
		return
	}
	if err := b.ctrl.Pause(ctx, id, user.ID); err != nil {
		b.replyError(chatID, err, "Объявление не активно.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Объявление #%d скрыто. Вернуть: /resume %d", id, id))
}

func (b *Bot) handleResume(ctx context.Context, chatID int64, user *model.User, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Использование: /resume <id>")
		return
	}
	if err := b.ctrl.Resume(ctx, id, user.ID); err != nil {
		b.replyError(chatID, err, "Нельзя вернуть: либо объявление не скрыто, либо у вас уже есть активное.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Объявление #%d снова активно.", id))
}

func (b *Bot) handleExtend(ctx context.Context, chatID int64, user *model.User, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Использование: /extend <id>")
		return
	}
	if err := b.ctrl.Extend(ctx, id, user.ID); err != nil {
		b.replyError(chatID, err, "Продлить можно только активное объявление.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Объявление #%d продлено.", id))
}

func (b *Bot) handleDelete(ctx context.Context, chatID int64, user *model.User, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Использование: /delete <id>")
		return
	}
	if err := b.ctrl.Delete(ctx, id, user.ID); err != nil {
		b.replyError(chatID, err, "Объявление уже удалено.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Объявление #%d удалено.", id))
}

func (b *Bot) handleTake(ctx context.Context, chatID int64, user *model.User, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Использование: /take <id>")
		return
	}
	// Only the author closes their own listing this way.
	l, err := b.store.GetListing(ctx, id)
	if err != nil || l.AuthorID != user.ID {
		b.reply(chatID, "Не найдено. Проверьте номер в /my.")
		return
	}
	if err := b.ctrl.Take(ctx, id); err != nil {
		b.replyError(chatID, err, "Объявление не активно.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Объявление #%d закрыто: попутчик найден.", id))
}

func (b *Bot) handleSubscribe(ctx context.Context, chatID int64, user *model.User, args string) {
	from, to, err := ParseRouteArgs(args)
	if err != nil {
		b.reply(chatID, "Использование: /subscribe <откуда> | <куда>")
		return
	}
	sub, err := b.ctrl.AddSubscription(ctx, user, from, to)
	if err != nil {
		b.replyError(chatID, err, "Вы уже следите за этим маршрутом.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Подписка S%d создана: %s → %s.\nВы получите уведомление о подходящих объявлениях.",
		sub.ID, sub.FromText, sub.ToText))
}

func (b *Bot) handleSubs(ctx context.Context, chatID int64, user *model.User) {
	subs, err := b.store.ListSubscriptions(ctx, user.ID)
	if err != nil {
		b.log.Error("list subscriptions", "user_id", user.ID, "error", err)
		b.reply(chatID, "Что-то пошло не так, попробуйте ещё раз.")
		return
	}
	b.reply(chatID, FormatSubscriptionList(subs))
}

func (b *Bot) handleUnsubscribe(ctx context.Context, chatID int64, user *model.User, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Использование: /unsubscribe <id>")
		return
	}
	if err := b.ctrl.RemoveSubscription(ctx, id, user.ID); err != nil {
		b.replyError(chatID, err, "Подписка не найдена.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Подписка S%d удалена.", id))
}

func roleName(r model.Role) string {
	if r == model.RoleDriver {
		return "водитель"
	}
	return "пассажир"
}
