package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ride_bot/internal/model"
	"ride_bot/internal/storage"
)

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	data := query.Data
	b.log.Debug("callback", "data", data, "from", query.From.ID)

	switch {
	case strings.HasPrefix(data, "contact:"):
		b.handleContactCallback(ctx, query)
	case strings.HasPrefix(data, "rate:"):
		b.handleRateCallback(ctx, query)
	default:
		b.ack(query.ID, "")
	}
}

func (b *Bot) ack(queryID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(queryID, text)); err != nil {
		b.log.Warn("answer callback", "error", err)
	}
}

// handleContactCallback reveals the listing author's contact details to the
// matched party and schedules mutual rating prompts.
func (b *Bot) handleContactCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	parts := strings.Split(query.Data, ":")
	if len(parts) != 3 {
		b.ack(query.ID, "")
		return
	}
	listingID, err1 := strconv.ParseInt(parts[1], 10, 64)
	authorID, err2 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil {
		b.ack(query.ID, "")
		return
	}

	presser, err := b.store.GetUserByTelegramID(ctx, query.From.ID)
	if err != nil {
		b.ack(query.ID, "Сначала нажмите /start.")
		return
	}
	listing, err := b.store.GetListing(ctx, listingID)
	if err != nil {
		b.ack(query.ID, "Объявление больше недоступно.")
		return
	}
	author, err := b.store.GetUser(ctx, authorID)
	if err != nil {
		b.ack(query.ID, "Автор объявления недоступен.")
		return
	}

	b.ack(query.ID, "")
	b.revealContact(ctx, presser, listing, author)
}

// revealContact sends the author's contact details to the presser and
// schedules mutual rating prompts. Shared by the notification button and the
// channel deep link. Duplicate requests collapse on the unique
// (listing, rater, ratee) triple.
func (b *Bot) revealContact(ctx context.Context, presser *model.User, listing *model.Listing, author *model.User) {
	b.reply(presser.TelegramID, FormatContactReveal(author, listing))

	at := time.Now().Add(b.ratingDelay)
	b.scheduleRatingRequest(ctx, listing.ID, presser.ID, author.ID, at)
	b.scheduleRatingRequest(ctx, listing.ID, author.ID, presser.ID, at)
}

func (b *Bot) scheduleRatingRequest(ctx context.Context, listingID, raterID, rateeID int64, at time.Time) {
	_, err := b.store.CreateRatingRequest(ctx, &model.RatingRequest{
		ListingID:   listingID,
		RaterID:     raterID,
		RateeID:     rateeID,
		ScheduledAt: at,
	})
	if err != nil {
		b.log.Error("schedule rating request", "listing_id", listingID, "rater_id", raterID, "error", err)
	}
}

// handleRateCallback stores a star rating from a rating prompt, or dismisses
// the prompt on skip.
func (b *Bot) handleRateCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	parts := strings.Split(query.Data, ":")
	if len(parts) != 4 {
		b.ack(query.ID, "")
		return
	}
	listingID, err1 := strconv.ParseInt(parts[1], 10, 64)
	rateeID, err2 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil {
		b.ack(query.ID, "")
		return
	}

	if parts[3] == "skip" {
		b.ack(query.ID, "Хорошо, без оценки.")
		b.removeKeyboard(query)
		return
	}

	stars, err := strconv.Atoi(parts[3])
	if err != nil || stars < 1 || stars > 5 {
		b.ack(query.ID, "")
		return
	}

	rater, err := b.store.GetUserByTelegramID(ctx, query.From.ID)
	if err != nil {
		b.ack(query.ID, "Сначала нажмите /start.")
		return
	}

	err = b.store.AddRating(ctx, &model.Rating{
		RaterID:   rater.ID,
		RateeID:   rateeID,
		ListingID: listingID,
		Stars:     stars,
	})
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		b.ack(query.ID, "Вы уже оценили эту поездку.")
	case err != nil:
		b.log.Error("add rating", "listing_id", listingID, "rater_id", rater.ID, "error", err)
		b.ack(query.ID, "Не получилось сохранить оценку.")
		return
	default:
		b.ack(query.ID, "Спасибо за оценку!")
	}
	b.removeKeyboard(query)
}

func (b *Bot) removeKeyboard(query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(
		query.Message.Chat.ID, query.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}},
	)
	if _, err := b.api.Request(edit); err != nil {
		b.log.Debug("remove keyboard", "error", err)
	}
}
