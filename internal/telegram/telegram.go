// Package telegram adapts the Bot API to the notify.Transport boundary.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ride_bot/internal/notify"
)

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Transport implements notify.Transport over the Telegram Bot API. Channel
// messages go to a fixed channel; private deliveries go to per-user chats.
type Transport struct {
	api       botAPI
	channelID int64
}

// NewTransport creates a Transport publishing to the given channel.
func NewTransport(api *tgbotapi.BotAPI, channelID int64) *Transport {
	return &Transport{api: api, channelID: channelID}
}

// Publish posts a listing to the channel.
func (t *Transport) Publish(ctx context.Context, msg notify.Message) (int, error) {
	return t.send(ctx, t.channelID, msg)
}

// EditPublished replaces the text of a channel message.
func (t *Transport) EditPublished(ctx context.Context, messageID int, msg notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(t.channelID, messageID, msg.Text)
	if kb := keyboard(msg.Buttons); kb != nil {
		edit.ReplyMarkup = kb
	}
	if _, err := t.api.Send(edit); err != nil {
		return fmt.Errorf("edit channel message %d: %w", messageID, err)
	}
	return nil
}

// Unpublish deletes a channel message.
func (t *Transport) Unpublish(ctx context.Context, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(t.channelID, messageID)); err != nil {
		return fmt.Errorf("delete channel message %d: %w", messageID, err)
	}
	return nil
}

// Deliver sends a private message to a user chat.
func (t *Transport) Deliver(ctx context.Context, chatID int64, msg notify.Message) (int, error) {
	return t.send(ctx, chatID, msg)
}

// Retract deletes a previously delivered private message.
func (t *Transport) Retract(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message %d in chat %d: %w", messageID, chatID, err)
	}
	return nil
}

func (t *Transport) send(ctx context.Context, chatID int64, msg notify.Message) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	out := tgbotapi.NewMessage(chatID, msg.Text)
	out.DisableWebPagePreview = true
	if kb := keyboard(msg.Buttons); kb != nil {
		out.ReplyMarkup = *kb
	}
	sent, err := t.api.Send(out)
	if err != nil {
		return 0, fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

func keyboard(rows [][]notify.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	var out [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		out = append(out, buttons)
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(out...)
	return &kb
}
