package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"ride_bot/internal/model"
	"ride_bot/internal/storage"
)

const (
	deliverTimeout  = 10 * time.Second
	deliverAttempts = 3
	deliverBackoff  = 2 * time.Second
)

// Dispatcher performs at-least-once delivery of match notifications and
// records each send in the ledger. The ledger's uniqueness constraint, not
// the dispatcher, is what makes the overall effect at-most-once.
type Dispatcher struct {
	store     storage.Storage
	transport Transport
	log       *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(store storage.Storage, transport Transport, log *slog.Logger) *Dispatcher {
	return &Dispatcher{store: store, transport: transport, log: log}
}

// NotifyMatch tells a recipient about a matching listing, unless the ledger
// already has an entry for this (listing, recipient) pair. Delivery happens
// before recording: a retry after an unknown-outcome send may deliver twice,
// but a recorded-yet-undelivered entry would suppress the notification
// forever, which is worse.
func (d *Dispatcher) NotifyMatch(ctx context.Context, l *model.Listing, author, recipient *model.User) error {
	msg := Message{
		Text:    FormatMatchNotification(l, author),
		Buttons: ContactKeyboard(l.ID, author.ID),
	}

	messageID, err := d.deliver(ctx, recipient.TelegramID, msg)
	if err != nil {
		return fmt.Errorf("deliver match notification: %w", err)
	}

	entry := &model.NotificationEntry{
		ListingID:           l.ID,
		RecipientID:         recipient.ID,
		MessageID:           messageID,
		RecipientTelegramID: recipient.TelegramID,
	}
	recorded, err := d.store.RecordNotification(ctx, entry)
	if err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	if !recorded {
		// A concurrent dispatch won the race; retract our copy so the
		// recipient does not see the message twice.
		d.log.Debug("duplicate notification collapsed",
			"listing_id", l.ID, "recipient_id", recipient.ID)
		if err := d.transport.Retract(ctx, recipient.TelegramID, messageID); err != nil {
			d.log.Warn("retract duplicate notification",
				"listing_id", l.ID, "recipient_id", recipient.ID, "error", err)
		}
	}
	return nil
}

// NotifyPair notifies both authors of an opposite-role match about each
// other's listing. Duplicates are suppressed by the ledger on each side
// independently.
func (d *Dispatcher) NotifyPair(ctx context.Context, a, b *model.Listing) {
	d.notifyOneSide(ctx, a, b)
	d.notifyOneSide(ctx, b, a)
}

// notifyOneSide tells the author of "about" that "l" matches their route.
func (d *Dispatcher) notifyOneSide(ctx context.Context, l, about *model.Listing) {
	author, err := d.store.GetUser(ctx, l.AuthorID)
	if err != nil {
		d.log.Error("load listing author", "listing_id", l.ID, "error", err)
		return
	}
	recipient, err := d.store.GetUser(ctx, about.AuthorID)
	if err != nil {
		d.log.Error("load match recipient", "listing_id", about.ID, "error", err)
		return
	}
	if err := d.NotifyMatch(ctx, l, author, recipient); err != nil {
		d.log.Error("notify opposite-role match",
			"listing_id", l.ID, "recipient_id", recipient.ID, "error", err)
	}
}

// NotifyExpired tells the author their listing ran out. Not a match
// notification, so nothing is recorded in the ledger.
func (d *Dispatcher) NotifyExpired(ctx context.Context, l *model.Listing, author *model.User) error {
	msg := Message{Text: FormatExpiryNotice(l)}
	if _, err := d.deliver(ctx, author.TelegramID, msg); err != nil {
		return fmt.Errorf("deliver expiry notice: %w", err)
	}
	return nil
}

// SendRatingPrompt delivers a deferred rating request.
func (d *Dispatcher) SendRatingPrompt(ctx context.Context, rater, ratee *model.User, l *model.Listing) error {
	msg := Message{
		Text:    FormatRatingPrompt(ratee, l),
		Buttons: RatingKeyboard(l.ID, ratee.ID),
	}
	if _, err := d.deliver(ctx, rater.TelegramID, msg); err != nil {
		return fmt.Errorf("deliver rating prompt: %w", err)
	}
	return nil
}

// RevokeEntry retracts a delivered notification and removes its ledger row.
// The retraction is best-effort: the row is deleted even when the transport
// call fails, so a stale entry can never block re-notification.
func (d *Dispatcher) RevokeEntry(ctx context.Context, e model.NotificationEntry) error {
	if e.MessageID != 0 && e.RecipientTelegramID != 0 {
		if err := d.transport.Retract(ctx, e.RecipientTelegramID, e.MessageID); err != nil {
			d.log.Warn("retract notification",
				"listing_id", e.ListingID, "recipient_id", e.RecipientID,
				"message_id", e.MessageID, "error", err)
		}
	}
	if err := d.store.DeleteNotification(ctx, e.ID); err != nil {
		return fmt.Errorf("delete ledger entry: %w", err)
	}
	return nil
}

// deliver sends with a bounded timeout per attempt and constant backoff
// between attempts. A timeout is an unknown outcome and safe to retry: the
// ledger collapses any duplicate that results.
func (d *Dispatcher) deliver(ctx context.Context, chatID int64, msg Message) (int, error) {
	var messageID int
	backoff := retry.WithMaxRetries(deliverAttempts-1, retry.NewConstant(deliverBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
		defer cancel()

		id, err := d.transport.Deliver(attemptCtx, chatID, msg)
		if err != nil {
			return retry.RetryableError(err)
		}
		messageID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	return messageID, nil
}
