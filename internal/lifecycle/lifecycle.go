// Package lifecycle drives listings through their visibility state machine
// and owns every side effect of a transition: channel publication, match
// discovery, notification dispatch and ledger reconciliation.
//
// The state change itself is the authoritative outcome of every operation.
// Transport calls (publish, unpublish, retract) are best-effort and never
// abort a transition; a guarded status update in storage serializes racing
// callers on the same listing.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ride_bot/internal/match"
	"ride_bot/internal/model"
	"ride_bot/internal/notify"
	"ride_bot/internal/routekey"
	"ride_bot/internal/storage"
)

// Operation outcomes surfaced to the interactive layer.
var (
	// ErrNotFound means the listing or subscription does not exist or is
	// not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrConflict means the transition was refused because the observed
	// state did not match the expected one.
	ErrConflict = errors.New("conflict")
	// ErrValidation means the input was rejected before any mutation.
	ErrValidation = errors.New("invalid input")
)

// Controller owns all listing mutations.
type Controller struct {
	store      storage.Storage
	transport  notify.Transport
	dispatcher *notify.Dispatcher
	log        *slog.Logger

	// botName is the bot's public username, used to build the deep link on
	// channel posts.
	botName  string
	lifetime time.Duration
	maxPrice int
}

// NewController creates a Controller.
func NewController(store storage.Storage, transport notify.Transport, dispatcher *notify.Dispatcher, log *slog.Logger, botName string, lifetime time.Duration, maxPrice int) *Controller {
	return &Controller{
		store:      store,
		transport:  transport,
		dispatcher: dispatcher,
		log:        log,
		botName:    botName,
		lifetime:   lifetime,
		maxPrice:   maxPrice,
	}
}

// CreateInput carries the fields of a new listing.
type CreateInput struct {
	FromPlace     string
	ToPlace       string
	DepartureTime string
	Seats         int
	Price         int
}

// Create validates and stores a new active listing, publishes it to the
// channel and runs match discovery. An author may hold at most one active
// listing; a second create is refused with ErrConflict.
func (c *Controller) Create(ctx context.Context, author *model.User, in CreateInput) (*model.Listing, error) {
	keysFrom := routekey.Extract(in.FromPlace)
	keysTo := routekey.Extract(in.ToPlace)
	if !routekey.ValidRoute(keysFrom, keysTo) {
		return nil, fmt.Errorf("%w: route must contain at least one place name on each side", ErrValidation)
	}
	if in.Price <= 0 || in.Price > c.maxPrice {
		return nil, fmt.Errorf("%w: price must be between 1 and %d", ErrValidation, c.maxPrice)
	}

	if _, err := c.store.GetActiveListingByAuthor(ctx, author.ID); err == nil {
		return nil, fmt.Errorf("%w: you already have an active listing", ErrConflict)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("check active listing: %w", err)
	}

	l := &model.Listing{
		AuthorID:      author.ID,
		Role:          author.Role,
		FromPlace:     in.FromPlace,
		ToPlace:       in.ToPlace,
		KeysFrom:      keysFrom,
		KeysTo:        keysTo,
		DepartureTime: in.DepartureTime,
		Seats:         in.Seats,
		Price:         in.Price,
		Status:        model.StatusActive,
		ExpiresAt:     time.Now().UTC().Add(c.lifetime),
	}
	if err := c.store.CreateListing(ctx, l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}

	c.publish(ctx, l)
	c.runMatchDiscovery(ctx, l, author)

	c.log.Info("listing created", "listing_id", l.ID, "author_id", author.ID, "role", l.Role)
	return l, nil
}

// Pause hides an active listing: the channel message is removed, and every
// notification tied to the listing is revoked, along with every match
// notification the author themselves received.
func (c *Controller) Pause(ctx context.Context, listingID, authorID int64) error {
	l, err := c.ownListing(ctx, listingID, authorID)
	if err != nil {
		return err
	}

	applied, err := c.store.TransitionStatus(ctx, l.ID, model.StatusPaused, model.StatusActive)
	if err != nil {
		return fmt.Errorf("pause listing: %w", err)
	}
	if !applied {
		return fmt.Errorf("%w: listing is not active", ErrConflict)
	}

	c.unpublish(ctx, l)
	c.revokeAround(ctx, l)

	c.log.Info("listing paused", "listing_id", l.ID)
	return nil
}

// Resume re-activates a paused listing: new channel message, fresh deadline,
// and match discovery identical to create. Recipients already in the ledger
// are naturally skipped.
func (c *Controller) Resume(ctx context.Context, listingID, authorID int64) error {
	l, err := c.ownListing(ctx, listingID, authorID)
	if err != nil {
		return err
	}

	if other, err := c.store.GetActiveListingByAuthor(ctx, authorID); err == nil && other.ID != l.ID {
		return fmt.Errorf("%w: you already have an active listing", ErrConflict)
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("check active listing: %w", err)
	}

	applied, err := c.store.TransitionStatus(ctx, l.ID, model.StatusActive, model.StatusPaused, model.StatusExpired)
	if err != nil {
		return fmt.Errorf("resume listing: %w", err)
	}
	if !applied {
		return fmt.Errorf("%w: listing is not paused", ErrConflict)
	}

	l.Status = model.StatusActive
	l.ExpiresAt = time.Now().UTC().Add(c.lifetime)
	if err := c.store.SetExpiry(ctx, l.ID, l.ExpiresAt); err != nil {
		c.log.Error("reset expiry on resume", "listing_id", l.ID, "error", err)
	}

	c.publish(ctx, l)

	author, err := c.store.GetUser(ctx, authorID)
	if err != nil {
		return fmt.Errorf("load author: %w", err)
	}
	c.runMatchDiscovery(ctx, l, author)

	c.log.Info("listing resumed", "listing_id", l.ID)
	return nil
}

// Extend pushes the deadline of an active listing forward by one lifetime
// window. No match re-run.
func (c *Controller) Extend(ctx context.Context, listingID, authorID int64) error {
	l, err := c.ownListing(ctx, listingID, authorID)
	if err != nil {
		return err
	}
	if l.Status != model.StatusActive {
		return fmt.Errorf("%w: only an active listing can be extended", ErrConflict)
	}

	if err := c.store.SetExpiry(ctx, l.ID, time.Now().UTC().Add(c.lifetime)); err != nil {
		return fmt.Errorf("extend listing: %w", err)
	}

	c.log.Info("listing extended", "listing_id", l.ID)
	return nil
}

// Delete soft-deletes a listing from any non-terminal state, removes the
// channel message and revokes notifications the same way pause does.
func (c *Controller) Delete(ctx context.Context, listingID, authorID int64) error {
	l, err := c.ownListing(ctx, listingID, authorID)
	if err != nil {
		return err
	}

	applied, err := c.store.TransitionStatus(ctx, l.ID, model.StatusDeleted,
		model.StatusActive, model.StatusPaused, model.StatusExpired, model.StatusTaken)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if !applied {
		return fmt.Errorf("%w: listing is already deleted", ErrConflict)
	}

	c.unpublish(ctx, l)
	c.revokeAround(ctx, l)

	c.log.Info("listing deleted", "listing_id", l.ID)
	return nil
}

// Take marks an active listing as taken: the channel message is replaced by
// an "already taken" note and matching stops, but sent notifications remain
// valid and are kept.
func (c *Controller) Take(ctx context.Context, listingID int64) error {
	l, err := c.store.GetListing(ctx, listingID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load listing: %w", err)
	}

	applied, err := c.store.TransitionStatus(ctx, l.ID, model.StatusTaken, model.StatusActive)
	if err != nil {
		return fmt.Errorf("take listing: %w", err)
	}
	if !applied {
		return fmt.Errorf("%w: listing is not active", ErrConflict)
	}

	if l.ChannelMessageID != 0 {
		if err := c.transport.EditPublished(ctx, l.ChannelMessageID, notify.Message{Text: notify.FormatTakenPost(l)}); err != nil {
			c.log.Warn("mark channel post taken", "listing_id", l.ID, "error", err)
		}
	}

	c.log.Info("listing taken", "listing_id", l.ID)
	return nil
}

// SweepExpire transitions an overdue active listing to expired. The channel
// message is only marked, not removed; the purge pass does that after the
// grace period. The ledger is left alone: expiry is a visibility change for
// the author, not a retraction of the matches others were told about.
func (c *Controller) SweepExpire(ctx context.Context, l *model.Listing) error {
	applied, err := c.store.TransitionStatus(ctx, l.ID, model.StatusExpired, model.StatusActive)
	if err != nil {
		return fmt.Errorf("expire listing: %w", err)
	}
	if !applied {
		// Raced with a user action (pause, delete, take); nothing to do.
		return nil
	}

	if l.ChannelMessageID != 0 {
		if err := c.transport.EditPublished(ctx, l.ChannelMessageID, notify.Message{Text: notify.FormatExpiredPost(l)}); err != nil {
			c.log.Warn("mark channel post expired", "listing_id", l.ID, "error", err)
		}
	}

	author, err := c.store.GetUser(ctx, l.AuthorID)
	if err != nil {
		c.log.Error("load author for expiry notice", "listing_id", l.ID, "error", err)
	} else if err := c.dispatcher.NotifyExpired(ctx, l, author); err != nil {
		c.log.Warn("send expiry notice", "listing_id", l.ID, "error", err)
	}

	c.log.Info("listing expired", "listing_id", l.ID)
	return nil
}

// Purge removes the channel message of a long-expired listing. Clearing the
// stored reference makes the listing ineligible for the next purge pass, so
// the operation is idempotent.
func (c *Controller) Purge(ctx context.Context, l *model.Listing) error {
	if l.ChannelMessageID == 0 {
		return nil
	}
	if err := c.transport.Unpublish(ctx, l.ChannelMessageID); err != nil {
		return fmt.Errorf("unpublish listing %d: %w", l.ID, err)
	}
	if err := c.store.SetChannelMessageID(ctx, l.ID, 0); err != nil {
		return fmt.Errorf("clear channel message: %w", err)
	}
	return nil
}

// AddSubscription validates and stores a standing route watch.
func (c *Controller) AddSubscription(ctx context.Context, owner *model.User, fromText, toText string) (*model.Subscription, error) {
	keysFrom := routekey.Extract(fromText)
	keysTo := routekey.Extract(toText)
	if !routekey.ValidRoute(keysFrom, keysTo) {
		return nil, fmt.Errorf("%w: route must contain at least one place name on each side", ErrValidation)
	}

	sub := &model.Subscription{
		UserID:   owner.ID,
		KeysFrom: keysFrom,
		KeysTo:   keysTo,
		FromText: fromText,
		ToText:   toText,
	}
	if err := c.store.CreateSubscription(ctx, sub); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, fmt.Errorf("%w: you already watch this route", ErrConflict)
		}
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	c.log.Info("subscription added", "subscription_id", sub.ID, "user_id", owner.ID)
	return sub, nil
}

// RemoveSubscription deletes a subscription owned by the caller.
func (c *Controller) RemoveSubscription(ctx context.Context, subscriptionID, ownerID int64) error {
	sub, err := c.store.GetSubscription(ctx, subscriptionID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}
	if sub.UserID != ownerID {
		return ErrNotFound
	}
	if err := c.store.DeleteSubscription(ctx, sub.ID); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// ownListing loads a listing and hides it from anyone but its author.
func (c *Controller) ownListing(ctx context.Context, listingID, authorID int64) (*model.Listing, error) {
	l, err := c.store.GetListing(ctx, listingID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load listing: %w", err)
	}
	if l.AuthorID != authorID {
		return nil, ErrNotFound
	}
	return l, nil
}

// publish posts the listing to the channel, with a deep-link contact button
// so channel readers can reach the author, and stores the message reference.
// Failures are logged; the listing stays active either way.
func (c *Controller) publish(ctx context.Context, l *model.Listing) {
	messageID, err := c.transport.Publish(ctx, notify.Message{
		Text:    notify.FormatChannelPost(l),
		Buttons: notify.ChannelKeyboard(c.botName, l.ID),
	})
	if err != nil {
		c.log.Error("publish listing", "listing_id", l.ID, "error", err)
		return
	}
	l.ChannelMessageID = messageID
	if err := c.store.SetChannelMessageID(ctx, l.ID, messageID); err != nil {
		c.log.Error("store channel message id", "listing_id", l.ID, "error", err)
	}
}

// unpublish removes the channel message, clearing the stored reference only
// on success so a failed attempt can be retried later.
func (c *Controller) unpublish(ctx context.Context, l *model.Listing) {
	if l.ChannelMessageID == 0 {
		return
	}
	if err := c.transport.Unpublish(ctx, l.ChannelMessageID); err != nil {
		c.log.Warn("unpublish listing", "listing_id", l.ID, "error", err)
		return
	}
	l.ChannelMessageID = 0
	if err := c.store.SetChannelMessageID(ctx, l.ID, 0); err != nil {
		c.log.Error("clear channel message id", "listing_id", l.ID, "error", err)
	}
}

// revokeAround undoes the notification fan-out of a deactivated listing:
// every entry tied to the listing, and every match notification the author
// personally received about other listings (their context is gone once the
// author withdraws).
func (c *Controller) revokeAround(ctx context.Context, l *model.Listing) {
	entries, err := c.store.NotificationsForListing(ctx, l.ID)
	if err != nil {
		c.log.Error("load listing notifications", "listing_id", l.ID, "error", err)
	} else {
		for _, e := range entries {
			if err := c.dispatcher.RevokeEntry(ctx, e); err != nil {
				c.log.Error("revoke notification", "entry_id", e.ID, "error", err)
			}
		}
	}

	received, err := c.store.NotificationsReceivedBy(ctx, l.AuthorID)
	if err != nil {
		c.log.Error("load author notifications", "author_id", l.AuthorID, "error", err)
		return
	}
	for _, e := range received {
		if err := c.dispatcher.RevokeEntry(ctx, e); err != nil {
			c.log.Error("revoke received notification", "entry_id", e.ID, "error", err)
		}
	}
}

// runMatchDiscovery finds every recipient that should hear about the listing,
// subscription owners and authors of matching opposite-role listings alike,
// and dispatches to those the ledger has not seen yet.
func (c *Controller) runMatchDiscovery(ctx context.Context, l *model.Listing, author *model.User) {
	notified, err := c.store.NotifiedRecipients(ctx, l.ID)
	if err != nil {
		c.log.Error("load notified recipients", "listing_id", l.ID, "error", err)
		notified = map[int64]struct{}{}
	}

	subs, err := c.store.ListCandidateSubscriptions(ctx, author.ID)
	if err != nil {
		c.log.Error("list candidate subscriptions", "listing_id", l.ID, "error", err)
	} else {
		sent := 0
		for _, sub := range subs {
			if _, ok := notified[sub.UserID]; ok {
				continue
			}
			if !match.SubscriptionMatches(&sub, l) {
				continue
			}
			recipient, err := c.store.GetUser(ctx, sub.UserID)
			if err != nil {
				c.log.Error("load subscriber", "subscription_id", sub.ID, "error", err)
				continue
			}
			if err := c.dispatcher.NotifyMatch(ctx, l, author, recipient); err != nil {
				c.log.Error("notify subscriber",
					"listing_id", l.ID, "recipient_id", recipient.ID, "error", err)
				continue
			}
			notified[sub.UserID] = struct{}{}
			sent++
		}
		if sent > 0 {
			c.log.Info("subscription matches dispatched", "listing_id", l.ID, "count", sent)
		}
	}

	candidates, err := c.store.ListActiveListings(ctx, l.Role.Opposite())
	if err != nil {
		c.log.Error("list opposite-role listings", "listing_id", l.ID, "error", err)
		return
	}
	for i := range candidates {
		candidate := &candidates[i]
		if candidate.AuthorID == author.ID {
			continue
		}
		// A candidate author the ledger already knows about was told on a
		// previous activation; delivering again would only flash a message
		// that the record step immediately retracts.
		if _, ok := notified[candidate.AuthorID]; ok {
			continue
		}
		if !match.ListingsMatch(l, candidate) {
			continue
		}
		c.dispatcher.NotifyPair(ctx, l, candidate)
		notified[candidate.AuthorID] = struct{}{}
	}
}
