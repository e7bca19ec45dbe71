// Package sweeper runs the periodic maintenance passes: expiring overdue
// listings, purging long-expired channel messages and sending due rating
// prompts.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ride_bot/internal/lifecycle"
	"ride_bot/internal/model"
	"ride_bot/internal/notify"
	"ride_bot/internal/storage"
)

// Sweeper periodically drives time-based listing transitions. A single
// instance runs at a time; ticks never overlap because the loop is
// single-threaded and a slow tick simply delays the next one.
type Sweeper struct {
	store      storage.Storage
	ctrl       *lifecycle.Controller
	dispatcher *notify.Dispatcher
	log        *slog.Logger
	tick       time.Duration
	grace      time.Duration
}

// New creates a Sweeper.
func New(store storage.Storage, ctrl *lifecycle.Controller, dispatcher *notify.Dispatcher, log *slog.Logger, tick, grace time.Duration) *Sweeper {
	return &Sweeper{
		store:      store,
		ctrl:       ctrl,
		dispatcher: dispatcher,
		log:        log,
		tick:       tick,
		grace:      grace,
	}
}

// Run starts the sweep loop, blocking until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.RunTick(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunTick(ctx)
		}
	}
}

// RunTick executes one sweep. It is idempotent and safe to invoke at any
// time; tests drive it directly instead of waiting for the ticker.
func (s *Sweeper) RunTick(ctx context.Context) {
	s.expirePass(ctx)
	s.purgePass(ctx)
	s.ratingPass(ctx)
}

// expirePass moves every overdue active listing to expired. Listings are
// processed independently so one failure never blocks the rest.
func (s *Sweeper) expirePass(ctx context.Context) {
	listings, err := s.store.ListExpiredListings(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error("list expired listings", "error", err)
		return
	}

	for i := range listings {
		if ctx.Err() != nil {
			return
		}
		l := &listings[i]
		if err := s.ctrl.SweepExpire(ctx, l); err != nil {
			s.log.Error("expire listing", "listing_id", l.ID, "error", err)
		}
	}

	if len(listings) > 0 {
		s.log.Info("expire pass finished", "count", len(listings))
	}
}

// purgePass removes the channel messages of listings expired longer than the
// grace period ago. Clearing the message reference makes each row ineligible
// on the next tick.
func (s *Sweeper) purgePass(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.grace)
	listings, err := s.store.ListPurgeableListings(ctx, cutoff)
	if err != nil {
		s.log.Error("list purgeable listings", "error", err)
		return
	}

	for i := range listings {
		if ctx.Err() != nil {
			return
		}
		l := &listings[i]
		if err := s.ctrl.Purge(ctx, l); err != nil {
			// Leave the reference in place; the next tick retries.
			s.log.Warn("purge channel message", "listing_id", l.ID, "error", err)
		}
	}
}

// ratingPass delivers rating prompts whose scheduled time has passed,
// skipping pairs that already rated each other.
func (s *Sweeper) ratingPass(ctx context.Context) {
	due, err := s.store.ListDueRatingRequests(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error("list due rating requests", "error", err)
		return
	}

	for _, req := range due {
		if ctx.Err() != nil {
			return
		}
		s.processRatingRequest(ctx, req)
	}
}

func (s *Sweeper) processRatingRequest(ctx context.Context, req model.RatingRequest) {
	rated, err := s.store.HasRating(ctx, req.ListingID, req.RaterID, req.RateeID)
	if err != nil {
		s.log.Error("check existing rating", "request_id", req.ID, "error", err)
		return
	}
	if rated {
		// Rated before the prompt went out; retire the request quietly.
		if err := s.store.MarkRatingRequestSent(ctx, req.ID); err != nil {
			s.log.Error("retire rating request", "request_id", req.ID, "error", err)
		}
		return
	}

	rater, err := s.store.GetUser(ctx, req.RaterID)
	if err != nil {
		s.logMissingUser(req.ID, req.RaterID, err)
		return
	}
	ratee, err := s.store.GetUser(ctx, req.RateeID)
	if err != nil {
		s.logMissingUser(req.ID, req.RateeID, err)
		return
	}
	listing, err := s.store.GetListing(ctx, req.ListingID)
	if err != nil {
		s.log.Error("load listing for rating prompt", "request_id", req.ID, "error", err)
		return
	}

	if err := s.dispatcher.SendRatingPrompt(ctx, rater, ratee, listing); err != nil {
		s.log.Warn("send rating prompt", "request_id", req.ID, "error", err)
		return
	}
	if err := s.store.MarkRatingRequestSent(ctx, req.ID); err != nil {
		s.log.Error("mark rating request sent", "request_id", req.ID, "error", err)
	}
}

func (s *Sweeper) logMissingUser(requestID, userID int64, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("rating request references missing user", "request_id", requestID, "user_id", userID)
		return
	}
	s.log.Error("load user for rating prompt", "request_id", requestID, "user_id", userID, "error", err)
}
