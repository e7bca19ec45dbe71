// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"ride_bot/internal/model"
)

// Sentinel errors returned by Storage implementations.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a uniqueness rule
	// the caller cares about (subscriptions, ratings).
	ErrDuplicate = errors.New("already exists")
)

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error

	CreateListing(ctx context.Context, l *model.Listing) error
	GetListing(ctx context.Context, id int64) (*model.Listing, error)
	GetActiveListingByAuthor(ctx context.Context, authorID int64) (*model.Listing, error)
	ListOwnListings(ctx context.Context, authorID int64) ([]model.Listing, error)
	ListActiveListings(ctx context.Context, role model.Role) ([]model.Listing, error)
	ListExpiredListings(ctx context.Context, now time.Time) ([]model.Listing, error)
	ListPurgeableListings(ctx context.Context, cutoff time.Time) ([]model.Listing, error)
	// TransitionStatus atomically moves a listing from one of the expected
	// statuses to the target status. It reports false when the listing was
	// not in any expected status, in which case nothing changes.
	TransitionStatus(ctx context.Context, id int64, to model.ListingStatus, from ...model.ListingStatus) (bool, error)
	SetChannelMessageID(ctx context.Context, id int64, messageID int) error
	SetExpiry(ctx context.Context, id int64, expiresAt time.Time) error

	CreateSubscription(ctx context.Context, s *model.Subscription) error
	GetSubscription(ctx context.Context, id int64) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context, userID int64) ([]model.Subscription, error)
	ListCandidateSubscriptions(ctx context.Context, excludeUserID int64) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id int64) error

	// RecordNotification inserts a ledger entry unless one already exists
	// for the (listing, recipient) pair. It reports whether the entry was
	// actually inserted; a lost race is not an error.
	RecordNotification(ctx context.Context, e *model.NotificationEntry) (bool, error)
	NotifiedRecipients(ctx context.Context, listingID int64) (map[int64]struct{}, error)
	NotificationsForListing(ctx context.Context, listingID int64) ([]model.NotificationEntry, error)
	NotificationsReceivedBy(ctx context.Context, recipientID int64) ([]model.NotificationEntry, error)
	DeleteNotification(ctx context.Context, id int64) error

	AddRating(ctx context.Context, r *model.Rating) error
	HasRating(ctx context.Context, listingID, raterID, rateeID int64) (bool, error)
	CreateRatingRequest(ctx context.Context, r *model.RatingRequest) (bool, error)
	ListDueRatingRequests(ctx context.Context, now time.Time) ([]model.RatingRequest, error)
	MarkRatingRequestSent(ctx context.Context, id int64) error

	Close() error
}
