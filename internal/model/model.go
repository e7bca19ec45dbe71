// Package model defines the domain types used across the application.
package model

import "time"

// Role distinguishes the two sides of the marketplace.
type Role string

// Supported roles.
const (
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

// Opposite returns the complementary role.
func (r Role) Opposite() Role {
	if r == RoleDriver {
		return RolePassenger
	}
	return RoleDriver
}

// ListingStatus is the visibility state of a listing.
type ListingStatus string

// Listing lifecycle states.
const (
	StatusActive  ListingStatus = "active"
	StatusPaused  ListingStatus = "paused"
	StatusExpired ListingStatus = "expired"
	StatusDeleted ListingStatus = "deleted"
	StatusTaken   ListingStatus = "taken"
)

// User is a registered bot user.
type User struct {
	ID          int64
	TelegramID  int64
	Username    string
	Role        Role
	Phone       string
	Rating      float64
	RatingCount int
	CreatedAt   time.Time
}

// Listing is a posted travel intent.
type Listing struct {
	ID        int64
	AuthorID  int64
	Role      Role
	FromPlace string
	ToPlace   string
	// Route keys derived from FromPlace/ToPlace; the only values ever
	// compared for matching.
	KeysFrom []string
	KeysTo   []string

	DepartureTime string
	Seats         int // drivers only, 0 when unset
	Price         int

	Status           ListingStatus
	ChannelMessageID int // 0 when not published or already purged
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Subscription is a standing route watch owned by a user.
type Subscription struct {
	ID        int64
	UserID    int64
	KeysFrom  []string
	KeysTo    []string
	FromText  string
	ToText    string
	CreatedAt time.Time
}

// NotificationEntry records that a recipient was told about a listing.
// At most one entry exists per (listing, recipient) pair.
type NotificationEntry struct {
	ID                  int64
	ListingID           int64
	RecipientID         int64
	MessageID           int // delivered Telegram message, 0 if unknown
	RecipientTelegramID int64
	SentAt              time.Time
}

// Rating is a 1-5 star review of one user by another, tied to a listing.
type Rating struct {
	ID        int64
	RaterID   int64
	RateeID   int64
	ListingID int64
	Stars     int
	CreatedAt time.Time
}

// RatingRequest is a deferred prompt asking RaterID to rate RateeID.
type RatingRequest struct {
	ID          int64
	ListingID   int64
	RaterID     int64
	RateeID     int64
	ScheduledAt time.Time
	Sent        bool
	CreatedAt   time.Time
}
