package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"ride_bot/internal/model"
	"ride_bot/internal/routekey"
	"ride_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// CreateUser inserts a new user and populates its ID and CreatedAt.
func (s *SQLite) CreateUser(ctx context.Context, u *model.User) error {
	now := formatTime(time.Now())
	if u.Rating == 0 {
		u.Rating = 5.0
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (telegram_id, username, role, phone, rating, rating_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.TelegramID, u.Username, string(u.Role), u.Phone, u.Rating, u.RatingCount, now,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	u.ID = id
	u.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetUser returns a single user by its internal ID.
func (s *SQLite) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByTelegramID returns a single user by Telegram ID.
func (s *SQLite) GetUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.getUser(ctx, `WHERE telegram_id = ?`, telegramID)
}

func (s *SQLite) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, telegram_id, username, role, phone, rating, rating_count, created_at
		 FROM users `+where, arg,
	)
	var u model.User
	var roleStr, createdStr string
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &roleStr, &u.Phone, &u.Rating, &u.RatingCount, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = model.Role(roleStr)
	u.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return &u, nil
}

// UpdateUser persists changes to an existing user.
func (s *SQLite) UpdateUser(ctx context.Context, u *model.User) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, role = ?, phone = ?, rating = ?, rating_count = ? WHERE id = ?`,
		u.Username, string(u.Role), u.Phone, u.Rating, u.RatingCount, u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

const listingColumns = `id, author_id, role, from_place, to_place, keys_from, keys_to,
	departure_time, seats, price, status, channel_message_id, created_at, expires_at`

// CreateListing inserts a new listing and populates its ID and CreatedAt.
func (s *SQLite) CreateListing(ctx context.Context, l *model.Listing) error {
	now := formatTime(time.Now())
	if l.Status == "" {
		l.Status = model.StatusActive
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO listings (author_id, role, from_place, to_place, keys_from, keys_to,
		   departure_time, seats, price, status, channel_message_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.AuthorID, string(l.Role), l.FromPlace, l.ToPlace,
		routekey.Canonical(l.KeysFrom), routekey.Canonical(l.KeysTo),
		l.DepartureTime, l.Seats, l.Price, string(l.Status), l.ChannelMessageID,
		now, formatTime(l.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	l.ID = id
	l.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetListing returns a single listing by its ID.
func (s *SQLite) GetListing(ctx context.Context, id int64) (*model.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = ?`, id,
	)
	return scanListing(row)
}

// GetActiveListingByAuthor returns the author's active listing, if any.
func (s *SQLite) GetActiveListingByAuthor(ctx context.Context, authorID int64) (*model.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE author_id = ? AND status = ? LIMIT 1`,
		authorID, string(model.StatusActive),
	)
	return scanListing(row)
}

// ListOwnListings returns the author's visible (active or paused) listings.
func (s *SQLite) ListOwnListings(ctx context.Context, authorID int64) ([]model.Listing, error) {
	return s.queryListings(ctx,
		`SELECT `+listingColumns+` FROM listings
		 WHERE author_id = ? AND status IN (?, ?) ORDER BY id`,
		authorID, string(model.StatusActive), string(model.StatusPaused),
	)
}

// ListActiveListings returns all active listings with the given role.
func (s *SQLite) ListActiveListings(ctx context.Context, role model.Role) ([]model.Listing, error) {
	return s.queryListings(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE status = ? AND role = ? ORDER BY id`,
		string(model.StatusActive), string(role),
	)
}

// ListExpiredListings returns active listings whose deadline has passed.
func (s *SQLite) ListExpiredListings(ctx context.Context, now time.Time) ([]model.Listing, error) {
	return s.queryListings(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE status = ? AND expires_at < ? ORDER BY id`,
		string(model.StatusActive), formatTime(now),
	)
}

// ListPurgeableListings returns expired listings past the grace cutoff that
// still have a channel message to remove.
func (s *SQLite) ListPurgeableListings(ctx context.Context, cutoff time.Time) ([]model.Listing, error) {
	return s.queryListings(ctx,
		`SELECT `+listingColumns+` FROM listings
		 WHERE status = ? AND expires_at < ? AND channel_message_id != 0 ORDER BY id`,
		string(model.StatusExpired), formatTime(cutoff),
	)
}

// TransitionStatus applies a guarded status change. The UPDATE only matches
// when the row is still in one of the expected source states, which is what
// serializes racing interactive actions and the sweeper.
func (s *SQLite) TransitionStatus(ctx context.Context, id int64, to model.ListingStatus, from ...model.ListingStatus) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition to %s: no source status given", to)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	args := make([]any, 0, len(from)+2)
	args = append(args, string(to), id)
	for _, f := range from {
		args = append(args, string(f))
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET status = ? WHERE id = ? AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// SetChannelMessageID updates the listing's channel message reference.
func (s *SQLite) SetChannelMessageID(ctx context.Context, id int64, messageID int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE listings SET channel_message_id = ? WHERE id = ?`, messageID, id,
	)
	if err != nil {
		return fmt.Errorf("set channel message: %w", err)
	}
	return nil
}

// SetExpiry moves the listing's deadline.
func (s *SQLite) SetExpiry(ctx context.Context, id int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE listings SET expires_at = ? WHERE id = ?`, formatTime(expiresAt), id,
	)
	if err != nil {
		return fmt.Errorf("set expiry: %w", err)
	}
	return nil
}

// CreateSubscription inserts a new subscription. Returns ErrDuplicate when
// the owner already watches the same canonical route.
func (s *SQLite) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (user_id, keys_from, keys_to, from_text, to_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sub.UserID, routekey.Canonical(sub.KeysFrom), routekey.Canonical(sub.KeysTo),
		sub.FromText, sub.ToText, now,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	sub.ID = id
	sub.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetSubscription returns a single subscription by its ID.
func (s *SQLite) GetSubscription(ctx context.Context, id int64) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, keys_from, keys_to, from_text, to_text, created_at
		 FROM subscriptions WHERE id = ?`, id,
	)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ListSubscriptions returns all subscriptions owned by the user.
func (s *SQLite) ListSubscriptions(ctx context.Context, userID int64) ([]model.Subscription, error) {
	return s.querySubscriptions(ctx,
		`SELECT id, user_id, keys_from, keys_to, from_text, to_text, created_at
		 FROM subscriptions WHERE user_id = ? ORDER BY id`, userID,
	)
}

// ListCandidateSubscriptions returns every subscription not owned by the
// given user, the candidate population for match discovery.
func (s *SQLite) ListCandidateSubscriptions(ctx context.Context, excludeUserID int64) ([]model.Subscription, error) {
	return s.querySubscriptions(ctx,
		`SELECT id, user_id, keys_from, keys_to, from_text, to_text, created_at
		 FROM subscriptions WHERE user_id != ? ORDER BY id`, excludeUserID,
	)
}

// DeleteSubscription removes a subscription by its ID.
func (s *SQLite) DeleteSubscription(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// RecordNotification inserts a ledger entry unless the (listing, recipient)
// pair already has one. The unique index, not application logic, is what
// collapses racing duplicate dispatches.
func (s *SQLite) RecordNotification(ctx context.Context, e *model.NotificationEntry) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notifications (listing_id, recipient_id, message_id, recipient_telegram_id, sent_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ListingID, e.RecipientID, e.MessageID, e.RecipientTelegramID, now,
	)
	if err != nil {
		return false, fmt.Errorf("record notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	e.ID = id
	e.SentAt, _ = time.Parse(timeLayout, now)
	return true, nil
}

// NotifiedRecipients returns the IDs of all users already notified about the
// listing, used to filter candidates before dispatch.
func (s *SQLite) NotifiedRecipients(ctx context.Context, listingID int64) (map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recipient_id FROM notifications WHERE listing_id = ?`, listingID,
	)
	if err != nil {
		return nil, fmt.Errorf("query notified recipients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	recipients := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		recipients[id] = struct{}{}
	}
	return recipients, rows.Err()
}

// NotificationsForListing returns all ledger entries tied to a listing.
func (s *SQLite) NotificationsForListing(ctx context.Context, listingID int64) ([]model.NotificationEntry, error) {
	return s.queryNotifications(ctx,
		`SELECT id, listing_id, recipient_id, message_id, recipient_telegram_id, sent_at
		 FROM notifications WHERE listing_id = ? ORDER BY id`, listingID,
	)
}

// NotificationsReceivedBy returns all ledger entries delivered to a user.
func (s *SQLite) NotificationsReceivedBy(ctx context.Context, recipientID int64) ([]model.NotificationEntry, error) {
	return s.queryNotifications(ctx,
		`SELECT id, listing_id, recipient_id, message_id, recipient_telegram_id, sent_at
		 FROM notifications WHERE recipient_id = ? ORDER BY id`, recipientID,
	)
}

// DeleteNotification removes a single ledger entry.
func (s *SQLite) DeleteNotification(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// AddRating stores a rating and folds it into the ratee's running average,
// in one transaction. Returns ErrDuplicate when this rater already rated
// this ratee for this listing.
func (s *SQLite) AddRating(ctx context.Context, r *model.Rating) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO ratings (rater_id, ratee_id, listing_id, stars, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.RaterID, r.RateeID, r.ListingID, r.Stars, now,
	)
	if err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt, _ = time.Parse(timeLayout, now)

	_, err = tx.ExecContext(ctx,
		`UPDATE users
		 SET rating = (rating * rating_count + ?) / (rating_count + 1),
		     rating_count = rating_count + 1
		 WHERE id = ?`,
		r.Stars, r.RateeID,
	)
	if err != nil {
		return fmt.Errorf("update user rating: %w", err)
	}
	return tx.Commit()
}

// HasRating reports whether the rater already rated the ratee for a listing.
func (s *SQLite) HasRating(ctx context.Context, listingID, raterID, rateeID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ratings WHERE listing_id = ? AND rater_id = ? AND ratee_id = ?`,
		listingID, raterID, rateeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check rating: %w", err)
	}
	return count > 0, nil
}

// CreateRatingRequest schedules a rating prompt unless one already exists
// for the (listing, rater, ratee) triple. Reports whether it was created.
func (s *SQLite) CreateRatingRequest(ctx context.Context, r *model.RatingRequest) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO rating_requests (listing_id, rater_id, ratee_id, scheduled_at, sent, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		r.ListingID, r.RaterID, r.RateeID, formatTime(r.ScheduledAt), now,
	)
	if err != nil {
		return false, fmt.Errorf("insert rating request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt, _ = time.Parse(timeLayout, now)
	return true, nil
}

// ListDueRatingRequests returns unsent rating requests whose scheduled time
// has passed.
func (s *SQLite) ListDueRatingRequests(ctx context.Context, now time.Time) ([]model.RatingRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, listing_id, rater_id, ratee_id, scheduled_at, sent, created_at
		 FROM rating_requests WHERE sent = 0 AND scheduled_at <= ? ORDER BY id`,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("query due rating requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reqs []model.RatingRequest
	for rows.Next() {
		var r model.RatingRequest
		var sent int
		var scheduledStr, createdStr string
		if err := rows.Scan(&r.ID, &r.ListingID, &r.RaterID, &r.RateeID, &scheduledStr, &sent, &createdStr); err != nil {
			return nil, fmt.Errorf("scan rating request: %w", err)
		}
		r.Sent = sent == 1
		r.ScheduledAt, _ = time.Parse(timeLayout, scheduledStr)
		r.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// MarkRatingRequestSent flips the sent flag on a rating request.
func (s *SQLite) MarkRatingRequestSent(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE rating_requests SET sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark rating request sent: %w", err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanListing(row scannable) (*model.Listing, error) {
	var l model.Listing
	var roleStr, statusStr, keysFrom, keysTo, createdStr, expiresStr string
	err := row.Scan(
		&l.ID, &l.AuthorID, &roleStr, &l.FromPlace, &l.ToPlace, &keysFrom, &keysTo,
		&l.DepartureTime, &l.Seats, &l.Price, &statusStr, &l.ChannelMessageID,
		&createdStr, &expiresStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	l.Role = model.Role(roleStr)
	l.Status = model.ListingStatus(statusStr)
	l.KeysFrom = routekey.FromCanonical(keysFrom)
	l.KeysTo = routekey.FromCanonical(keysTo)
	l.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	l.ExpiresAt, _ = time.Parse(timeLayout, expiresStr)
	return &l, nil
}

func (s *SQLite) queryListings(ctx context.Context, query string, args ...any) ([]model.Listing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var listings []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func scanSubscription(row scannable) (*model.Subscription, error) {
	var sub model.Subscription
	var keysFrom, keysTo, createdStr string
	err := row.Scan(&sub.ID, &sub.UserID, &keysFrom, &keysTo, &sub.FromText, &sub.ToText, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	sub.KeysFrom = routekey.FromCanonical(keysFrom)
	sub.KeysTo = routekey.FromCanonical(keysTo)
	sub.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return &sub, nil
}

func (s *SQLite) querySubscriptions(ctx context.Context, query string, args ...any) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (s *SQLite) queryNotifications(ctx context.Context, query string, args ...any) ([]model.NotificationEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.NotificationEntry
	for rows.Next() {
		var e model.NotificationEntry
		var sentStr string
		if err := rows.Scan(&e.ID, &e.ListingID, &e.RecipientID, &e.MessageID, &e.RecipientTelegramID, &sentStr); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		e.SentAt, _ = time.Parse(timeLayout, sentStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
