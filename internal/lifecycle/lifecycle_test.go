package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"ride_bot/internal/model"
	"ride_bot/internal/notify"
	"ride_bot/internal/storage"
)

type delivered struct {
	ChatID    int64
	MessageID int
	Text      string
}

// fakeTransport records every transport call and hands out sequential
// message IDs.
type fakeTransport struct {
	mu            sync.Mutex
	nextID        int
	published     map[int]string // channel messageID -> text
	lastPublished notify.Message
	delivered     []delivered
	retracted     []delivered
	deliverErr    error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{published: make(map[int]string)}
}

func (f *fakeTransport) Publish(_ context.Context, msg notify.Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.published[f.nextID] = msg.Text
	f.lastPublished = msg
	return f.nextID, nil
}

func (f *fakeTransport) EditPublished(_ context.Context, messageID int, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.published[messageID]; !ok {
		return errors.New("no such channel message")
	}
	f.published[messageID] = msg.Text
	return nil
}

func (f *fakeTransport) Unpublish(_ context.Context, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.published, messageID)
	return nil
}

func (f *fakeTransport) Deliver(_ context.Context, chatID int64, msg notify.Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deliverErr != nil {
		return 0, f.deliverErr
	}
	f.nextID++
	f.delivered = append(f.delivered, delivered{ChatID: chatID, MessageID: f.nextID, Text: msg.Text})
	return f.nextID, nil
}

func (f *fakeTransport) Retract(_ context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retracted = append(f.retracted, delivered{ChatID: chatID, MessageID: messageID})
	return nil
}

func (f *fakeTransport) deliveredTo(chatID int64) []delivered {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []delivered
	for _, d := range f.delivered {
		if d.ChatID == chatID {
			out = append(out, d)
		}
	}
	return out
}

type fixture struct {
	store     *storage.SQLite
	transport *fakeTransport
	ctrl      *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	transport := newFakeTransport()
	dispatcher := notify.NewDispatcher(store, transport, log)
	ctrl := NewController(store, transport, dispatcher, log, "ride_test_bot", time.Hour, 270)
	return &fixture{store: store, transport: transport, ctrl: ctrl}
}

func (fx *fixture) user(t *testing.T, telegramID int64, role model.Role) *model.User {
	t.Helper()
	u := &model.User{TelegramID: telegramID, Role: role, Phone: "+996700000001"}
	if err := fx.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (fx *fixture) subscription(t *testing.T, owner *model.User, from, to string) *model.Subscription {
	t.Helper()
	sub, err := fx.ctrl.AddSubscription(context.Background(), owner, from, to)
	if err != nil {
		t.Fatalf("add subscription: %v", err)
	}
	return sub
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driver := fx.user(t, 1, model.RoleDriver)

	tests := []struct {
		name string
		in   CreateInput
	}{
		{name: "empty origin keys", in: CreateInput{FromPlace: "12 45", ToPlace: "центр", Price: 100}},
		{name: "empty destination keys", in: CreateInput{FromPlace: "ош базар", ToPlace: "7", Price: 100}},
		{name: "zero price", in: CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 0}},
		{name: "price above cap", in: CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 9000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := fx.ctrl.Create(ctx, driver, tt.in); !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreatePublishesAndNotifiesSubscribers(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driver := fx.user(t, 1, model.RoleDriver)
	subscriber := fx.user(t, 2, model.RolePassenger)
	outsider := fx.user(t, 3, model.RolePassenger)

	fx.subscription(t, subscriber, "базар", "север")
	// Origin leg demands a key the listing will not have.
	fx.subscription(t, outsider, "юг базар", "север")

	l, err := fx.ctrl.Create(ctx, driver, CreateInput{
		FromPlace: "Северный базар", ToPlace: "Север центр", Price: 150, Seats: 3,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if l.ChannelMessageID == 0 {
		t.Error("listing not published to channel")
	}
	if got := fx.transport.deliveredTo(subscriber.TelegramID); len(got) != 1 {
		t.Fatalf("subscriber got %d notifications, want 1", len(got))
	}
	if got := fx.transport.deliveredTo(outsider.TelegramID); len(got) != 0 {
		t.Fatalf("outsider got %d notifications, want 0 (subset test must fail)", len(got))
	}

	notified, err := fx.store.NotifiedRecipients(ctx, l.ID)
	if err != nil {
		t.Fatalf("notified: %v", err)
	}
	if _, ok := notified[subscriber.ID]; !ok || len(notified) != 1 {
		t.Fatalf("ledger = %v, want exactly {%d}", notified, subscriber.ID)
	}
}

func TestChannelPostCarriesContactLink(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driver := fx.user(t, 1, model.RoleDriver)

	l, err := fx.ctrl.Create(ctx, driver, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	fx.transport.mu.Lock()
	msg := fx.transport.lastPublished
	fx.transport.mu.Unlock()

	if len(msg.Buttons) == 0 || len(msg.Buttons[0]) == 0 {
		t.Fatal("channel post published without a keyboard")
	}
	btn := msg.Buttons[0][0]
	if btn.URL == "" {
		t.Fatalf("channel button is not a link: %+v", btn)
	}
	if !strings.Contains(btn.URL, "t.me/ride_test_bot") || !strings.HasSuffix(btn.URL, "?start=post_"+strconv.FormatInt(l.ID, 10)) {
		t.Errorf("deep link = %q", btn.URL)
	}
}

func TestSecondActiveListingRejected(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driver := fx.user(t, 1, model.RoleDriver)

	first, err := fx.ctrl.Create(ctx, driver, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := fx.ctrl.Create(ctx, driver, CreateInput{FromPlace: "мадина", ToPlace: "центр", Price: 100}); !errors.Is(err, ErrConflict) {
		t.Fatalf("second create: err = %v, want ErrConflict", err)
	}

	// The existing listing is untouched.
	got, err := fx.store.GetListing(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusActive {
		t.Errorf("first listing status = %s, want active", got.Status)
	}
}

func TestOppositeRoleMatchNotifiesBothSides(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driver := fx.user(t, 1, model.RoleDriver)
	passenger := fx.user(t, 2, model.RolePassenger)

	if _, err := fx.ctrl.Create(ctx, passenger, CreateInput{FromPlace: "Ош базар", ToPlace: "Аламедин", Price: 100}); err != nil {
		t.Fatalf("create passenger listing: %v", err)
	}
	driverListing, err := fx.ctrl.Create(ctx, driver, CreateInput{FromPlace: "ош базар центр", ToPlace: "аламедин базар", Price: 120})
	if err != nil {
		t.Fatalf("create driver listing: %v", err)
	}

	if got := fx.transport.deliveredTo(passenger.TelegramID); len(got) != 1 {
		t.Errorf("passenger got %d notifications, want 1", len(got))
	}
	if got := fx.transport.deliveredTo(driver.TelegramID); len(got) != 1 {
		t.Errorf("driver got %d notifications, want 1", len(got))
	}

	notified, err := fx.store.NotifiedRecipients(ctx, driverListing.ID)
	if err != nil {
		t.Fatalf("notified: %v", err)
	}
	if _, ok := notified[passenger.ID]; !ok {
		t.Error("passenger missing from driver listing ledger")
	}
}

func TestReverseDirectionNeverMatches(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driver := fx.user(t, 1, model.RoleDriver)
	passenger := fx.user(t, 2, model.RolePassenger)

	if _, err := fx.ctrl.Create(ctx, driver, CreateInput{FromPlace: "базар", ToPlace: "север", Price: 100}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := fx.ctrl.Create(ctx, passenger, CreateInput{FromPlace: "север", ToPlace: "базар", Price: 100}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if got := fx.transport.deliveredTo(driver.TelegramID); len(got) != 0 {
		t.Errorf("driver notified about reverse route: %v", got)
	}
	if got := fx.transport.deliveredTo(passenger.TelegramID); len(got) != 0 {
		t.Errorf("passenger notified about reverse route: %v", got)
	}
}

func TestSameRoleNeverMatches(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	a := fx.user(t, 1, model.RoleDriver)
	b := fx.user(t, 2, model.RoleDriver)

	if _, err := fx.ctrl.Create(ctx, a, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := fx.ctrl.Create(ctx, b, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if got := fx.transport.deliveredTo(a.TelegramID); len(got) != 0 {
		t.Errorf("same-role authors notified about each other: %v", got)
	}
}

func TestPauseRevokesExactlyThisListing(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driverA := fx.user(t, 1, model.RoleDriver)
	driverB := fx.user(t, 2, model.RoleDriver)
	subscriber := fx.user(t, 3, model.RolePassenger)

	fx.subscription(t, subscriber, "ош", "центр")

	la, err := fx.ctrl.Create(ctx, driverA, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100})
	if err != nil {
		t.Fatalf("create A: %v", err)
	}
	lb, err := fx.ctrl.Create(ctx, driverB, CreateInput{FromPlace: "ош базар", ToPlace: "центр", Price: 110})
	if err != nil {
		t.Fatalf("create B: %v", err)
	}

	if err := fx.ctrl.Pause(ctx, la.ID, driverA.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// Listing A's entries are gone, listing B's survive.
	aEntries, err := fx.store.NotificationsForListing(ctx, la.ID)
	if err != nil {
		t.Fatalf("entries A: %v", err)
	}
	if len(aEntries) != 0 {
		t.Errorf("listing A still has %d ledger entries", len(aEntries))
	}
	bEntries, err := fx.store.NotificationsForListing(ctx, lb.ID)
	if err != nil {
		t.Fatalf("entries B: %v", err)
	}
	if len(bEntries) != 1 {
		t.Errorf("listing B has %d ledger entries, want 1", len(bEntries))
	}

	// The subscriber's delivered message about A was retracted.
	if len(fx.transport.retracted) == 0 {
		t.Error("no transport retraction happened")
	}

	got, err := fx.store.GetListing(ctx, la.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusPaused {
		t.Errorf("status = %s, want paused", got.Status)
	}
	if got.ChannelMessageID != 0 {
		t.Errorf("channel message not cleared: %d", got.ChannelMessageID)
	}
}

func TestPauseRevokesAuthorsReceivedNotifications(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driver := fx.user(t, 1, model.RoleDriver)
	passenger := fx.user(t, 2, model.RolePassenger)

	pl, err := fx.ctrl.Create(ctx, passenger, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100})
	if err != nil {
		t.Fatalf("create passenger listing: %v", err)
	}
	dl, err := fx.ctrl.Create(ctx, driver, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100})
	if err != nil {
		t.Fatalf("create driver listing: %v", err)
	}

	// Both sides hold one received notification each.
	if n, _ := fx.store.NotificationsReceivedBy(ctx, driver.ID); len(n) != 1 {
		t.Fatalf("driver received %d, want 1", len(n))
	}

	if err := fx.ctrl.Pause(ctx, dl.ID, driver.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// Entries for the driver's listing and entries the driver received are
	// both gone; the passenger listing's ledger no longer mentions driver.
	if n, _ := fx.store.NotificationsForListing(ctx, dl.ID); len(n) != 0 {
		t.Errorf("driver listing ledger not empty: %d", len(n))
	}
	if n, _ := fx.store.NotificationsReceivedBy(ctx, driver.ID); len(n) != 0 {
		t.Errorf("driver still holds %d received notifications", len(n))
	}
	if n, _ := fx.store.NotificationsForListing(ctx, pl.ID); len(n) != 0 {
		t.Errorf("passenger listing ledger should be empty after driver withdrew, has %d", len(n))
	}
}

func TestResumeSuppressesDuplicateNotifications(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driver := fx.user(t, 1, model.RoleDriver)
	subscriber := fx.user(t, 2, model.RolePassenger)
	fx.subscription(t, subscriber, "ош", "центр")

	l, err := fx.ctrl.Create(ctx, driver, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := fx.transport.deliveredTo(subscriber.TelegramID); len(got) != 1 {
		t.Fatalf("after create: %d notifications, want 1", len(got))
	}

	// Pause revokes, resume re-discovers: one fresh notification.
	if err := fx.ctrl.Pause(ctx, l.ID, driver.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := fx.ctrl.Resume(ctx, l.ID, driver.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := fx.transport.deliveredTo(subscriber.TelegramID); len(got) != 2 {
		t.Fatalf("after resume: %d total deliveries, want 2", len(got))
	}

	// A second resume is a conflict and must not re-notify.
	if err := fx.ctrl.Resume(ctx, l.ID, driver.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("resume active listing: err = %v, want ErrConflict", err)
	}
	if got := fx.transport.deliveredTo(subscriber.TelegramID); len(got) != 2 {
		t.Fatalf("conflicting resume caused deliveries: %d", len(got))
	}

	// Only one ledger row exists regardless.
	entries, err := fx.store.NotificationsForListing(ctx, l.ID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(entries))
	}
}

func TestResumeAfterExpiryNeverRedeliversPairMatch(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driver := fx.user(t, 1, model.RoleDriver)
	passenger := fx.user(t, 2, model.RolePassenger)

	if _, err := fx.ctrl.Create(ctx, passenger, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100}); err != nil {
		t.Fatalf("create passenger listing: %v", err)
	}
	dl, err := fx.ctrl.Create(ctx, driver, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100})
	if err != nil {
		t.Fatalf("create driver listing: %v", err)
	}
	if got := fx.transport.deliveredTo(passenger.TelegramID); len(got) != 1 {
		t.Fatalf("after create: %d deliveries to passenger, want 1", len(got))
	}

	// Expiry keeps the ledger, so resuming must not touch the passenger at
	// all, not even with a send-then-retract flicker.
	if err := fx.ctrl.SweepExpire(ctx, dl); err != nil {
		t.Fatalf("sweep expire: %v", err)
	}
	if err := fx.ctrl.Resume(ctx, dl.ID, driver.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}

	if got := fx.transport.deliveredTo(passenger.TelegramID); len(got) != 1 {
		t.Errorf("resume redelivered to passenger: %d deliveries", len(got))
	}
	if len(fx.transport.retracted) != 0 {
		t.Errorf("resume caused %d retractions, want 0", len(fx.transport.retracted))
	}
}

func TestExtendResetsDeadlineWithoutRematch(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driver := fx.user(t, 1, model.RoleDriver)
	subscriber := fx.user(t, 2, model.RolePassenger)
	fx.subscription(t, subscriber, "ош", "центр")

	l, err := fx.ctrl.Create(ctx, driver, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before, err := fx.store.GetListing(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	time.Sleep(1100 * time.Millisecond) // stored timestamps have second resolution
	if err := fx.ctrl.Extend(ctx, l.ID, driver.ID); err != nil {
		t.Fatalf("extend: %v", err)
	}

	after, err := fx.store.GetListing(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !after.ExpiresAt.After(before.ExpiresAt) {
		t.Errorf("deadline not moved: before %s, after %s", before.ExpiresAt, after.ExpiresAt)
	}
	if got := fx.transport.deliveredTo(subscriber.TelegramID); len(got) != 1 {
		t.Errorf("extend re-ran matching: %d deliveries", len(got))
	}
}

func TestDeleteFromTakenAndDoubleDelete(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driver := fx.user(t, 1, model.RoleDriver)

	l, err := fx.ctrl.Create(ctx, driver, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := fx.ctrl.Take(ctx, l.ID); err != nil {
		t.Fatalf("take: %v", err)
	}

	if err := fx.ctrl.Delete(ctx, l.ID, driver.ID); err != nil {
		t.Fatalf("delete taken listing: %v", err)
	}
	got, err := fx.store.GetListing(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusDeleted {
		t.Errorf("status = %s, want deleted", got.Status)
	}

	if err := fx.ctrl.Delete(ctx, l.ID, driver.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("double delete: err = %v, want ErrConflict", err)
	}
}

func TestTakeEditsChannelPostAndKeepsLedger(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driver := fx.user(t, 1, model.RoleDriver)
	subscriber := fx.user(t, 2, model.RolePassenger)
	fx.subscription(t, subscriber, "ош", "центр")

	l, err := fx.ctrl.Create(ctx, driver, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := fx.ctrl.Take(ctx, l.ID); err != nil {
		t.Fatalf("take: %v", err)
	}

	fx.transport.mu.Lock()
	text := fx.transport.published[l.ChannelMessageID]
	fx.transport.mu.Unlock()
	if text == "" || text == notify.FormatChannelPost(l) {
		t.Errorf("channel post not replaced with taken note: %q", text)
	}

	// Taken is terminal for matching but keeps notifications.
	if n, _ := fx.store.NotificationsForListing(ctx, l.ID); len(n) != 1 {
		t.Errorf("ledger entries = %d, want 1 (take must not revoke)", len(n))
	}

	if err := fx.ctrl.Take(ctx, l.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("second take: err = %v, want ErrConflict", err)
	}
}

func TestSweepExpireIsIdempotentAndKeepsLedger(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driver := fx.user(t, 1, model.RoleDriver)
	subscriber := fx.user(t, 2, model.RolePassenger)
	fx.subscription(t, subscriber, "ош", "центр")

	l, err := fx.ctrl.Create(ctx, driver, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := fx.ctrl.SweepExpire(ctx, l); err != nil {
		t.Fatalf("sweep expire: %v", err)
	}
	got, err := fx.store.GetListing(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}

	// Author got an expiry notice.
	if n := fx.transport.deliveredTo(driver.TelegramID); len(n) != 1 {
		t.Errorf("author notices = %d, want 1", len(n))
	}

	// Second sweep of the same listing is a no-op.
	if err := fx.ctrl.SweepExpire(ctx, l); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n := fx.transport.deliveredTo(driver.TelegramID); len(n) != 1 {
		t.Errorf("second sweep re-notified author: %d notices", len(n))
	}

	// Expiry does not retract match notifications.
	if n, _ := fx.store.NotificationsForListing(ctx, l.ID); len(n) != 1 {
		t.Errorf("ledger entries = %d, want 1 (expire must not revoke)", len(n))
	}
	// The channel message stays during the grace period.
	if got.ChannelMessageID == 0 {
		t.Error("channel message purged before grace period")
	}
}

func TestPurgeClearsChannelMessageOnce(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	driver := fx.user(t, 1, model.RoleDriver)

	l, err := fx.ctrl.Create(ctx, driver, CreateInput{FromPlace: "ош", ToPlace: "центр", Price: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := fx.ctrl.SweepExpire(ctx, l); err != nil {
		t.Fatalf("sweep expire: %v", err)
	}

	fresh, err := fx.store.GetListing(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := fx.ctrl.Purge(ctx, fresh); err != nil {
		t.Fatalf("purge: %v", err)
	}

	got, err := fx.store.GetListing(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ChannelMessageID != 0 {
		t.Errorf("channel message not cleared: %d", got.ChannelMessageID)
	}

	// Purging again is a no-op.
	if err := fx.ctrl.Purge(ctx, got); err != nil {
		t.Fatalf("second purge: %v", err)
	}
}

func TestActionsOnForeignListingAreHidden(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	owner := fx.user(t, 1, model.RoleDriver)
	stranger := fx.user(t, 2, model.RolePassenger)

	l, err := fx.ctrl.Create(ctx, owner, CreateInput{FromPlace: "мадина", ToPlace: "центр", Price: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := fx.ctrl.Pause(ctx, l.ID, stranger.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("pause foreign listing: err = %v, want ErrNotFound", err)
	}
	if err := fx.ctrl.Delete(ctx, l.ID, stranger.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete foreign listing: err = %v, want ErrNotFound", err)
	}
	if err := fx.ctrl.Pause(ctx, 9999, owner.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("pause missing listing: err = %v, want ErrNotFound", err)
	}
}

func TestAddSubscriptionValidationAndDuplicates(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	u := fx.user(t, 1, model.RolePassenger)

	if _, err := fx.ctrl.AddSubscription(ctx, u, "123", "центр"); !errors.Is(err, ErrValidation) {
		t.Errorf("numeric origin: err = %v, want ErrValidation", err)
	}

	if _, err := fx.ctrl.AddSubscription(ctx, u, "Ош базар", "центр"); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Same canonical route, different raw spelling.
	if _, err := fx.ctrl.AddSubscription(ctx, u, "ош  базар!!", "ЦЕНТР"); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate route: err = %v, want ErrConflict", err)
	}
}

func TestRemoveSubscription(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	owner := fx.user(t, 1, model.RolePassenger)
	stranger := fx.user(t, 2, model.RolePassenger)

	sub := fx.subscription(t, owner, "ош", "центр")

	if err := fx.ctrl.RemoveSubscription(ctx, sub.ID, stranger.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign removal: err = %v, want ErrNotFound", err)
	}
	if err := fx.ctrl.RemoveSubscription(ctx, sub.ID, owner.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := fx.ctrl.RemoveSubscription(ctx, sub.ID, owner.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second removal: err = %v, want ErrNotFound", err)
	}
}
