// Package notify delivers match and lifecycle notifications and keeps the
// ledger that makes delivery idempotent.
package notify

import "context"

// Button is one inline keyboard button. Data carries a callback payload;
// URL makes the button an external link instead. Exactly one of the two is
// set.
type Button struct {
	Label string
	Data  string
	URL   string
}

// Message is transport-agnostic outgoing content.
type Message struct {
	Text    string
	Buttons [][]Button
}

// Transport is the messaging boundary. Every method is best-effort from the
// core's point of view: failures are logged by callers and never abort a
// state transition.
type Transport interface {
	// Publish posts to the shared channel and returns the message reference.
	Publish(ctx context.Context, msg Message) (int, error)
	// EditPublished replaces the content of a channel message.
	EditPublished(ctx context.Context, messageID int, msg Message) error
	// Unpublish removes a channel message.
	Unpublish(ctx context.Context, messageID int) error
	// Deliver sends a private message and returns the message reference.
	Deliver(ctx context.Context, chatID int64, msg Message) (int, error)
	// Retract removes a previously delivered private message.
	Retract(ctx context.Context, chatID int64, messageID int) error
}
