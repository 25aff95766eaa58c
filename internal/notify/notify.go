// Package notify defines the outbound notification contract for newly
// discovered shows.
package notify

import "context"

// Notifier delivers one rendered message to one recipient. The recipient
// format is backend-specific: a chat ID for Telegram, an attribute for
// Pub/Sub consumers.
type Notifier interface {
	Send(ctx context.Context, recipient string, message string) error
}

// Noop discards all messages. It backs runs where no notifier is configured.
type Noop struct{}

// Send discards the message.
func (Noop) Send(context.Context, string, string) error { return nil }
