// Package memory contains an in-memory notifier for tests.
package memory

import (
	"context"
	"sync"
)

// SentMessage captures one send call.
type SentMessage struct {
	Recipient string
	Message   string
}

// Notifier stores sent messages for inspection and can fail on demand.
type Notifier struct {
	mu       sync.RWMutex
	messages []SentMessage

	// FailFor makes Send return the mapped error for a recipient.
	FailFor map[string]error
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Send records the message, or fails if the recipient is marked failing.
func (n *Notifier) Send(_ context.Context, recipient string, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.FailFor[recipient]; err != nil {
		return err
	}
	n.messages = append(n.messages, SentMessage{Recipient: recipient, Message: message})
	return nil
}

// Messages returns a copy of the recorded sends.
func (n *Notifier) Messages() []SentMessage {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]SentMessage, len(n.messages))
	copy(out, n.messages)
	return out
}
