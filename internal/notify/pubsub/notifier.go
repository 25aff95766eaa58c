// Package pubsub implements a Google Cloud Pub/Sub notifier. Messages land
// on one topic with the recipient carried as an attribute, so downstream
// consumers handle the fan-out.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Topic is the slice of *pubsub.Topic the notifier uses.
type Topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// Notifier publishes notification messages to a Pub/Sub topic.
type Notifier struct {
	topic Topic
}

// New creates a Notifier for the provided topic.
func New(topic Topic) *Notifier {
	return &Notifier{topic: topic}
}

// Send publishes the message with the recipient as an attribute and waits
// for the server-assigned ID.
func (n *Notifier) Send(ctx context.Context, recipient string, message string) error {
	if n.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:       []byte(message),
		Attributes: map[string]string{"recipient": recipient},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
