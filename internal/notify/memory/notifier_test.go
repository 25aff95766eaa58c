package memory

import (
	"context"
	"errors"
	"testing"
)

func TestNotifierStoresMessages(t *testing.T) {
	t.Parallel()

	n := New()
	if err := n.Send(context.Background(), "chat-a", "hallo"); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}
	if err := n.Send(context.Background(), "chat-b", "servus"); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}

	msgs := n.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Recipient != "chat-a" || msgs[1].Recipient != "chat-b" {
		t.Fatalf("recipients not recorded correctly: %+v", msgs)
	}

	msgs[0].Recipient = "modified"
	if n.Messages()[0].Recipient == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestNotifierFailsOnDemand(t *testing.T) {
	t.Parallel()

	n := New()
	n.FailFor = map[string]error{"chat-a": errors.New("chat not found")}
	if err := n.Send(context.Background(), "chat-a", "hallo"); err == nil {
		t.Fatal("expected configured failure")
	}
	if len(n.Messages()) != 0 {
		t.Fatal("failed send must not be recorded")
	}
}
