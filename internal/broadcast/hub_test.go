package broadcast

import (
	"testing"
)

func TestPublishWithoutSubscribersDrops(t *testing.T) {
	hub := NewHub()

	if got := hub.Publish("run-1", "msg"); got != 0 {
		t.Errorf("Publish to empty hub delivered %d, want 0", got)
	}
}

func TestSubscribeReceivesMessages(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("run-1")
	defer cancel()

	if got := hub.Publish("run-1", "hello"); got != 1 {
		t.Fatalf("delivered %d, want 1", got)
	}

	select {
	case msg := <-ch:
		if msg != "hello" {
			t.Errorf("received %v", msg)
		}
	default:
		t.Fatal("no message buffered")
	}
}

func TestMessagesAreRunScoped(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("run-1")
	defer cancel()

	hub.Publish("run-2", "other run")

	select {
	case msg := <-ch:
		t.Errorf("received message for another run: %v", msg)
	default:
	}
}

func TestCancelRemovesSubscription(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("run-1")
	cancel()
	cancel() // safe to call twice

	if got := hub.SubscriberCount("run-1"); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
	if got := hub.Publish("run-1", "late"); got != 0 {
		t.Errorf("delivered %d after cancel, want 0", got)
	}

	// The channel is closed so a consumer loop terminates.
	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
}

func TestFullSubscriberDropsNotBlocks(t *testing.T) {
	hub := NewHub()

	_, cancel := hub.Subscribe("run-1")
	defer cancel()

	// Fill the buffer without draining; further publishes must not block.
	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish("run-1", i)
	}
	// Reaching here without deadlock is the assertion.
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewHub()

	ch1, cancel1 := hub.Subscribe("run-1")
	ch2, cancel2 := hub.Subscribe("run-1")
	defer cancel1()
	defer cancel2()

	if got := hub.Publish("run-1", "fanout"); got != 2 {
		t.Errorf("delivered %d, want 2", got)
	}
	if msg := <-ch1; msg != "fanout" {
		t.Errorf("ch1 received %v", msg)
	}
	if msg := <-ch2; msg != "fanout" {
		t.Errorf("ch2 received %v", msg)
	}
}
