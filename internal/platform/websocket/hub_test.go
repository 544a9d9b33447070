package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(topics ...string) *Client {
	return &Client{
		ID:     "test-client",
		Topics: topics,
		Send:   make(chan []byte, 8),
	}
}

func TestTopicNames(t *testing.T) {
	if got := QueueTopic("clinic-a"); got != "queue.clinic-a" {
		t.Errorf("got %q", got)
	}
	if got := QueueTopic(""); got != "queue" {
		t.Errorf("legacy partition must use bare prefix, got %q", got)
	}
	if got := AppointmentTopic("clinic-a"); got != "appointments.clinic-a" {
		t.Errorf("got %q", got)
	}
}

func TestHubBroadcastToSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	sub := newTestClient(QueueTopic("clinic-a"))
	other := newTestClient(QueueTopic("clinic-b"))
	hub.Register(sub)
	hub.Register(other)

	hub.Broadcast(Event{
		Type:      "queue.updated",
		Topic:     QueueTopic("clinic-a"),
		Entity:    "queue_entry",
		EntityID:  "q-1",
		Timestamp: time.Now(),
	})

	select {
	case data := <-sub.Send:
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if evt.Type != "queue.updated" || evt.EntityID != "q-1" {
			t.Errorf("unexpected event: %+v", evt)
		}
	default:
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-other.Send:
		t.Fatal("client on another clinic's topic received the event")
	default:
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient(QueueTopic("clinic-a"))
	hub.Register(c)

	hub.Unregister(c)

	if _, open := <-c.Send; open {
		t.Error("expected Send channel closed after unregister")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.TopicCount(QueueTopic("clinic-a")) != 0 {
		t.Error("expected topic cleaned up")
	}

	// Second unregister is a no-op, not a double close.
	hub.Unregister(c)
}

func TestHubSubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient()
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Topics: []string{AppointmentTopic("clinic-a")}})
	if hub.TopicCount(AppointmentTopic("clinic-a")) != 1 {
		t.Fatal("expected subscription")
	}

	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Topics: []string{AppointmentTopic("clinic-a")}})
	if hub.TopicCount(AppointmentTopic("clinic-a")) != 0 {
		t.Error("expected unsubscription")
	}
	if len(c.Topics) != 0 {
		t.Errorf("client topic list not pruned: %v", c.Topics)
	}
}

func TestHubSkipsFullBuffers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := &Client{ID: "slow", Topics: []string{QueueTopic("clinic-a")}, Send: make(chan []byte)}
	hub.Register(c)

	// Unbuffered channel with no reader: Broadcast must not block.
	done := make(chan struct{})
	go func() {
		hub.Broadcast(Event{Topic: QueueTopic("clinic-a"), Type: "queue.updated"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a slow client")
	}
}

func TestHubPublish(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient(QueueTopic("clinic-a"))
	hub.Register(c)

	if err := hub.Publish(context.Background(), Event{Topic: QueueTopic("clinic-a")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Send) != 1 {
		t.Error("expected published event delivered")
	}
}
