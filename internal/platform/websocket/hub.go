// Package websocket pushes live queue and appointment updates to waiting-room
// displays and front-desk dashboards. Clients subscribe to per-clinic topics
// and receive events broadcast to those topics.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Topic names are per-clinic so one clinic's board never sees another's
// patients. The legacy partition uses the bare prefix.
const (
	TopicQueuePrefix       = "queue"
	TopicAppointmentPrefix = "appointments"
)

func topicFor(prefix, tenantID string) string {
	if tenantID == "" {
		return prefix
	}
	return prefix + "." + tenantID
}

// QueueTopic returns the live-update topic for a clinic's queue board.
func QueueTopic(tenantID string) string { return topicFor(TopicQueuePrefix, tenantID) }

// AppointmentTopic returns the live-update topic for a clinic's schedule.
func AppointmentTopic(tenantID string) string { return topicFor(TopicAppointmentPrefix, tenantID) }

// Event is a real-time update pushed to subscribed clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entityId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscribe/unsubscribe request from a client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// EventPublisher is what the domain services depend on; the Hub satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client is one connected socket and its subscriptions.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

// Hub tracks clients and their topic subscriptions. All operations are safe
// for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	byTopic map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		byTopic: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		if h.byTopic[topic] == nil {
			h.byTopic[topic] = make(map[*Client]struct{})
		}
		h.byTopic[topic][client] = struct{}{}
	}
}

// Unregister removes a client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for _, topic := range client.Topics {
		h.dropLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) dropLocked(topic string, client *Client) {
	if subscribers, ok := h.byTopic[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.byTopic, topic)
		}
	}
}

// Subscribe adds topics to an already-registered client.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if h.byTopic[topic] == nil {
			h.byTopic[topic] = make(map[*Client]struct{})
		}
		h.byTopic[topic][client] = struct{}{}
	}
	client.Topics = append(client.Topics, topics...)
}

// Unsubscribe removes topics from an already-registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		removeSet[t] = struct{}{}
		h.dropLocked(t, client)
	}

	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage dispatches an inbound client message.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Broadcast sends an event to all clients subscribed to its topic. Clients
// with a full send buffer are skipped rather than blocked on.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", event.Topic).Msg("marshal websocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.byTopic[event.Topic] {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// Publish implements EventPublisher.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to a topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byTopic[topic])
}
