// Package notification delivers patient-facing messages over SMS, email and
// the in-app portal inbox, with template rendering and an Echo HTTP surface.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Channel is the delivery mechanism for a notification.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in-app"
)

// Notification is a single outbound message. In-app notifications are
// addressed to a portal user id; SMS and email to a phone number or address.
type Notification struct {
	ID         string            `json:"id"`
	Channel    Channel           `json:"channel"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject,omitempty"`
	Body       string            `json:"body"`
	TemplateID string            `json:"template_id,omitempty"`
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	SentAt     *time.Time        `json:"sent_at,omitempty"`
	ReadAt     *time.Time        `json:"read_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Manager dispatches notifications through the right channel and keeps a
// record of every attempt. In-app notifications are "delivered" by storing
// them; the portal reads them back through ListByRecipient.
type Manager struct {
	emailSender EmailSender
	smsSender   SMSSender
	templates   *TemplateEngine

	mu      sync.RWMutex
	records map[string]*Notification
}

func NewManager(email EmailSender, sms SMSSender, tpl *TemplateEngine) *Manager {
	return &Manager{
		emailSender: email,
		smsSender:   sms,
		templates:   tpl,
		records:     make(map[string]*Notification),
	}
}

// Send dispatches a notification, assigns an ID and timestamps, and records
// the outcome. A failed send is recorded with status "failed" and returned as
// an error; the record survives for later inspection or retry.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = "pending"

	sendErr := m.deliver(ctx, n)

	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	m.mu.Lock()
	m.records[n.ID] = n
	m.mu.Unlock()

	return sendErr
}

func (m *Manager) deliver(ctx context.Context, n *Notification) error {
	if n.Recipient == "" {
		return errors.New("notification has no recipient")
	}
	switch n.Channel {
	case ChannelEmail:
		return m.emailSender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case ChannelSMS:
		return m.smsSender.SendSMS(ctx, n.Recipient, n.Body)
	case ChannelInApp:
		// Storing the record is the delivery.
		return nil
	default:
		return fmt.Errorf("unsupported notification channel: %s", n.Channel)
	}
}

// SendFromTemplate renders a template and sends the result over the given
// channel to the given recipient.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, ch Channel, recipient string, data map[string]string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		Channel:    ch,
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
	}

	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Get retrieves a notification record by ID.
func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	n, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return n, nil
}

// ListByRecipient returns notifications addressed to a recipient, newest
// first, up to limit.
func (m *Manager) ListByRecipient(_ context.Context, recipient string, limit int) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Notification
	for _, n := range m.records {
		if n.Recipient == recipient {
			result = append(result, n)
		}
	}
	sortByCreatedDesc(result)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkRead records that a portal user has seen an in-app notification.
func (m *Manager) MarkRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.records[id]
	if !ok {
		return fmt.Errorf("notification %q not found", id)
	}
	if n.Channel != ChannelInApp {
		return fmt.Errorf("notification %q is not an in-app notification", id)
	}
	if n.ReadAt == nil {
		readAt := time.Now().UTC()
		n.ReadAt = &readAt
	}
	return nil
}

// Retry re-sends a failed notification.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.RLock()
	n, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("notification %q not found", id)
	}
	if n.Status != "failed" {
		return fmt.Errorf("notification %q is not in failed status (current: %s)", id, n.Status)
	}

	sendErr := m.deliver(ctx, n)

	m.mu.Lock()
	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
		n.Error = ""
	}
	m.mu.Unlock()

	return sendErr
}

// Stats returns counts of notifications grouped by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.records {
		stats[n.Status]++
	}
	return stats
}

func sortByCreatedDesc(ns []*Notification) {
	sort.Slice(ns, func(i, j int) bool {
		return ns[i].CreatedAt.After(ns[j].CreatedAt)
	})
}
