package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Template defines a reusable notification template. Placeholders use
// {{key}} syntax; keys absent from the render data are left as-is.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in clinic
// templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "appointment-reminder",
			Name:    "Appointment Reminder",
			Subject: "Appointment Reminder for {{patient_name}}",
			Body:    "Dear {{patient_name}}, this is a reminder of your appointment on {{date}} at {{time}} with {{provider}}.",
			Channel: ChannelEmail,
		},
		{
			ID:      "appointment-reminder-sms",
			Name:    "Appointment Reminder (SMS)",
			Body:    "Reminder: appointment on {{date}} at {{time}} with {{provider}}. Reply STOP to opt out.",
			Channel: ChannelSMS,
		},
		{
			ID:      "queue-called",
			Name:    "Queue Called",
			Subject: "You're up next",
			Body:    "{{patient_name}}, you are now being called. Please proceed to {{location}}.",
			Channel: ChannelInApp,
		},
		{
			ID:      "queue-status-changed",
			Name:    "Queue Status Changed",
			Subject: "Visit update",
			Body:    "Your visit status is now {{status}}.",
			Channel: ChannelInApp,
		},
		{
			ID:      "appointment-cancelled",
			Name:    "Appointment Cancelled",
			Subject: "Appointment Cancelled",
			Body:    "Dear {{patient_name}}, your appointment on {{date}} at {{time}} has been cancelled. Contact the clinic to reschedule.",
			Channel: ChannelEmail,
		},
		{
			ID:      "visit-summary",
			Name:    "Visit Summary",
			Subject: "Visit Summary for {{patient_name}}",
			Body:    "Dear {{patient_name}}, here is a summary of your visit on {{visit_date}}: {{summary}}",
			Channel: ChannelEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// Register adds or replaces a template in the engine.
func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Lookup returns a template by ID.
func (e *TemplateEngine) Lookup(templateID string) (*Template, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.templates[templateID]
	return t, ok
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	t, ok := e.Lookup(templateID)
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}
