package notification

import (
	"fmt"
	"strings"
	"sync"
)

const (
	TemplateRequested   = "appointment-requested"
	TemplateConfirmed   = "appointment-confirmed"
	TemplateRescheduled = "appointment-rescheduled"
	TemplateCancelled   = "appointment-cancelled"
	TemplateCompleted   = "appointment-completed"
)

// Template is a notification text with {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine returns an engine holding the appointment templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range []Template{
		{
			ID:      TemplateRequested,
			Subject: "New appointment request",
			Body:    "{{actor_name}} requested an appointment on {{date}} at {{time}}. Waiting for your response.",
		},
		{
			ID:      TemplateConfirmed,
			Subject: "Appointment confirmed",
			Body:    "Your appointment with {{actor_name}} on {{date}} at {{time}} has been confirmed.",
		},
		{
			ID:      TemplateRescheduled,
			Subject: "Appointment rescheduled",
			Body:    "Your appointment has been rescheduled to {{date}} at {{time}} by {{actor_name}}.",
		},
		{
			ID:      TemplateCancelled,
			Subject: "Appointment cancelled",
			Body:    "Your appointment on {{date}} at {{time}} has been cancelled by {{actor_name}}.",
		},
		{
			ID:      TemplateCompleted,
			Subject: "Appointment completed",
			Body:    "Your appointment with {{actor_name}} on {{date}} has been marked as completed.",
		},
	} {
		e.Register(t)
	}
	return e
}

// Register adds or replaces a template.
func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render substitutes data into the template. Placeholders without a value are
// left as they are.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}
