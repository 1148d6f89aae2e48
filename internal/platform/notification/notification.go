// Package notification delivers appointment messages to patients and doctors:
// every message lands in the recipient's in-app inbox, is pushed to their
// websocket topic and can additionally be e-mailed.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/websocket"
)

const DefaultInboxSize = 50

var ErrNotFound = errors.New("notification not found")

// Notification is one inbox entry.
type Notification struct {
	ID            uuid.UUID `json:"id"`
	Recipient     string    `json:"recipient"`
	TemplateID    string    `json:"template_id"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"created_at"`
}

// Message is a request to notify one user.
type Message struct {
	Recipient     auth.Actor
	Email         string
	TemplateID    string
	Data          map[string]string
	AppointmentID string
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// LogEmailSender writes e-mails to the log instead of a mail server.
type LogEmailSender struct {
	Logger zerolog.Logger
}

func (s LogEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email notification")
	return nil
}

type Option func(*Manager)

// WithEmail enables the e-mail channel.
func WithEmail(sender EmailSender) Option {
	return func(m *Manager) { m.email = sender }
}

// WithInboxSize caps the number of notifications kept per recipient.
func WithInboxSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.inboxSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager renders, stores and delivers notifications.
type Manager struct {
	templates *TemplateEngine
	push      websocket.EventPublisher
	email     EmailSender
	inboxSize int
	now       func() time.Time
	logger    zerolog.Logger

	mu    sync.RWMutex
	inbox map[string][]*Notification // recipient topic -> newest first
}

func NewManager(tpl *TemplateEngine, push websocket.EventPublisher, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		templates: tpl,
		push:      push,
		inboxSize: DefaultInboxSize,
		now:       time.Now,
		logger:    logger.With().Str("component", "notification").Logger(),
		inbox:     make(map[string][]*Notification),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Dispatch stores the message in the recipient's inbox and delivers it on the
// push and e-mail channels. Only rendering failures are returned; delivery
// failures are logged.
func (m *Manager) Dispatch(ctx context.Context, msg Message) (*Notification, error) {
	subject, body, err := m.templates.Render(msg.TemplateID, msg.Data)
	if err != nil {
		return nil, fmt.Errorf("render notification: %w", err)
	}
	n := &Notification{
		ID:            uuid.New(),
		Recipient:     msg.Recipient.Topic(),
		TemplateID:    msg.TemplateID,
		Subject:       subject,
		Body:          body,
		AppointmentID: msg.AppointmentID,
		CreatedAt:     m.now().UTC(),
	}
	m.store(n)

	log := m.logger.With().Str("notification_id", n.ID.String()).Str("recipient", n.Recipient).Logger()
	if m.push != nil {
		data, _ := json.Marshal(n)
		err := m.push.Publish(ctx, websocket.Event{
			Type:         "notification",
			Topic:        n.Recipient,
			ResourceType: "Notification",
			ResourceID:   n.ID.String(),
			Timestamp:    n.CreatedAt,
			Data:         data,
		})
		if err != nil {
			log.Warn().Err(err).Msg("push delivery failed")
		}
	}
	if m.email != nil && msg.Email != "" {
		if err := m.email.SendEmail(ctx, msg.Email, subject, body); err != nil {
			log.Warn().Err(err).Msg("email delivery failed")
		}
	}
	return n, nil
}

func (m *Manager) store(n *Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append([]*Notification{n}, m.inbox[n.Recipient]...)
	if len(list) > m.inboxSize {
		list = list[:m.inboxSize]
	}
	m.inbox[n.Recipient] = list
}

// List returns copies of the recipient's notifications, newest first, and the
// number of unread ones.
func (m *Manager) List(recipient auth.Actor, limit int) ([]Notification, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.inbox[recipient.Topic()]
	out := make([]Notification, 0, len(list))
	unread := 0
	for _, n := range list {
		if !n.Read {
			unread++
		}
		if limit <= 0 || len(out) < limit {
			out = append(out, *n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, unread
}

// MarkRead flags one of the recipient's notifications as read.
func (m *Manager) MarkRead(recipient auth.Actor, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.inbox[recipient.Topic()] {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return ErrNotFound
}
