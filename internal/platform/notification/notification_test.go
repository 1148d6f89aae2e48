package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/websocket"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type EmailCall struct {
	To      string
	Subject string
	Body    string
}

type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
	fail   bool
}

func (p *recordingPublisher) Publish(_ context.Context, e websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	if p.fail {
		return errors.New("hub closed")
	}
	return nil
}

var fixedNow = time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)

func newTestManager(opts ...Option) (*Manager, *recordingPublisher) {
	pub := &recordingPublisher{}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewManager(NewTemplateEngine(), pub, zerolog.Nop(), opts...), pub
}

func confirmedMessage(to auth.Actor) Message {
	return Message{
		Recipient:     to,
		Email:         "sara@example.dz",
		TemplateID:    TemplateConfirmed,
		Data:          map[string]string{"actor_name": "Dr. Amine Benali", "date": "2025-06-10", "time": "09:00"},
		AppointmentID: "a-1",
	}
}

// ---------------------------------------------------------------------------
// Template engine
// ---------------------------------------------------------------------------

func TestTemplateEngine_BuiltInTemplates(t *testing.T) {
	engine := NewTemplateEngine()
	for _, id := range []string{TemplateRequested, TemplateConfirmed, TemplateRescheduled, TemplateCancelled, TemplateCompleted} {
		if _, _, err := engine.Render(id, nil); err != nil {
			t.Errorf("built-in template %q missing: %v", id, err)
		}
	}
}

func TestTemplateEngine_Render(t *testing.T) {
	engine := NewTemplateEngine()
	subject, body, err := engine.Render(TemplateCancelled, map[string]string{
		"actor_name": "Sara Haddad", "date": "2025-06-10", "time": "09:00",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "Appointment cancelled" {
		t.Errorf("unexpected subject %q", subject)
	}
	if body != "Your appointment on 2025-06-10 at 09:00 has been cancelled by Sara Haddad." {
		t.Errorf("unexpected body %q", body)
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	if _, _, err := NewTemplateEngine().Render("password-reset", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestTemplateEngine_RenderMissingKeyKeepsPlaceholder(t *testing.T) {
	engine := NewTemplateEngine()
	engine.Register(Template{ID: "custom", Subject: "Hi {{name}}", Body: "{{name}} / {{other}}"})
	_, body, err := engine.Render("custom", map[string]string{"name": "Sara"})
	if err != nil {
		t.Fatal(err)
	}
	if body != "Sara / {{other}}" {
		t.Errorf("unexpected body %q", body)
	}
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

func TestManager_DispatchStoresAndPushes(t *testing.T) {
	m, pub := newTestManager()
	patient := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}

	n, err := m.Dispatch(context.Background(), confirmedMessage(patient))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if n.Recipient != patient.Topic() || n.Subject != "Appointment confirmed" {
		t.Errorf("unexpected notification %+v", n)
	}
	if !n.CreatedAt.Equal(fixedNow) {
		t.Errorf("expected clock time, got %v", n.CreatedAt)
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 push, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Topic != patient.Topic() || ev.ResourceID != n.ID.String() {
		t.Errorf("unexpected event %+v", ev)
	}
	var pushed Notification
	if err := json.Unmarshal(ev.Data, &pushed); err != nil || pushed.Body != n.Body {
		t.Errorf("event payload does not carry the notification: %v", err)
	}

	items, unread := m.List(patient, 0)
	if len(items) != 1 || unread != 1 {
		t.Fatalf("expected 1 unread notification, got %d/%d", len(items), unread)
	}
}

func TestManager_DispatchUnknownTemplate(t *testing.T) {
	m, pub := newTestManager()
	_, err := m.Dispatch(context.Background(), Message{Recipient: auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor}, TemplateID: "nope"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(pub.events) != 0 {
		t.Error("nothing should be pushed")
	}
}

func TestManager_EmailChannel(t *testing.T) {
	patient := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}

	disabled, _ := newTestManager()
	if _, err := disabled.Dispatch(context.Background(), confirmedMessage(patient)); err != nil {
		t.Fatal(err)
	}

	sender := &MockEmailSender{}
	enabled, _ := newTestManager(WithEmail(sender))
	if _, err := enabled.Dispatch(context.Background(), confirmedMessage(patient)); err != nil {
		t.Fatal(err)
	}
	calls := sender.Calls()
	if len(calls) != 1 || calls[0].To != "sara@example.dz" || calls[0].Subject != "Appointment confirmed" {
		t.Fatalf("unexpected email calls %+v", calls)
	}

	msg := confirmedMessage(patient)
	msg.Email = ""
	if _, err := enabled.Dispatch(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(sender.Calls()) != 1 {
		t.Error("no e-mail is sent without an address")
	}
}

func TestManager_DeliveryFailuresAreNotReturned(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true}
	m, pub := newTestManager(WithEmail(sender))
	pub.fail = true
	patient := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}

	if _, err := m.Dispatch(context.Background(), confirmedMessage(patient)); err != nil {
		t.Fatalf("delivery failures must not surface: %v", err)
	}
	if items, _ := m.List(patient, 0); len(items) != 1 {
		t.Error("notification should still be stored")
	}
}

func TestManager_InboxIsBounded(t *testing.T) {
	m, _ := newTestManager(WithInboxSize(3))
	patient := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	for i := 0; i < 5; i++ {
		msg := confirmedMessage(patient)
		msg.AppointmentID = string(rune('a' + i))
		if _, err := m.Dispatch(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
	}
	items, _ := m.List(patient, 0)
	if len(items) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(items))
	}
	if items[0].AppointmentID != "e" || items[2].AppointmentID != "c" {
		t.Errorf("expected newest first, got %s..%s", items[0].AppointmentID, items[2].AppointmentID)
	}

	limited, unread := m.List(patient, 1)
	if len(limited) != 1 || unread != 3 {
		t.Errorf("expected 1 item with 3 unread, got %d/%d", len(limited), unread)
	}
}

func TestManager_MarkRead(t *testing.T) {
	m, _ := newTestManager()
	patient := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	n, _ := m.Dispatch(context.Background(), confirmedMessage(patient))

	other := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	if err := m.MarkRead(other, n.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("another user cannot mark it read: %v", err)
	}
	if err := m.MarkRead(patient, n.ID); err != nil {
		t.Fatal(err)
	}
	if _, unread := m.List(patient, 0); unread != 0 {
		t.Errorf("expected 0 unread, got %d", unread)
	}
}

func TestManager_ConcurrentDispatch(t *testing.T) {
	m, _ := newTestManager(WithInboxSize(100))
	doctor := auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Dispatch(context.Background(), Message{Recipient: doctor, TemplateID: TemplateRequested})
		}()
	}
	wg.Wait()
	if items, _ := m.List(doctor, 0); len(items) != 20 {
		t.Fatalf("expected 20 notifications, got %d", len(items))
	}
}

func TestLogEmailSender(t *testing.T) {
	var buf strings.Builder
	s := LogEmailSender{Logger: zerolog.New(&buf)}
	if err := s.SendEmail(context.Background(), "a@b.dz", "Subject", "Body"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"to":"a@b.dz"`) {
		t.Errorf("expected recipient in log, got %s", buf.String())
	}
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

func withActor(req *http.Request, a auth.Actor) *http.Request {
	ctx := context.WithValue(req.Context(), auth.UserIDKey, a.ID.String())
	ctx = context.WithValue(ctx, auth.UserRoleKey, a.Role)
	return req.WithContext(ctx)
}

func TestHandler_ListAndMarkRead(t *testing.T) {
	m, _ := newTestManager()
	h := NewHandler(m)
	e := echo.New()
	patient := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	n, _ := m.Dispatch(context.Background(), confirmedMessage(patient))

	rec := httptest.NewRecorder()
	if err := h.HandleList(e.NewContext(withActor(httptest.NewRequest(http.MethodGet, "/notifications", nil), patient), rec)); err != nil {
		t.Fatal(err)
	}
	var resp struct {
		Data   []Notification `json:"data"`
		Unread int            `json:"unread"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Unread != 1 {
		t.Fatalf("unexpected list %+v", resp)
	}

	rec = httptest.NewRecorder()
	c := e.NewContext(withActor(httptest.NewRequest(http.MethodPost, "/", nil), patient), rec)
	c.SetParamNames("id")
	c.SetParamValues(n.ID.String())
	if err := h.HandleMarkRead(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	c = e.NewContext(withActor(httptest.NewRequest(http.MethodPost, "/", nil), patient), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	err := h.HandleMarkRead(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_RequiresActor(t *testing.T) {
	m, _ := newTestManager()
	h := NewHandler(m)
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/notifications", nil), httptest.NewRecorder())
	err := h.HandleList(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_BadLimit(t *testing.T) {
	m, _ := newTestManager()
	h := NewHandler(m)
	patient := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	c := echo.New().NewContext(withActor(httptest.NewRequest(http.MethodGet, "/notifications?limit=x", nil), patient), httptest.NewRecorder())
	err := h.HandleList(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
