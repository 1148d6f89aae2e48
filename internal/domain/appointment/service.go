package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/identity"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/calendar"
	"github.com/carelink/carelink/internal/platform/events"
	"github.com/carelink/carelink/internal/platform/notification"
)

// DoctorLookup is satisfied by *directory.Service.
type DoctorLookup interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
}

// PatientLookup is satisfied by identity.PatientRepository.
type PatientLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

// Notifier is satisfied by *notification.Manager.
type Notifier interface {
	Dispatch(ctx context.Context, msg notification.Message) (*notification.Notification, error)
}

// Recorder is satisfied by *metrics.Collector.
type Recorder interface {
	ObserveTransition(action, from, to string)
	ObserveRejection(action, reason string)
}

type Service struct {
	repo     Repository
	doctors  DoctorLookup
	patients PatientLookup
	policy   calendar.Policy

	notifier  Notifier
	publisher events.Publisher
	metrics   Recorder
	tracer    trace.Tracer
	logger    zerolog.Logger

	initial  Status
	now      func() time.Time
	pageSize int
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l.With().Str("component", "appointment").Logger() }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithInitialStatus selects the status of new bookings: PENDING (the doctor
// must confirm) or SCHEDULED (accepted on booking).
func WithInitialStatus(st Status) Option {
	return func(s *Service) { s.initial = st }
}

func NewService(repo Repository, doctors DoctorLookup, patients PatientLookup, policy calendar.Policy, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		doctors:  doctors,
		patients: patients,
		policy:   policy,
		tracer:   otel.Tracer("carelink/appointment"),
		logger:   zerolog.Nop(),
		initial:  StatusPending,
		now:      time.Now,
		pageSize: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidInitialStatus reports whether st may be used with WithInitialStatus.
func ValidInitialStatus(st Status) bool {
	return st == StatusPending || st == StatusScheduled
}

func (s *Service) localize(a *Appointment) *Appointment {
	slot := s.policy.SlotOf(a.ScheduledAt)
	a.Date, a.Time = slot.Date, slot.Time
	return a
}

func (s *Service) localizeAll(items []*Appointment) []*Appointment {
	for _, a := range items {
		s.localize(a)
	}
	return items
}

func owns(actor auth.Actor, a *Appointment) bool {
	switch actor.Role {
	case auth.RolePatient:
		return a.PatientID == actor.ID
	case auth.RoleDoctor:
		return a.DoctorID == actor.ID
	}
	return false
}

// rejectionReason is the metrics label for a refused operation.
func rejectionReason(err error) string {
	var te *TransitionError
	switch {
	case errors.As(err, &te):
		return "transition_not_allowed"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDoctorNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrPatientOnly):
		return "forbidden"
	case errors.Is(err, ErrStale):
		return "stale"
	case errors.Is(err, ErrSlotTaken):
		return "slot_taken"
	case isCalendarError(err), errors.Is(err, ErrInvalid):
		return "invalid"
	}
	return "error"
}

func isCalendarError(err error) bool {
	for _, target := range []error{
		calendar.ErrInvalidDate, calendar.ErrInvalidTime,
		calendar.ErrPastDate, calendar.ErrBlockedDay, calendar.ErrOffGrid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Service) reject(span trace.Span, action Action, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if s.metrics != nil {
		s.metrics.ObserveRejection(string(action), rejectionReason(err))
	}
	return err
}

// -- Booking --

// Create books a new appointment for the calling patient.
func (s *Service) Create(ctx context.Context, actor auth.Actor, req BookRequest) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.create", trace.WithAttributes(
		attribute.String("actor.role", string(actor.Role)),
		attribute.String("doctor.id", req.DoctorID.String()),
	))
	defer span.End()

	if !actor.IsPatient() {
		return nil, s.reject(span, ActionCreate, ErrPatientOnly)
	}
	if req.DoctorID == uuid.Nil {
		return nil, s.reject(span, ActionCreate, fmt.Errorf("%w: doctor_id is required", ErrInvalid))
	}
	at, err := s.policy.Validate(s.now(), calendar.Slot{Date: strings.TrimSpace(req.Date), Time: strings.TrimSpace(req.Time)})
	if err != nil {
		return nil, s.reject(span, ActionCreate, err)
	}
	doctor, err := s.doctors.GetDoctor(ctx, req.DoctorID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, s.reject(span, ActionCreate, ErrDoctorNotFound)
	}
	if err != nil {
		return nil, s.reject(span, ActionCreate, fmt.Errorf("get doctor: %w", err))
	}
	taken, err := s.repo.SlotTaken(ctx, doctor.ID, at, uuid.Nil)
	if err != nil {
		return nil, s.reject(span, ActionCreate, fmt.Errorf("check slot: %w", err))
	}
	if taken {
		return nil, s.reject(span, ActionCreate, ErrSlotTaken)
	}

	a := &Appointment{
		ID:          uuid.New(),
		PatientID:   actor.ID,
		DoctorID:    doctor.ID,
		ScheduledAt: at,
		Status:      s.initial,
		Notes:       BookingNote,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, s.reject(span, ActionCreate, err)
	}
	s.localize(a)
	span.SetAttributes(attribute.String("appointment.id", a.ID.String()))

	s.logger.Info().Str("appointment_id", a.ID.String()).Str("patient_id", a.PatientID.String()).
		Str("doctor_id", a.DoctorID.String()).Str("slot", a.Date+"T"+a.Time).Msg("appointment booked")
	s.afterChange(ctx, actor, ActionCreate, "", a)
	return a, nil
}

// -- Transitions --

// Confirm is the doctor accepting a pending or rescheduled request.
func (s *Service) Confirm(ctx context.Context, actor auth.Actor, id uuid.UUID) (Result, error) {
	return s.transition(ctx, actor, ActionConfirm, id, nil)
}

// Reschedule moves the appointment to a new valid slot.
func (s *Service) Reschedule(ctx context.Context, actor auth.Actor, id uuid.UUID, slot calendar.Slot) (Result, error) {
	return s.transition(ctx, actor, ActionReschedule, id, &slot)
}

func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID) (Result, error) {
	return s.transition(ctx, actor, ActionCancel, id, nil)
}

func (s *Service) Complete(ctx context.Context, actor auth.Actor, id uuid.UUID) (Result, error) {
	return s.transition(ctx, actor, ActionComplete, id, nil)
}

var successMessages = map[Action]string{
	ActionConfirm:    "Appointment confirmed",
	ActionReschedule: "Appointment rescheduled",
	ActionCancel:     "Appointment cancelled",
	ActionComplete:   "Appointment completed",
}

// Failure builds the client-facing result for a failed operation.
func Failure(action Action, err error) Result {
	var te *TransitionError
	switch {
	case errors.As(err, &te):
		return Result{Message: te.Reason}
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden), errors.Is(err, ErrStale),
		errors.Is(err, ErrSlotTaken), errors.Is(err, ErrDoctorNotFound), errors.Is(err, ErrPatientOnly),
		errors.Is(err, ErrInvalid), isCalendarError(err):
		return Result{Message: err.Error()}
	}
	return Result{Message: fmt.Sprintf("Failed to %s appointment", action)}
}

func (s *Service) transition(ctx context.Context, actor auth.Actor, action Action, id uuid.UUID, slot *calendar.Slot) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "appointment."+string(action), trace.WithAttributes(
		attribute.String("appointment.id", id.String()),
		attribute.String("actor.role", string(actor.Role)),
	))
	defer span.End()

	fail := func(err error) (Result, error) {
		return Failure(action, err), s.reject(span, action, err)
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fail(err)
	}
	if !owns(actor, a) {
		return fail(ErrForbidden)
	}
	to, err := Decide(actor.Role, action, a.Status)
	if err != nil {
		return fail(err)
	}

	var at *time.Time
	if slot != nil {
		t, err := s.policy.Validate(s.now(), *slot)
		if err != nil {
			return fail(err)
		}
		taken, err := s.repo.SlotTaken(ctx, a.DoctorID, t, a.ID)
		if err != nil {
			return fail(fmt.Errorf("check slot: %w", err))
		}
		if taken {
			return fail(ErrSlotTaken)
		}
		at = &t
	}

	from := a.Status
	updated, err := s.repo.UpdateStatus(ctx, a.ID, from, to, at)
	if err != nil {
		return fail(err)
	}
	s.localize(updated)
	span.SetAttributes(attribute.String("status.from", string(from)), attribute.String("status.to", string(to)))

	s.logger.Info().Str("appointment_id", updated.ID.String()).Str("action", string(action)).
		Str("actor", actor.Topic()).Str("from", string(from)).Str("to", string(to)).Msg("appointment transition")
	s.afterChange(ctx, actor, action, from, updated)
	return Result{Success: true, Message: successMessages[action], Appointment: updated}, nil
}

// -- Side effects --

var templates = map[Action]string{
	ActionCreate:     notification.TemplateRequested,
	ActionConfirm:    notification.TemplateConfirmed,
	ActionReschedule: notification.TemplateRescheduled,
	ActionCancel:     notification.TemplateCancelled,
	ActionComplete:   notification.TemplateCompleted,
}

var eventTypes = map[Action]string{
	ActionCreate:     "created",
	ActionConfirm:    "confirmed",
	ActionReschedule: "rescheduled",
	ActionCancel:     "cancelled",
	ActionComplete:   "completed",
}

// afterChange records, notifies and publishes a persisted change. Failures are
// logged and never undo the change.
func (s *Service) afterChange(ctx context.Context, actor auth.Actor, action Action, from Status, a *Appointment) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(action), string(from), string(a.Status))
	}
	log := s.logger.With().Str("appointment_id", a.ID.String()).Str("action", string(action)).Logger()

	if s.notifier != nil {
		if msg, err := s.message(ctx, actor, action, a); err != nil {
			log.Warn().Err(err).Msg("notification skipped")
		} else if _, err := s.notifier.Dispatch(ctx, msg); err != nil {
			log.Warn().Err(err).Msg("notification failed")
		}
	}

	if s.publisher != nil {
		err := s.publisher.Publish(ctx, events.Event{
			ID:            uuid.New(),
			Type:          eventTypes[action],
			AppointmentID: a.ID,
			PatientID:     a.PatientID,
			DoctorID:      a.DoctorID,
			ActorRole:     string(actor.Role),
			ActorID:       actor.ID,
			FromStatus:    string(from),
			ToStatus:      string(a.Status),
			ScheduledAt:   a.ScheduledAt,
			OccurredAt:    s.now().UTC(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("event publish failed")
		}
	}
}

// message addresses the other party of the appointment: the doctor when the
// patient acts, the patient when the doctor acts.
func (s *Service) message(ctx context.Context, actor auth.Actor, action Action, a *Appointment) (notification.Message, error) {
	doctor, err := s.doctors.GetDoctor(ctx, a.DoctorID)
	if err != nil {
		return notification.Message{}, fmt.Errorf("get doctor: %w", err)
	}
	patient, err := s.patients.GetByID(ctx, a.PatientID)
	if err != nil {
		return notification.Message{}, fmt.Errorf("get patient: %w", err)
	}

	msg := notification.Message{
		TemplateID:    templates[action],
		AppointmentID: a.ID.String(),
		Data:          map[string]string{"date": a.Date, "time": a.Time},
	}
	if actor.IsDoctor() {
		msg.Recipient = auth.Actor{ID: patient.ID, Role: auth.RolePatient}
		msg.Email = patient.Email
		msg.Data["actor_name"] = doctor.FullName()
	} else {
		msg.Recipient = auth.Actor{ID: doctor.ID, Role: auth.RoleDoctor}
		msg.Email = doctor.Email
		msg.Data["actor_name"] = patient.FullName()
	}
	return msg, nil
}

// -- Queries --

// Get returns an appointment to its patient or doctor.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !owns(actor, a) {
		return nil, ErrForbidden
	}
	return s.localize(a), nil
}

// ListForPatient returns the patient's appointments, newest first.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	items, total, err := s.repo.List(ctx, Filter{PatientID: patientID}, limit, offset)
	return s.localizeAll(items), total, err
}

// ListForDoctor returns the doctor's appointments, newest first.
func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	items, total, err := s.repo.List(ctx, Filter{DoctorID: doctorID}, limit, offset)
	return s.localizeAll(items), total, err
}

var liveStatuses = []Status{StatusPending, StatusConfirmed, StatusScheduled, StatusRescheduled}

// TodayForDoctor lists the doctor's live appointments of the current clinic
// day in time order.
func (s *Service) TodayForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error) {
	start := s.policy.Today(s.now())
	f := Filter{
		DoctorID:  doctorID,
		From:      start,
		To:        start.AddDate(0, 0, 1),
		Statuses:  liveStatuses,
		Ascending: true,
	}
	all := []*Appointment{}
	for {
		items, total, err := s.repo.List(ctx, f, s.pageSize, len(all))
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) == 0 || len(all) >= total {
			break
		}
	}
	return s.localizeAll(all), nil
}

// UpcomingForPatient lists the patient's live future appointments in time order.
func (s *Service) UpcomingForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	items, total, err := s.repo.List(ctx, Filter{
		PatientID: patientID,
		From:      s.now(),
		Statuses:  liveStatuses,
		Ascending: true,
	}, limit, offset)
	return s.localizeAll(items), total, err
}

// IsSlotAvailable reports whether the doctor can be booked at the slot. Slots
// the calendar refuses are unavailable; malformed slots are an error.
func (s *Service) IsSlotAvailable(ctx context.Context, doctorID uuid.UUID, slot calendar.Slot) (bool, error) {
	at, err := s.policy.Validate(s.now(), slot)
	if errors.Is(err, calendar.ErrInvalidDate) || errors.Is(err, calendar.ErrInvalidTime) {
		return false, err
	}
	if err != nil {
		return false, nil
	}
	taken, err := s.repo.SlotTaken(ctx, doctorID, at, uuid.Nil)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// BookedTimes returns the times of day on date at which the doctor already
// holds a live appointment.
func (s *Service) BookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	day, err := s.policy.ParseDate(date)
	if err != nil {
		return nil, err
	}
	items, _, err := s.repo.List(ctx, Filter{
		DoctorID:  doctorID,
		From:      day,
		To:        day.AddDate(0, 0, 1),
		Statuses:  liveStatuses,
		Ascending: true,
	}, len(s.policy.Times)+1, 0)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, s.policy.SlotOf(a.ScheduledAt).Time)
	}
	return out, nil
}

// HasAppointmentWith reports whether the patient has ever booked the doctor.
func (s *Service) HasAppointmentWith(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, patientID, doctorID)
}

func (s *Service) DoctorStats(ctx context.Context, doctorID uuid.UUID) (DoctorStats, error) {
	start := s.policy.Today(s.now())
	return s.repo.DoctorStats(ctx, doctorID, start, start.AddDate(0, 0, 1))
}

func (s *Service) PatientStats(ctx context.Context, patientID uuid.UUID) (PatientStats, error) {
	return s.repo.PatientStats(ctx, patientID, s.now())
}
