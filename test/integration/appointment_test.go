//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/carelink/internal/domain/appointment"
	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/identity"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/calendar"
)

type fixture struct {
	doctor  *directory.Doctor
	patient *identity.Patient
	repo    appointment.Repository
	svc     *appointment.Service
	policy  calendar.Policy
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	truncate(t)
	ctx := context.Background()

	policy := calendar.DefaultPolicy()
	// Monday 2025-06-09 10:00 in the clinic timezone.
	now := time.Date(2025, 6, 9, 10, 0, 0, 0, policy.Location)

	dirRepo := directory.NewRepoPG(globalPool)
	doctor := &directory.Doctor{
		ID: uuid.New(), FirstName: "Amine", LastName: "Haddad", Email: "amine@clinic.dz",
		Wilaya: "Alger", City: "Bab Ezzouar", Specialty: "Cardiologie",
	}
	require.NoError(t, dirRepo.CreateDoctor(ctx, doctor))

	patients := identity.NewPatientRepoPG(globalPool)
	patient := &identity.Patient{
		ID: uuid.New(), FirstName: "Sara", LastName: "Benali", Email: "sara@mail.dz",
	}
	require.NoError(t, patients.Create(ctx, patient))

	dirSvc := directory.NewService(dirRepo, policy)
	repo := appointment.NewRepoPG(globalPool)
	svc := appointment.NewService(repo, dirSvc, patients, policy,
		appointment.WithClock(func() time.Time { return now }))

	return &fixture{doctor: doctor, patient: patient, repo: repo, svc: svc, policy: policy, now: now}
}

func (f *fixture) patientActor() auth.Actor { return auth.Actor{ID: f.patient.ID, Role: auth.RolePatient} }
func (f *fixture) doctorActor() auth.Actor  { return auth.Actor{ID: f.doctor.ID, Role: auth.RoleDoctor} }

func (f *fixture) book(t *testing.T, date, hhmm string) *appointment.Appointment {
	t.Helper()
	a, err := f.svc.Create(context.Background(), f.patientActor(),
		appointment.BookRequest{DoctorID: f.doctor.ID, Date: date, Time: hhmm})
	require.NoError(t, err)
	return a
}

func TestAppointment_FullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.book(t, "2025-06-10", "09:00")
	assert.Equal(t, appointment.StatusPending, a.Status)
	assert.Equal(t, appointment.BookingNote, a.Notes)

	res, err := f.svc.Confirm(ctx, f.doctorActor(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, res.Appointment.Status)

	res, err = f.svc.Reschedule(ctx, f.patientActor(), a.ID, calendar.Slot{Date: "2025-06-11", Time: "14:30"})
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusRescheduled, res.Appointment.Status)
	assert.Equal(t, "2025-06-11", res.Appointment.Date)
	assert.Equal(t, "14:30", res.Appointment.Time)

	res, err = f.svc.Confirm(ctx, f.doctorActor(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, res.Appointment.Status)

	res, err = f.svc.Complete(ctx, f.doctorActor(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, res.Appointment.Status)

	_, err = f.svc.Cancel(ctx, f.doctorActor(), a.ID)
	assert.ErrorIs(t, err, appointment.ErrNotAllowed)

	stored, err := f.repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, stored.Status)
}

func TestAppointment_SlotExclusivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.book(t, "2025-06-10", "09:00")

	_, err := f.svc.Create(ctx, f.patientActor(),
		appointment.BookRequest{DoctorID: f.doctor.ID, Date: "2025-06-10", Time: "09:00"})
	assert.ErrorIs(t, err, appointment.ErrSlotTaken)

	// The partial unique index also rejects a direct insert.
	err = f.repo.Create(ctx, &appointment.Appointment{
		PatientID: f.patient.ID, DoctorID: f.doctor.ID,
		ScheduledAt: first.ScheduledAt, Status: appointment.StatusPending,
	})
	assert.ErrorIs(t, err, appointment.ErrSlotTaken)

	// A cancelled booking frees the slot.
	_, err = f.svc.Cancel(ctx, f.doctorActor(), first.ID)
	require.NoError(t, err)
	again := f.book(t, "2025-06-10", "09:00")
	assert.NotEqual(t, first.ID, again.ID)
}

func TestAppointment_ConcurrentBookingsOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		conflict int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(ctx, f.patientActor(),
				appointment.BookRequest{DoctorID: f.doctor.ID, Date: "2025-06-10", Time: "10:00"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case assert.ErrorIs(t, err, appointment.ErrSlotTaken):
				conflict++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, conflict)
}

func TestAppointment_UpdateStatusIsCompareAndSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, "2025-06-10", "11:00")

	_, err := f.repo.UpdateStatus(ctx, a.ID, appointment.StatusPending, appointment.StatusConfirmed, nil)
	require.NoError(t, err)

	// A second writer that read PENDING loses.
	_, err = f.repo.UpdateStatus(ctx, a.ID, appointment.StatusPending, appointment.StatusCancelled, nil)
	assert.ErrorIs(t, err, appointment.ErrStale)
}

func TestAppointment_ListsAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.book(t, "2025-06-10", "09:00")
	second := f.book(t, "2025-06-11", "09:00")
	_, err := f.svc.Confirm(ctx, f.doctorActor(), second.ID)
	require.NoError(t, err)

	// A past appointment for today, imported directly.
	today := time.Date(2025, 6, 9, 8, 0, 0, 0, f.policy.Location)
	require.NoError(t, f.repo.Upsert(ctx, &appointment.Appointment{
		ID: uuid.New(), PatientID: f.patient.ID, DoctorID: f.doctor.ID,
		ScheduledAt: today, Status: appointment.StatusCompleted,
	}))

	items, total, err := f.svc.ListForPatient(ctx, f.patient.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 3)
	assert.True(t, items[0].ScheduledAt.After(items[1].ScheduledAt), "newest first")

	upcoming, total, err := f.svc.UpcomingForPatient(ctx, f.patient.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "2025-06-10", upcoming[0].Date)

	booked, err := f.svc.BookedTimes(ctx, f.doctor.ID, "2025-06-10")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00"}, booked)

	ps, err := f.svc.PatientStats(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, ps.UpcomingAppointments)
	assert.Equal(t, 3, ps.TotalAppointments)
	assert.Equal(t, 1, ps.CompletedAppointments)

	ds, err := f.svc.DoctorStats(ctx, f.doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ds.PendingAppointments)
	assert.Equal(t, 1, ds.TotalPatients)

	ok, err := f.svc.HasAppointmentWith(ctx, f.patient.ID, f.doctor.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
