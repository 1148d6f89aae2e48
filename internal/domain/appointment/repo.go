package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts a new appointment. It returns ErrSlotTaken when the
	// doctor already holds a live appointment at the same instant.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateStatus moves the appointment from status from to status to, and
	// to scheduledAt when it is non-nil. It returns ErrStale when the stored
	// status is no longer from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, scheduledAt *time.Time) (*Appointment, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	// SlotTaken reports whether the doctor holds a live appointment at the
	// instant, ignoring excludeID.
	SlotTaken(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID uuid.UUID) (bool, error)
	Exists(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
	DoctorStats(ctx context.Context, doctorID uuid.UUID, dayStart, dayEnd time.Time) (DoctorStats, error)
	PatientStats(ctx context.Context, patientID uuid.UUID, now time.Time) (PatientStats, error)
	Upsert(ctx context.Context, a *Appointment) error
}
