package appointment

import (
	"time"

	"github.com/google/uuid"
)

// BookingNote is stored on every new appointment.
const BookingNote = "Waiting for doctor response"

// Appointment maps to the appointment table. Date and Time are the clinic
// local rendering of ScheduledAt and are filled in by the service.
type Appointment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	Date        string    `db:"-" json:"date"`
	Time        string    `db:"-" json:"time"`
	Status      Status    `db:"status" json:"status"`
	Notes       string    `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// BookRequest is the body of POST /appointments.
type BookRequest struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Time     string    `json:"time"`
}

// RescheduleRequest is the body of POST /appointments/:id/reschedule.
type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Result is the outcome of a lifecycle operation as returned to clients.
type Result struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	Appointment *Appointment `json:"appointment,omitempty"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	From      time.Time // inclusive
	To        time.Time // exclusive
	Statuses  []Status
	Ascending bool
}

type DoctorStats struct {
	TodayAppointments   int `json:"todayAppointments"`
	PendingAppointments int `json:"pendingAppointments"`
	TotalPatients       int `json:"totalPatients"`
}

type PatientStats struct {
	UpcomingAppointments  int `json:"upcomingAppointments"`
	TotalAppointments     int `json:"totalAppointments"`
	CompletedAppointments int `json:"completedAppointments"`
}
