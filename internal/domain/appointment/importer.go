package appointment

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/carelink/carelink/internal/platform/seed"
)

// legacyLayout is the dateTime format of appointments.csv.
const legacyLayout = "2006-01-02T15:04"

// ReadAppointments parses appointments.csv (id,patientId,doctorId,dateTime,status).
// Date times are read in loc. The legacy SCHEDULED status is imported as
// CONFIRMED. Rows that fail to parse are skipped and counted.
func ReadAppointments(r io.Reader, loc *time.Location) ([]*Appointment, int, error) {
	var (
		out     []*Appointment
		skipped int
	)
	err := seed.Each(r, 5, func(_ int, rec []string) error {
		at, err := time.ParseInLocation(legacyLayout, rec[3], loc)
		if err != nil {
			skipped++
			return nil
		}
		status, err := ParseStatus(rec[4])
		if err != nil {
			skipped++
			return nil
		}
		if status == StatusScheduled {
			status = StatusConfirmed
		}
		out = append(out, &Appointment{
			ID:          seed.ID("appointment", rec[0]),
			PatientID:   seed.ID("patient", rec[1]),
			DoctorID:    seed.ID("doctor", rec[2]),
			ScheduledAt: at,
			Status:      status,
		})
		return nil
	})
	return out, skipped, err
}

// Import upserts legacy appointments. Patients and doctors must be imported
// first.
func (s *Service) Import(ctx context.Context, items []*Appointment) error {
	for _, a := range items {
		if strings.TrimSpace(a.Notes) == "" && a.Status == StatusPending {
			a.Notes = BookingNote
		}
		if err := s.repo.Upsert(ctx, a); err != nil {
			return fmt.Errorf("import appointment %s: %w", a.ID, err)
		}
	}
	s.logger.Info().Int("count", len(items)).Msg("appointments imported")
	return nil
}
