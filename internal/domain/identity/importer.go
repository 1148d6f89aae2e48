package identity

import (
	"context"
	"fmt"
	"io"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/seed"
)

type PatientRecord struct {
	Patient  Patient
	Password string
}

// ReadPatients parses patients.csv
// (id,firstName,lastName,wilaya,city,email,password,phone[,sex]).
func ReadPatients(r io.Reader) ([]PatientRecord, error) {
	var out []PatientRecord
	err := seed.Each(r, 8, func(_ int, rec []string) error {
		p := Patient{
			ID:        seed.ID("patient", rec[0]),
			FirstName: rec[1],
			LastName:  rec[2],
			Wilaya:    rec[3],
			City:      rec[4],
			Email:     normalizeEmail(rec[5]),
			Phone:     rec[7],
		}
		if len(rec) > 8 {
			p.Sex = rec[8]
		}
		out = append(out, PatientRecord{Patient: p, Password: rec[6]})
		return nil
	})
	return out, err
}

// ImportPatients upserts patients and their accounts.
func (s *Service) ImportPatients(ctx context.Context, recs []PatientRecord) error {
	for i := range recs {
		rec := &recs[i]
		hash, err := auth.HashPassword(rec.Password)
		if err != nil {
			return err
		}
		err = s.tx.WithTx(ctx, func(ctx context.Context) error {
			if err := s.patients.Upsert(ctx, &rec.Patient); err != nil {
				return err
			}
			return s.accounts.Upsert(ctx, &Account{
				Email: rec.Patient.Email, PasswordHash: hash, Role: auth.RolePatient, SubjectID: rec.Patient.ID,
			})
		})
		if err != nil {
			return fmt.Errorf("import patient %s: %w", rec.Patient.Email, err)
		}
	}
	s.logger.Info().Int("count", len(recs)).Msg("patients imported")
	return nil
}

// ImportDoctors upserts doctors into the directory together with their accounts.
func (s *Service) ImportDoctors(ctx context.Context, recs []directory.DoctorRecord) error {
	for i := range recs {
		rec := &recs[i]
		rec.Doctor.Email = normalizeEmail(rec.Doctor.Email)
		hash, err := auth.HashPassword(rec.Password)
		if err != nil {
			return err
		}
		err = s.tx.WithTx(ctx, func(ctx context.Context) error {
			if err := s.doctors.ImportDoctor(ctx, &rec.Doctor); err != nil {
				return err
			}
			return s.accounts.Upsert(ctx, &Account{
				Email: rec.Doctor.Email, PasswordHash: hash, Role: auth.RoleDoctor, SubjectID: rec.Doctor.ID,
			})
		})
		if err != nil {
			return fmt.Errorf("import doctor %s: %w", rec.Doctor.Email, err)
		}
	}
	s.logger.Info().Int("count", len(recs)).Msg("doctors imported")
	return nil
}
